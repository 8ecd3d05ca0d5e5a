// Package main provides the main entry point for the TenderWatch pipeline service
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/tenderwatch/tenderwatch/app/handlers"
	"github.com/tenderwatch/tenderwatch/app/router"
	"github.com/tenderwatch/tenderwatch/app/scheduler"
	"github.com/tenderwatch/tenderwatch/app/services"
	businessflow "github.com/tenderwatch/tenderwatch/business_flow"
	"github.com/tenderwatch/tenderwatch/config"
	"github.com/tenderwatch/tenderwatch/models"
	"github.com/tenderwatch/tenderwatch/repository"
)

// Application represents the main application structure
type Application struct {
	router    router.Router
	config    *config.ProductionConfig
	stopFuncs []func()
}

func main() {
	log.Println("Starting TenderWatch application...")

	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	app.router.SetupRoutes()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := app.router.Start(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-sigChan
	log.Println("Shutting down gracefully...")

	for _, fn := range app.stopFuncs {
		fn()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.router.GetApp().ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := db.AutoMigrate(
		&models.Tender{},
		&models.TenderRevision{},
		&models.RawPayload{},
		&models.Attachment{},
		&models.IndexDocument{},
		&models.IndexChunk{},
		&models.Subscription{},
		&models.MatchOutcome{},
		&models.DeliveryLog{},
		&models.PipelineJob{},
		&models.FailedJob{},
	); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	return db, nil
}

// initializeCache initializes the Cache client and verifies connectivity
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled || cfg.Provider != "redis" {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established to %s (db=%d)", cfg.RedisURL, cfg.RedisDB)
	return rc, nil
}

// initializeConnector selects the tender source connector implementation
func initializeConnector(cfg *config.ProductionConfig) services.TenderConnector {
	if cfg.Connector.BaseURL == "" || cfg.Connector.BaseURL == "mock" {
		log.Println("No connector base URL configured, using mock connector")
		return services.NewMockTenderConnector()
	}
	return services.NewHTTPTenderConnector(cfg.Connector)
}

// initializeApplication initializes the main application components
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	var stopFuncs []func()

	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}

	// Repositories
	tenderRepo := repository.NewTenderRepository(db)
	revisionRepo := repository.NewTenderRevisionRepository(db)
	rawPayloadRepo := repository.NewRawPayloadRepository(db)
	attachmentRepo := repository.NewAttachmentRepository(db)
	documentRepo := repository.NewIndexDocumentRepository(db)
	chunkRepo := repository.NewIndexChunkRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)
	outcomeRepo := repository.NewMatchOutcomeRepository(db)
	deliveryRepo := repository.NewDeliveryLogRepository(db)
	jobRepo := repository.NewPipelineJobRepository(db)
	failedJobRepo := repository.NewFailedJobRepository(db)

	// External services
	connector := initializeConnector(cfg)
	provider := services.NewNoopNotificationProvider()

	// Business flows
	ingestionFlow := businessflow.NewIngestionFlow(
		connector, tenderRepo, revisionRepo, rawPayloadRepo, jobRepo, failedJobRepo,
		db, cfg.Ingestion.MaxRetries, cfg.Ingestion.RetryBackoff,
	)
	normalizationFlow := businessflow.NewNormalizationFlow(
		tenderRepo, revisionRepo, rawPayloadRepo, attachmentRepo, jobRepo, db,
	)
	indexingFlow := businessflow.NewIndexingFlow(
		tenderRepo, revisionRepo, attachmentRepo, documentRepo, chunkRepo,
		db, rc, cfg.Cache.SearchTTL,
	)
	matchNotifyFlow := businessflow.NewMatchNotifyFlow(
		revisionRepo, subscriptionRepo, outcomeRepo, deliveryRepo, provider,
		db, cfg.Notification.MaxAttempts,
	)

	// Handlers and router
	pipelineHandler := handlers.NewPipelineHandler(ingestionFlow, normalizationFlow, indexingFlow, matchNotifyFlow)
	searchHandler := handlers.NewSearchHandler(indexingFlow)
	r := router.NewFiberRouter(cfg, pipelineHandler, searchHandler)

	// Background scheduler
	if cfg.Scheduler.Enabled {
		pipelineScheduler := scheduler.NewPipelineScheduler(
			ingestionFlow, normalizationFlow, matchNotifyFlow,
			cfg.Scheduler, cfg.Ingestion.Source, cfg.Logging,
		)
		stop := pipelineScheduler.Start(context.Background())
		stopFuncs = append(stopFuncs, stop)
		log.Printf("Pipeline scheduler started with interval %s", cfg.Scheduler.Interval)
	}

	return &Application{
		router:    r,
		config:    cfg,
		stopFuncs: stopFuncs,
	}, nil
}
