// Package config provides configuration management and environment variable handling for the application
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ProductionConfig holds all configuration for production environment
type ProductionConfig struct {
	Database     DatabaseConfig     `json:"database"`
	Server       ServerConfig       `json:"server"`
	Logging      LoggingConfig      `json:"logging"`
	Metrics      MetricsConfig      `json:"metrics"`
	Cache        CacheConfig        `json:"cache"`
	Connector    ConnectorConfig    `json:"connector"`
	Ingestion    IngestionConfig    `json:"ingestion"`
	Notification NotificationConfig `json:"notification"`
	Scheduler    SchedulerConfig    `json:"scheduler"`
}

type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
}

type ServerConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	BodyLimit       int           `json:"body_limit"`
	EnableMetrics   bool          `json:"enable_metrics"`
}

type LoggingConfig struct {
	Level         string `json:"level"`  // debug, info, warn, error
	Format        string `json:"format"` // json, text
	SchedulerFile string `json:"scheduler_file"`
	MaxSizeMB     int    `json:"max_size_mb"`
	MaxBackups    int    `json:"max_backups"`
	MaxAgeDays    int    `json:"max_age_days"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type CacheConfig struct {
	Enabled   bool          `json:"enabled"`
	Provider  string        `json:"provider"`
	RedisURL  string        `json:"redis_url"`
	RedisDB   int           `json:"redis_db"`
	SearchTTL time.Duration `json:"search_ttl"`
}

// ConnectorConfig configures the external tender source API client
type ConnectorConfig struct {
	BaseURL string        `json:"base_url"`
	APIKey  string        `json:"api_key"`
	Timeout time.Duration `json:"timeout"`
}

// IngestionConfig bounds connector-fetch retries during an ingestion batch
type IngestionConfig struct {
	Source       string        `json:"source"`
	MaxRetries   int           `json:"max_retries"`
	RetryBackoff time.Duration `json:"retry_backoff"`
}

// NotificationConfig bounds the delivery state machine
type NotificationConfig struct {
	MaxAttempts int `json:"max_attempts"`
}

// SchedulerConfig controls the background pipeline scheduler
type SchedulerConfig struct {
	Enabled        bool          `json:"enabled"`
	Interval       time.Duration `json:"interval"`
	JobBatchSize   int           `json:"job_batch_size"`
	RetryBatchSize int           `json:"retry_batch_size"`
}

// LoadProductionConfig loads configuration from environment variables,
// reading a local .env file first when present.
func LoadProductionConfig() (*ProductionConfig, error) {
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &ProductionConfig{
		Database: DatabaseConfig{
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnvString("DB_NAME", "tenderwatch"),
			User:            getEnvString("DB_USER", "postgres"),
			Password:        getEnvString("DB_PASSWORD", ""),
			SSLMode:         getEnvString("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 10*time.Minute),
		},
		Server: ServerConfig{
			Host:            getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second),
			BodyLimit:       getEnvInt("SERVER_BODY_LIMIT", 4*1024*1024),
			EnableMetrics:   getEnvBool("SERVER_ENABLE_METRICS", true),
		},
		Logging: LoggingConfig{
			Level:         getEnvString("LOG_LEVEL", "info"),
			Format:        getEnvString("LOG_FORMAT", "json"),
			SchedulerFile: getEnvString("LOG_SCHEDULER_FILE", "logs/pipeline_scheduler.log"),
			MaxSizeMB:     getEnvInt("LOG_MAX_SIZE_MB", 50),
			MaxBackups:    getEnvInt("LOG_MAX_BACKUPS", 5),
			MaxAgeDays:    getEnvInt("LOG_MAX_AGE_DAYS", 30),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Path:    getEnvString("METRICS_PATH", "/metrics"),
		},
		Cache: CacheConfig{
			Enabled:   getEnvBool("CACHE_ENABLED", false),
			Provider:  getEnvString("CACHE_PROVIDER", "redis"),
			RedisURL:  getEnvString("CACHE_REDIS_URL", "redis://localhost:6379"),
			RedisDB:   getEnvInt("CACHE_REDIS_DB", 0),
			SearchTTL: getEnvDuration("CACHE_SEARCH_TTL", 60*time.Second),
		},
		Connector: ConnectorConfig{
			BaseURL: getEnvString("CONNECTOR_BASE_URL", ""),
			APIKey:  getEnvString("CONNECTOR_API_KEY", ""),
			Timeout: getEnvDuration("CONNECTOR_TIMEOUT", 30*time.Second),
		},
		Ingestion: IngestionConfig{
			Source:       getEnvString("INGESTION_SOURCE", "g2b"),
			MaxRetries:   getEnvInt("INGESTION_MAX_RETRIES", 2),
			RetryBackoff: getEnvDuration("INGESTION_RETRY_BACKOFF", 500*time.Millisecond),
		},
		Notification: NotificationConfig{
			MaxAttempts: getEnvInt("NOTIFICATION_MAX_ATTEMPTS", 3),
		},
		Scheduler: SchedulerConfig{
			Enabled:        getEnvBool("SCHEDULER_ENABLED", true),
			Interval:       getEnvDuration("SCHEDULER_INTERVAL", 5*time.Minute),
			JobBatchSize:   getEnvInt("SCHEDULER_JOB_BATCH_SIZE", 100),
			RetryBatchSize: getEnvInt("SCHEDULER_RETRY_BATCH_SIZE", 100),
		},
	}

	if err := ValidateProductionConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadEnvFile() error {
	envFile := ".env"

	// Check if .env file exists
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		// .env file doesn't exist, continue with environment variables
		return nil
	}

	// Open .env file
	file, err := os.Open(envFile)
	if err != nil {
		return fmt.Errorf("failed to open .env file: %w", err)
	}
	defer file.Close()

	// Read file line by line
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse key=value pairs
		if strings.Contains(line, "=") {
			parts := strings.SplitN(line, "=", 2)
			if len(parts) == 2 {
				key := strings.TrimSpace(parts[0])
				value := strings.TrimSpace(parts[1])

				// Remove quotes if present
				if (strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`)) ||
					(strings.HasPrefix(value, `'`) && strings.HasSuffix(value, `'`)) {
					value = value[1 : len(value)-1]
				}

				// Set environment variable if not already set
				if os.Getenv(key) == "" {
					os.Setenv(key, value)
				}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading .env file: %w", err)
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// ValidateProductionConfig validates the production configuration
func ValidateProductionConfig(cfg *ProductionConfig) error {
	var errs []string

	if cfg.Database.Host == "" {
		errs = append(errs, "database host is required")
	}
	if cfg.Database.Name == "" {
		errs = append(errs, "database name is required")
	}
	if cfg.Database.User == "" {
		errs = append(errs, "database user is required")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server port must be between 1 and 65535")
	}
	if cfg.Ingestion.Source == "" {
		errs = append(errs, "ingestion source is required")
	}
	if cfg.Ingestion.MaxRetries < 0 {
		errs = append(errs, "ingestion max retries cannot be negative")
	}
	if cfg.Notification.MaxAttempts < 1 {
		errs = append(errs, "notification max attempts must be at least 1")
	}
	if cfg.Cache.Enabled && cfg.Cache.Provider == "redis" && cfg.Cache.RedisURL == "" {
		errs = append(errs, "redis url is required when cache is enabled")
	}
	if cfg.Scheduler.Enabled && cfg.Scheduler.Interval <= 0 {
		errs = append(errs, "scheduler interval must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}
