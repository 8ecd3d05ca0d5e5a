// Package scheduler provides the background driver that keeps the pipeline
// moving without operator intervention.
package scheduler

import (
	"context"
	"io"
	"log"
	"os"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tenderwatch/tenderwatch/app/middleware"
	businessflow "github.com/tenderwatch/tenderwatch/business_flow"
	"github.com/tenderwatch/tenderwatch/config"
)

// PipelineScheduler periodically drives the pipeline end to end: it ingests
// the configured source, drains queued normalization jobs, and re-drives
// notification deliveries whose retry timestamp has passed.
type PipelineScheduler struct {
	ingestionFlow     businessflow.IngestionFlow
	normalizationFlow businessflow.NormalizationFlow
	matchNotifyFlow   businessflow.MatchNotifyFlow

	cfg    config.SchedulerConfig
	source string
	logger *log.Logger
}

// NewPipelineScheduler creates a new pipeline scheduler
func NewPipelineScheduler(
	ingestionFlow businessflow.IngestionFlow,
	normalizationFlow businessflow.NormalizationFlow,
	matchNotifyFlow businessflow.MatchNotifyFlow,
	cfg config.SchedulerConfig,
	source string,
	logCfg config.LoggingConfig,
) *PipelineScheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.JobBatchSize <= 0 {
		cfg.JobBatchSize = 100
	}
	if cfg.RetryBatchSize <= 0 {
		cfg.RetryBatchSize = 100
	}

	return &PipelineScheduler{
		ingestionFlow:     ingestionFlow,
		normalizationFlow: normalizationFlow,
		matchNotifyFlow:   matchNotifyFlow,
		cfg:               cfg,
		source:            source,
		logger:            newSchedulerLogger(logCfg),
	}
}

// newSchedulerLogger writes to stdout and a rotating file so pipeline runs
// stay inspectable across restarts.
func newSchedulerLogger(logCfg config.LoggingConfig) *log.Logger {
	writer := io.MultiWriter(os.Stdout, &lumberjack.Logger{
		Filename:   logCfg.SchedulerFile,
		MaxSize:    logCfg.MaxSizeMB,
		MaxBackups: logCfg.MaxBackups,
		MaxAge:     logCfg.MaxAgeDays,
		Compress:   true,
	})
	return log.New(writer, "scheduler ", log.LstdFlags|log.Lmicroseconds|log.LUTC)
}

// Start launches the scheduler loop in a background goroutine and returns a stop function
func (s *PipelineScheduler) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		s.runOnce(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runOnce(ctx)
			}
		}
	}()

	return cancel
}

func (s *PipelineScheduler) runOnce(ctx context.Context) {
	s.runIngestion(ctx)
	s.drainNormalizeJobs(ctx)
	s.retryDueDeliveries(ctx)
}

func (s *PipelineScheduler) runIngestion(ctx context.Context) {
	result, err := s.ingestionFlow.Ingest(ctx, s.source)
	if err != nil {
		middleware.RecordPipelineRun("ingest", "error")
		s.logger.Printf("ingestion for %s failed: %v", s.source, err)
		return
	}

	middleware.RecordPipelineRun("ingest", "ok")
	if result.CreatedRevisions > 0 || result.Failed > 0 {
		s.logger.Printf("ingested %s: total=%d created=%d skipped=%d queued=%d failed=%d",
			result.Source, result.Total, result.CreatedRevisions, result.SkippedRevisions, result.QueuedJobs, result.Failed)
	}
}

func (s *PipelineScheduler) drainNormalizeJobs(ctx context.Context) {
	stats, err := s.normalizationFlow.ProcessPending(ctx, s.cfg.JobBatchSize)
	if err != nil {
		middleware.RecordPipelineRun("normalize", "error")
		s.logger.Printf("normalize drain failed: %v", err)
		return
	}

	middleware.RecordPipelineRun("normalize", "ok")
	if stats.Processed > 0 {
		s.logger.Printf("normalized %d jobs: succeeded=%d noop=%d failed=%d",
			stats.Processed, stats.Succeeded, stats.Noop, stats.Failed)
	}
}

func (s *PipelineScheduler) retryDueDeliveries(ctx context.Context) {
	stats, err := s.matchNotifyFlow.RetryDue(ctx, s.cfg.RetryBatchSize)
	if err != nil {
		middleware.RecordPipelineRun("retry_due", "error")
		s.logger.Printf("delivery retry pass failed: %v", err)
		return
	}

	middleware.RecordPipelineRun("retry_due", "ok")
	if stats.NotificationsSent > 0 || stats.NotificationsFailed > 0 {
		s.logger.Printf("delivery retries: sent=%d skipped=%d failed=%d",
			stats.NotificationsSent, stats.NotificationsSkipped, stats.NotificationsFailed)
	}
}
