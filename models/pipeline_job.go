package models

import (
	"encoding/json"
	"time"
)

// Pipeline job types
const (
	JobTypeNormalizeTender = "normalize_tender"
)

// PipelineJob is a queued unit of deferred pipeline work. The idempotency key
// makes enqueueing a no-op when an identical job already exists.
type PipelineJob struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	JobType        string `gorm:"size:64;index:idx_pipeline_jobs_type;not null" json:"job_type"`
	IdempotencyKey string `gorm:"size:64;uniqueIndex:idx_pipeline_jobs_idempotency_key;not null" json:"idempotency_key"`

	Source           string          `gorm:"size:64;not null" json:"source"`
	TenderExternalID string          `gorm:"size:128;not null" json:"tender_external_id"`
	TenderID         uint            `gorm:"index:idx_pipeline_jobs_tender;not null" json:"tender_id"`
	Payload          json.RawMessage `gorm:"type:jsonb" json:"payload,omitempty"`

	ScheduledAt time.Time  `gorm:"index:idx_pipeline_jobs_scheduled;not null" json:"scheduled_at"`
	ExecutedAt  *time.Time `json:"executed_at,omitempty"`
	Error       *string    `gorm:"type:text" json:"error,omitempty"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"updated_at"`
}

func (PipelineJob) TableName() string { return "pipeline_jobs" }
