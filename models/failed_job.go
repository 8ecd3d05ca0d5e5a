package models

import "time"

// FailedJob records a tender whose connector fetch exhausted its retries
// during an ingestion batch. Keyed by hash(source:tender_id) so repeated
// failures for the same tender update one row instead of piling up.
type FailedJob struct {
	ID               uint   `gorm:"primaryKey" json:"id"`
	JobKey           string `gorm:"size:64;uniqueIndex:idx_failed_jobs_key;not null" json:"job_key"`
	Source           string `gorm:"size:64;index:idx_failed_jobs_source;not null" json:"source"`
	TenderExternalID string `gorm:"size:128;not null" json:"tender_external_id"`
	Stage            string `gorm:"size:32;not null" json:"stage"`
	Error            string `gorm:"type:text;not null" json:"error"`
	FailureCount     int    `gorm:"not null;default:1" json:"failure_count"`

	FailedAt  time.Time `gorm:"not null" json:"failed_at"`
	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"updated_at"`
}

func (FailedJob) TableName() string { return "failed_jobs" }
