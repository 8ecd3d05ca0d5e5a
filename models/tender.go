package models

import (
	"time"

	"github.com/google/uuid"
)

// Tender represents one procurement notice per (source, external tender id).
// It is created on first sighting, updated on every later sighting, never deleted.
// The Latest* columns cache the highest-numbered revision for fast change detection.
type Tender struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UUID       uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_tenders_uuid;not null" json:"uuid"`
	Source     string    `gorm:"size:64;uniqueIndex:idx_tenders_source_external_id;not null" json:"source"`
	ExternalID string    `gorm:"size:128;uniqueIndex:idx_tenders_source_external_id;not null" json:"external_id"`

	Title  string  `gorm:"type:text;not null" json:"title"`
	Agency *string `gorm:"size:255" json:"agency,omitempty"`
	Status *string `gorm:"size:64" json:"status,omitempty"`

	LatestRevisionID     *uint   `gorm:"index:idx_tenders_latest_revision_id" json:"latest_revision_id,omitempty"`
	LatestRevisionHash   *string `gorm:"size:64" json:"latest_revision_hash,omitempty"`
	LatestRawHash        *string `gorm:"size:64" json:"latest_raw_hash,omitempty"`
	LatestNormalizedHash *string `gorm:"size:64" json:"latest_normalized_hash,omitempty"`

	FirstSeenAt time.Time `gorm:"not null" json:"first_seen_at"`
	LastSeenAt  time.Time `gorm:"not null" json:"last_seen_at"`
	CreatedAt   time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"updated_at"`
}

func (Tender) TableName() string { return "tenders" }

// TenderFilter represents filter criteria for tender queries
type TenderFilter struct {
	Source     *string
	ExternalID *string
	Agency     *string
	Status     *string
}
