package models

import (
	"encoding/json"
	"time"
)

// RawPayload is a content-addressed snapshot of exactly what was fetched from
// the source, keyed by (revision, content hash) so repeated ingestion of
// byte-identical data is a no-op.
type RawPayload struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	TenderRevisionID uint            `gorm:"uniqueIndex:idx_raw_payloads_revision_hash;not null" json:"tender_revision_id"`
	ContentHash      string          `gorm:"size:64;uniqueIndex:idx_raw_payloads_revision_hash;not null" json:"content_hash"`
	Payload          json.RawMessage `gorm:"type:jsonb;not null" json:"payload"`
	FetchedAt        time.Time       `gorm:"not null" json:"fetched_at"`
	CreatedAt        time.Time       `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
}

func (RawPayload) TableName() string { return "raw_payloads" }
