package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// RevisionStatus represents the terminal state of a tender revision
type RevisionStatus string

const (
	RevisionStatusSuccess RevisionStatus = "SUCCESS"
	RevisionStatusFailed  RevisionStatus = "FAILED"
)

// String returns the string representation of the status
func (s RevisionStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s RevisionStatus) Valid() bool {
	switch s {
	case RevisionStatusSuccess, RevisionStatusFailed:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for RevisionStatus
func (s *RevisionStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = RevisionStatus(v)
	case []byte:
		*s = RevisionStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into RevisionStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for RevisionStatus
func (s RevisionStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid RevisionStatus: %s", s)
	}
	return string(s), nil
}

// TenderRevision is an append-only snapshot of one distinct content state of a
// tender. Rows are immutable once written; RevisionHash is the idempotency key
// for the stage that produced the row.
type TenderRevision struct {
	ID       uint `gorm:"primaryKey" json:"id"`
	TenderID uint `gorm:"uniqueIndex:idx_tender_revisions_tender_hash;index:idx_tender_revisions_tender_number;not null" json:"tender_id"`

	RevisionNumber        int    `gorm:"index:idx_tender_revisions_tender_number;not null" json:"revision_number"`
	RevisionHash          string `gorm:"size:64;uniqueIndex:idx_tender_revisions_tender_hash;not null" json:"revision_hash"`
	RawContentHash        string `gorm:"size:64;index:idx_tender_revisions_raw_hash;not null" json:"raw_content_hash"`
	NormalizedContentHash string `gorm:"size:64;not null" json:"normalized_content_hash"`

	RawSnapshot       json.RawMessage `gorm:"type:jsonb" json:"raw_snapshot,omitempty"`
	CanonicalSnapshot json.RawMessage `gorm:"type:jsonb" json:"canonical_snapshot,omitempty"`

	RevisionStatus RevisionStatus `gorm:"size:16;not null;default:'SUCCESS'" json:"revision_status"`
	ErrorMessage   *string        `gorm:"type:text" json:"error_message,omitempty"`

	ObservedAt time.Time `gorm:"not null" json:"observed_at"`
	CreatedAt  time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
}

func (TenderRevision) TableName() string { return "tender_revisions" }

// TenderRevisionFilter represents filter criteria for revision queries
type TenderRevisionFilter struct {
	TenderID       *uint
	RevisionStatus *RevisionStatus
	RawContentHash *string
}
