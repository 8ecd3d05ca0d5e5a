package models

import "time"

// Attachment is a normalized file reference attached to a revision,
// deduplicated by (revision, filename, content hash).
type Attachment struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	TenderRevisionID uint      `gorm:"uniqueIndex:idx_attachments_dedup;not null" json:"tender_revision_id"`
	FileName         string    `gorm:"size:512;uniqueIndex:idx_attachments_dedup;not null" json:"file_name"`
	MimeType         string    `gorm:"size:128;not null;default:'application/octet-stream'" json:"mime_type"`
	FileURL          *string   `gorm:"type:text" json:"file_url,omitempty"`
	ContentHash      string    `gorm:"size:64;uniqueIndex:idx_attachments_dedup;not null" json:"content_hash"`
	CreatedAt        time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
}

func (Attachment) TableName() string { return "attachments" }
