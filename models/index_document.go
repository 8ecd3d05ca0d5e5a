package models

import (
	"time"

	"github.com/lib/pq"
)

// DeadlineSentinel sorts and filters missing deadlines after every real
// YYYY-MM-DD date.
const DeadlineSentinel = "9999-99-99"

// IndexDocument is the denormalized search projection of one revision.
// Exactly one row exists per tender_revision_id; reindexing updates it in
// place and never overwrites another revision's row.
type IndexDocument struct {
	ID               uint   `gorm:"primaryKey" json:"id"`
	TenderRevisionID uint   `gorm:"uniqueIndex:idx_index_documents_revision;not null" json:"tender_revision_id"`
	TenderID         uint   `gorm:"index:idx_index_documents_tender;not null" json:"tender_id"`
	Source           string `gorm:"size:64;index:idx_index_documents_source;not null" json:"source"`

	Title     string         `gorm:"type:text;not null" json:"title"`
	Agency    *string        `gorm:"size:255" json:"agency,omitempty"`
	Deadline  string         `gorm:"size:10;index:idx_index_documents_deadline;not null;default:'9999-99-99'" json:"deadline"`
	Region    *string        `gorm:"size:128;index:idx_index_documents_region" json:"region,omitempty"`
	Category  *string        `gorm:"size:128;index:idx_index_documents_category" json:"category,omitempty"`
	BudgetMin *int64         `json:"budget_min,omitempty"`
	BudgetMax *int64         `json:"budget_max,omitempty"`
	SourceURLs pq.StringArray `gorm:"type:text[];not null;default:'{}'" json:"source_urls"`

	// SearchText is the space-joined concatenation of the present fields,
	// used for keyword substring matching.
	SearchText string `gorm:"type:text;not null" json:"search_text"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"updated_at"`
}

func (IndexDocument) TableName() string { return "index_documents" }

// IndexDocumentFilter represents filter criteria for search queries
type IndexDocumentFilter struct {
	Keyword     *string
	Region      *string
	Category    *string
	DeadlineLTE *string
	Source      *string
}
