package models

import (
	"time"

	"github.com/lib/pq"
)

// IndexChunk is a per-attachment search chunk derived from a revision,
// deduplicated by (revision, chunk hash) so identical chunk content for the
// same revision is never re-inserted.
type IndexChunk struct {
	ID               uint   `gorm:"primaryKey" json:"id"`
	TenderRevisionID uint   `gorm:"uniqueIndex:idx_index_chunks_revision_hash;not null" json:"tender_revision_id"`
	ChunkHash        string `gorm:"size:64;uniqueIndex:idx_index_chunks_revision_hash;not null" json:"chunk_hash"`
	Content          string `gorm:"type:text;not null" json:"content"`

	// VectorStub stands in for an externally computed embedding.
	VectorStub pq.Float64Array `gorm:"type:float8[];not null;default:'{}'" json:"vector_stub"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
}

func (IndexChunk) TableName() string { return "index_chunks" }
