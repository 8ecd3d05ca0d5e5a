package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/tenderwatch/tenderwatch/models"
	"gorm.io/gorm"
)

// IndexDocumentRepositoryImpl implements IndexDocumentRepository
type IndexDocumentRepositoryImpl struct {
	*BaseRepository[models.IndexDocument]
}

func NewIndexDocumentRepository(db *gorm.DB) IndexDocumentRepository {
	return &IndexDocumentRepositoryImpl{BaseRepository: NewBaseRepository[models.IndexDocument](db)}
}

func (r *IndexDocumentRepositoryImpl) ByRevisionID(ctx context.Context, revisionID uint) (*models.IndexDocument, error) {
	db := r.getDB(ctx)
	var doc models.IndexDocument
	err := db.Where("tender_revision_id = ?", revisionID).Last(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find index document for revision %d: %w", revisionID, err)
	}
	return &doc, nil
}

// Upsert inserts the document, or updates the existing row for the same
// revision in place. A document row belongs to one revision forever.
func (r *IndexDocumentRepositoryImpl) Upsert(ctx context.Context, doc *models.IndexDocument) (bool, error) {
	db := r.getDB(ctx)

	existing, err := r.ByRevisionID(ctx, doc.TenderRevisionID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		doc.ID = existing.ID
		doc.CreatedAt = existing.CreatedAt
		if err := db.Save(doc).Error; err != nil {
			return false, fmt.Errorf("failed to update index document: %w", err)
		}
		return false, nil
	}

	if err := db.Create(doc).Error; err != nil {
		if IsDuplicateKey(err) {
			if lookupErr := db.Where("tender_revision_id = ?", doc.TenderRevisionID).Last(doc).Error; lookupErr == nil {
				return false, nil
			}
		}
		return false, fmt.Errorf("failed to save index document: %w", err)
	}
	return true, nil
}

// Search runs keyword/facet filtering over the denormalized documents.
// Results are ordered by deadline ascending; the sentinel pushes documents
// without a deadline to the end.
func (r *IndexDocumentRepositoryImpl) Search(ctx context.Context, filter models.IndexDocumentFilter, limit int) ([]*models.IndexDocument, error) {
	db := r.getDB(ctx)

	query := db.Model(&models.IndexDocument{})
	if filter.Keyword != nil && *filter.Keyword != "" {
		query = query.Where("search_text LIKE ?", "%"+*filter.Keyword+"%")
	}
	if filter.Region != nil && *filter.Region != "" {
		query = query.Where("region = ?", *filter.Region)
	}
	if filter.Category != nil && *filter.Category != "" {
		query = query.Where("category = ?", *filter.Category)
	}
	if filter.DeadlineLTE != nil && *filter.DeadlineLTE != "" {
		query = query.Where("deadline <= ?", *filter.DeadlineLTE)
	}
	if filter.Source != nil && *filter.Source != "" {
		query = query.Where("source = ?", *filter.Source)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var docs []*models.IndexDocument
	if err := query.Order("deadline ASC, id ASC").Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("failed to search index documents: %w", err)
	}
	return docs, nil
}

// IndexChunkRepositoryImpl implements IndexChunkRepository
type IndexChunkRepositoryImpl struct {
	*BaseRepository[models.IndexChunk]
}

func NewIndexChunkRepository(db *gorm.DB) IndexChunkRepository {
	return &IndexChunkRepositoryImpl{BaseRepository: NewBaseRepository[models.IndexChunk](db)}
}

// Upsert inserts the chunk unless one with the same (revision, chunk hash)
// already exists.
func (r *IndexChunkRepositoryImpl) Upsert(ctx context.Context, chunk *models.IndexChunk) (bool, error) {
	db := r.getDB(ctx)

	var existing models.IndexChunk
	err := db.Where("tender_revision_id = ? AND chunk_hash = ?", chunk.TenderRevisionID, chunk.ChunkHash).
		Last(&existing).Error
	if err == nil {
		*chunk = existing
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("failed to look up index chunk: %w", err)
	}

	if err := db.Create(chunk).Error; err != nil {
		if IsDuplicateKey(err) {
			if lookupErr := db.Where("tender_revision_id = ? AND chunk_hash = ?", chunk.TenderRevisionID, chunk.ChunkHash).
				Last(chunk).Error; lookupErr == nil {
				return false, nil
			}
		}
		return false, fmt.Errorf("failed to save index chunk: %w", err)
	}
	return true, nil
}

func (r *IndexChunkRepositoryImpl) ListByRevision(ctx context.Context, revisionID uint) ([]*models.IndexChunk, error) {
	db := r.getDB(ctx)
	var chunks []*models.IndexChunk
	if err := db.Where("tender_revision_id = ?", revisionID).
		Order("id ASC").
		Find(&chunks).Error; err != nil {
		return nil, fmt.Errorf("failed to list chunks for revision %d: %w", revisionID, err)
	}
	return chunks, nil
}
