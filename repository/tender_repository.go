package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/tenderwatch/tenderwatch/models"
	"gorm.io/gorm"
)

// TenderRepositoryImpl implements TenderRepository
type TenderRepositoryImpl struct {
	*BaseRepository[models.Tender]
}

func NewTenderRepository(db *gorm.DB) TenderRepository {
	return &TenderRepositoryImpl{BaseRepository: NewBaseRepository[models.Tender](db)}
}

func (r *TenderRepositoryImpl) BySourceAndExternalID(ctx context.Context, source, externalID string) (*models.Tender, error) {
	db := r.getDB(ctx)
	var tender models.Tender
	err := db.Where("source = ? AND external_id = ?", source, externalID).Last(&tender).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find tender %s/%s: %w", source, externalID, err)
	}
	return &tender, nil
}

// UpdateLatest points the tender's cached latest-revision columns at the
// given revision. The latest pointers always reference the highest-numbered
// revision of either status.
func (r *TenderRepositoryImpl) UpdateLatest(ctx context.Context, tenderID uint, revision *models.TenderRevision) error {
	db := r.getDB(ctx)
	updates := map[string]any{
		"latest_revision_id":     revision.ID,
		"latest_revision_hash":   revision.RevisionHash,
		"latest_raw_hash":        revision.RawContentHash,
		"latest_normalized_hash": revision.NormalizedContentHash,
	}
	if err := db.Model(&models.Tender{}).Where("id = ?", tenderID).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update latest revision pointers for tender %d: %w", tenderID, err)
	}
	return nil
}
