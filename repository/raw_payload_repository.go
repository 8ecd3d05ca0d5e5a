package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/tenderwatch/tenderwatch/models"
	"gorm.io/gorm"
)

// RawPayloadRepositoryImpl implements RawPayloadRepository
type RawPayloadRepositoryImpl struct {
	*BaseRepository[models.RawPayload]
}

func NewRawPayloadRepository(db *gorm.DB) RawPayloadRepository {
	return &RawPayloadRepositoryImpl{BaseRepository: NewBaseRepository[models.RawPayload](db)}
}

// Upsert stores the snapshot unless one with the same (revision, content hash)
// already exists.
func (r *RawPayloadRepositoryImpl) Upsert(ctx context.Context, payload *models.RawPayload) (bool, error) {
	db := r.getDB(ctx)

	var existing models.RawPayload
	err := db.Where("tender_revision_id = ? AND content_hash = ?", payload.TenderRevisionID, payload.ContentHash).
		Last(&existing).Error
	if err == nil {
		*payload = existing
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("failed to look up raw payload: %w", err)
	}

	if err := db.Create(payload).Error; err != nil {
		if IsDuplicateKey(err) {
			// Lost the race; the surviving row is equivalent.
			if lookupErr := db.Where("tender_revision_id = ? AND content_hash = ?", payload.TenderRevisionID, payload.ContentHash).
				Last(payload).Error; lookupErr == nil {
				return false, nil
			}
		}
		return false, fmt.Errorf("failed to save raw payload: %w", err)
	}
	return true, nil
}
