package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/tenderwatch/tenderwatch/models"
	"gorm.io/gorm"
)

// TenderRevisionRepositoryImpl implements TenderRevisionRepository
type TenderRevisionRepositoryImpl struct {
	*BaseRepository[models.TenderRevision]
}

func NewTenderRevisionRepository(db *gorm.DB) TenderRevisionRepository {
	return &TenderRevisionRepositoryImpl{BaseRepository: NewBaseRepository[models.TenderRevision](db)}
}

func (r *TenderRevisionRepositoryImpl) ByTenderAndRevisionHash(ctx context.Context, tenderID uint, revisionHash string) (*models.TenderRevision, error) {
	db := r.getDB(ctx)
	var revision models.TenderRevision
	err := db.Where("tender_id = ? AND revision_hash = ?", tenderID, revisionHash).Last(&revision).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find revision by hash for tender %d: %w", tenderID, err)
	}
	return &revision, nil
}

func (r *TenderRevisionRepositoryImpl) ByTenderAndRawHash(ctx context.Context, tenderID uint, rawHash string) (*models.TenderRevision, error) {
	db := r.getDB(ctx)
	var revision models.TenderRevision
	err := db.Where("tender_id = ? AND raw_content_hash = ?", tenderID, rawHash).
		Order("revision_number DESC").
		First(&revision).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find revision by raw hash for tender %d: %w", tenderID, err)
	}
	return &revision, nil
}

func (r *TenderRevisionRepositoryImpl) MaxRevisionNumber(ctx context.Context, tenderID uint) (int, error) {
	db := r.getDB(ctx)
	var max *int
	err := db.Model(&models.TenderRevision{}).
		Where("tender_id = ?", tenderID).
		Select("MAX(revision_number)").
		Scan(&max).Error
	if err != nil {
		return 0, fmt.Errorf("failed to get max revision number for tender %d: %w", tenderID, err)
	}
	if max == nil {
		return 0, nil
	}
	return *max, nil
}

// ListForReindex surfaces the latest SUCCESS revision per tender, which is
// the only revision the search projection should reflect.
func (r *TenderRevisionRepositoryImpl) ListForReindex(ctx context.Context, source *string) ([]*models.TenderRevision, error) {
	db := r.getDB(ctx)

	sub := db.Model(&models.TenderRevision{}).
		Select("tender_id, MAX(revision_number) AS max_number").
		Where("revision_status = ?", models.RevisionStatusSuccess.String()).
		Group("tender_id")

	query := db.Model(&models.TenderRevision{}).
		Joins("JOIN (?) latest ON tender_revisions.tender_id = latest.tender_id AND tender_revisions.revision_number = latest.max_number", sub).
		Where("tender_revisions.revision_status = ?", models.RevisionStatusSuccess.String())

	if source != nil && *source != "" {
		query = query.Joins("JOIN tenders ON tenders.id = tender_revisions.tender_id").
			Where("tenders.source = ?", *source)
	}

	var revisions []*models.TenderRevision
	if err := query.Order("tender_revisions.tender_id ASC").Find(&revisions).Error; err != nil {
		return nil, fmt.Errorf("failed to list revisions for reindex: %w", err)
	}
	return revisions, nil
}

func (r *TenderRevisionRepositoryImpl) ContextByID(ctx context.Context, id uint) (*models.TenderRevision, *models.Tender, error) {
	revision, err := r.ByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if revision == nil {
		return nil, nil, nil
	}

	db := r.getDB(ctx)
	var tender models.Tender
	if err := db.Last(&tender, revision.TenderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return revision, nil, nil
		}
		return nil, nil, fmt.Errorf("failed to load tender %d for revision %d: %w", revision.TenderID, id, err)
	}
	return revision, &tender, nil
}
