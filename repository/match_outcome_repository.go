package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/tenderwatch/tenderwatch/models"
	"gorm.io/gorm"
)

// MatchOutcomeRepositoryImpl implements MatchOutcomeRepository
type MatchOutcomeRepositoryImpl struct {
	*BaseRepository[models.MatchOutcome]
}

func NewMatchOutcomeRepository(db *gorm.DB) MatchOutcomeRepository {
	return &MatchOutcomeRepositoryImpl{BaseRepository: NewBaseRepository[models.MatchOutcome](db)}
}

func (r *MatchOutcomeRepositoryImpl) ByPair(ctx context.Context, subscriptionID, revisionID uint) (*models.MatchOutcome, error) {
	db := r.getDB(ctx)
	var outcome models.MatchOutcome
	err := db.Where("subscription_id = ? AND tender_revision_id = ?", subscriptionID, revisionID).
		Last(&outcome).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find match outcome: %w", err)
	}
	return &outcome, nil
}

// Upsert creates or replaces the outcome for one (subscription, revision)
// pair so re-scoring is idempotent.
func (r *MatchOutcomeRepositoryImpl) Upsert(ctx context.Context, outcome *models.MatchOutcome) error {
	db := r.getDB(ctx)

	existing, err := r.ByPair(ctx, outcome.SubscriptionID, outcome.TenderRevisionID)
	if err != nil {
		return err
	}
	if existing != nil {
		outcome.ID = existing.ID
		outcome.CreatedAt = existing.CreatedAt
		if err := db.Save(outcome).Error; err != nil {
			return fmt.Errorf("failed to update match outcome: %w", err)
		}
		return nil
	}

	if err := db.Create(outcome).Error; err != nil {
		if IsDuplicateKey(err) {
			if lookupErr := db.Where("subscription_id = ? AND tender_revision_id = ?",
				outcome.SubscriptionID, outcome.TenderRevisionID).Last(outcome).Error; lookupErr == nil {
				return nil
			}
		}
		return fmt.Errorf("failed to save match outcome: %w", err)
	}
	return nil
}
