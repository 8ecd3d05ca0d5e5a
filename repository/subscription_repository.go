package repository

import (
	"context"
	"fmt"

	"github.com/tenderwatch/tenderwatch/models"
	"gorm.io/gorm"
)

// SubscriptionRepositoryImpl implements SubscriptionRepository
type SubscriptionRepositoryImpl struct {
	*BaseRepository[models.Subscription]
}

func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &SubscriptionRepositoryImpl{BaseRepository: NewBaseRepository[models.Subscription](db)}
}

func (r *SubscriptionRepositoryImpl) ListActive(ctx context.Context) ([]*models.Subscription, error) {
	db := r.getDB(ctx)
	var subscriptions []*models.Subscription
	if err := db.Where("is_active = ?", true).
		Order("id ASC").
		Find(&subscriptions).Error; err != nil {
		return nil, fmt.Errorf("failed to list active subscriptions: %w", err)
	}
	return subscriptions, nil
}
