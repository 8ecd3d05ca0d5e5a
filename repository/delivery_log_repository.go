package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tenderwatch/tenderwatch/models"
	"gorm.io/gorm"
)

// DeliveryLogRepositoryImpl implements DeliveryLogRepository
type DeliveryLogRepositoryImpl struct {
	*BaseRepository[models.DeliveryLog]
}

func NewDeliveryLogRepository(db *gorm.DB) DeliveryLogRepository {
	return &DeliveryLogRepositoryImpl{BaseRepository: NewBaseRepository[models.DeliveryLog](db)}
}

func (r *DeliveryLogRepositoryImpl) ByEventKey(ctx context.Context, channel, eventKey string) (*models.DeliveryLog, error) {
	db := r.getDB(ctx)
	var log models.DeliveryLog
	err := db.Where("channel = ? AND event_key = ?", channel, eventKey).Last(&log).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find delivery log by event key: %w", err)
	}
	return &log, nil
}

func (r *DeliveryLogRepositoryImpl) ListDueRetries(ctx context.Context, now time.Time, limit int) ([]*models.DeliveryLog, error) {
	if limit <= 0 {
		limit = 100
	}
	db := r.getDB(ctx)
	var logs []*models.DeliveryLog
	if err := db.Where("delivery_status = ? AND next_retry_at IS NOT NULL AND next_retry_at <= ? AND attempt_count < max_attempts",
		models.DeliveryStatusFailed.String(), now).
		Order("next_retry_at ASC, id ASC").
		Limit(limit).
		Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to list due delivery retries: %w", err)
	}
	return logs, nil
}
