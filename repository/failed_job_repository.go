package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/tenderwatch/tenderwatch/models"
	"gorm.io/gorm"
)

// FailedJobRepositoryImpl implements FailedJobRepository
type FailedJobRepositoryImpl struct {
	*BaseRepository[models.FailedJob]
}

func NewFailedJobRepository(db *gorm.DB) FailedJobRepository {
	return &FailedJobRepositoryImpl{BaseRepository: NewBaseRepository[models.FailedJob](db)}
}

// UpsertByKey records the failure, bumping the failure count when the same
// tender has already failed before.
func (r *FailedJobRepositoryImpl) UpsertByKey(ctx context.Context, job *models.FailedJob) error {
	db := r.getDB(ctx)

	var existing models.FailedJob
	err := db.Where("job_key = ?", job.JobKey).Last(&existing).Error
	if err == nil {
		existing.Error = job.Error
		existing.FailedAt = job.FailedAt
		existing.FailureCount++
		if saveErr := db.Save(&existing).Error; saveErr != nil {
			return fmt.Errorf("failed to update failed job record: %w", saveErr)
		}
		*job = existing
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to look up failed job record: %w", err)
	}

	if err := db.Create(job).Error; err != nil {
		if IsDuplicateKey(err) {
			return r.UpsertByKey(ctx, job)
		}
		return fmt.Errorf("failed to save failed job record: %w", err)
	}
	return nil
}

func (r *FailedJobRepositoryImpl) ListBySource(ctx context.Context, source string, limit int) ([]*models.FailedJob, error) {
	if limit <= 0 {
		limit = 100
	}
	db := r.getDB(ctx)
	var jobs []*models.FailedJob
	if err := db.Where("source = ?", source).
		Order("failed_at DESC").
		Limit(limit).
		Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to list failed jobs for source %s: %w", source, err)
	}
	return jobs, nil
}
