package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tenderwatch/tenderwatch/models"
	"github.com/tenderwatch/tenderwatch/utils"
	"gorm.io/gorm"
)

// PipelineJobRepositoryImpl implements PipelineJobRepository
type PipelineJobRepositoryImpl struct {
	*BaseRepository[models.PipelineJob]
}

func NewPipelineJobRepository(db *gorm.DB) PipelineJobRepository {
	return &PipelineJobRepositoryImpl{BaseRepository: NewBaseRepository[models.PipelineJob](db)}
}

// EnqueueIfAbsent inserts the job unless the idempotency key is already
// present. Counts only new enqueues for the caller.
func (r *PipelineJobRepositoryImpl) EnqueueIfAbsent(ctx context.Context, job *models.PipelineJob) (bool, error) {
	db := r.getDB(ctx)

	var existing models.PipelineJob
	err := db.Where("idempotency_key = ?", job.IdempotencyKey).Last(&existing).Error
	if err == nil {
		*job = existing
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("failed to look up pipeline job: %w", err)
	}

	if err := db.Create(job).Error; err != nil {
		if IsDuplicateKey(err) {
			if lookupErr := db.Where("idempotency_key = ?", job.IdempotencyKey).Last(job).Error; lookupErr == nil {
				return false, nil
			}
		}
		return false, fmt.Errorf("failed to enqueue pipeline job: %w", err)
	}
	return true, nil
}

func (r *PipelineJobRepositoryImpl) ListPending(ctx context.Context, jobType string, now time.Time, limit int) ([]*models.PipelineJob, error) {
	if limit <= 0 {
		limit = 100
	}
	db := r.getDB(ctx)
	var jobs []*models.PipelineJob
	if err := db.Where("job_type = ? AND executed_at IS NULL AND scheduled_at <= ?", jobType, now).
		Order("scheduled_at ASC, id ASC").
		Limit(limit).
		Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to list pending pipeline jobs: %w", err)
	}
	return jobs, nil
}

func (r *PipelineJobRepositoryImpl) MarkExecuted(ctx context.Context, job *models.PipelineJob, execErr *string) error {
	db := r.getDB(ctx)
	job.ExecutedAt = utils.UTCNowPtr()
	job.Error = execErr
	if err := db.Save(job).Error; err != nil {
		return fmt.Errorf("failed to mark pipeline job %d executed: %w", job.ID, err)
	}
	return nil
}
