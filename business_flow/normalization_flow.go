package businessflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/tenderwatch/tenderwatch/app/dto"
	"github.com/tenderwatch/tenderwatch/models"
	"github.com/tenderwatch/tenderwatch/repository"
	"github.com/tenderwatch/tenderwatch/utils"
)

// NormalizationFlow turns raw payloads into canonical revisions. Change
// detection runs on the canonical content, so cosmetic raw differences
// collapse to NOOP, and parse failures become terminal FAILED revisions
// instead of errors.
type NormalizationFlow interface {
	NormalizeOne(ctx context.Context, source string, tenderID uint, tenderExternalID string, rawPayload map[string]any, observedAt time.Time) (*dto.NormalizationResult, error)
	// ProcessPending drains up to limit queued normalize jobs.
	ProcessPending(ctx context.Context, limit int) (*dto.ProcessPendingStats, error)
}

// NormalizationFlowImpl implements the normalization business flow
type NormalizationFlowImpl struct {
	tenderRepo     repository.TenderRepository
	revisionRepo   repository.TenderRevisionRepository
	rawPayloadRepo repository.RawPayloadRepository
	attachmentRepo repository.AttachmentRepository
	jobRepo        repository.PipelineJobRepository
	db             *gorm.DB
}

// NewNormalizationFlow creates a new normalization flow with injected dependencies
func NewNormalizationFlow(
	tenderRepo repository.TenderRepository,
	revisionRepo repository.TenderRevisionRepository,
	rawPayloadRepo repository.RawPayloadRepository,
	attachmentRepo repository.AttachmentRepository,
	jobRepo repository.PipelineJobRepository,
	db *gorm.DB,
) NormalizationFlow {
	return &NormalizationFlowImpl{
		tenderRepo:     tenderRepo,
		revisionRepo:   revisionRepo,
		rawPayloadRepo: rawPayloadRepo,
		attachmentRepo: attachmentRepo,
		jobRepo:        jobRepo,
		db:             db,
	}
}

// NormalizeOne normalizes one raw payload for one tender. The returned error
// covers store failures only; a malformed payload yields a FAILED result.
func (f *NormalizationFlowImpl) NormalizeOne(ctx context.Context, source string, tenderID uint, tenderExternalID string, rawPayload map[string]any, observedAt time.Time) (*dto.NormalizationResult, error) {
	rawHash, err := utils.StableHash(rawPayload)
	if err != nil {
		return nil, fmt.Errorf("failed to hash raw payload: %w", err)
	}

	rawSnapshot, err := json.Marshal(rawPayload)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize raw payload: %w", err)
	}

	canonical, attachments, parseErr := ParseTenderDetail(rawPayload)
	if parseErr != nil {
		return f.recordParseFailure(ctx, source, tenderID, tenderExternalID, rawHash, rawSnapshot, parseErr, observedAt)
	}

	normalizedHash, err := utils.StableHash(canonical)
	if err != nil {
		return nil, fmt.Errorf("failed to hash canonical record: %w", err)
	}
	revisionHash := utils.KeyHash("normalize", source, tenderExternalID, normalizedHash)

	existing, err := f.revisionRepo.ByTenderAndRevisionHash(ctx, tenderID, revisionHash)
	if err != nil {
		return nil, fmt.Errorf("failed to look up revision: %w", err)
	}
	if existing != nil {
		return &dto.NormalizationResult{
			Status:       dto.NormalizationNoop,
			RevisionID:   existing.ID,
			RevisionHash: existing.RevisionHash,
		}, nil
	}

	canonicalSnapshot, err := json.Marshal(canonical)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize canonical record: %w", err)
	}

	var result *dto.NormalizationResult
	err = runInTransaction(ctx, f.db, func(txCtx context.Context) error {
		revision, created, err := f.appendRevision(txCtx, &models.TenderRevision{
			TenderID:              tenderID,
			RevisionHash:          revisionHash,
			RawContentHash:        rawHash,
			NormalizedContentHash: normalizedHash,
			RawSnapshot:           rawSnapshot,
			CanonicalSnapshot:     canonicalSnapshot,
			RevisionStatus:        models.RevisionStatusSuccess,
			ObservedAt:            observedAt,
		})
		if err != nil {
			return err
		}
		if !created {
			result = &dto.NormalizationResult{
				Status:       dto.NormalizationNoop,
				RevisionID:   revision.ID,
				RevisionHash: revision.RevisionHash,
			}
			return nil
		}

		if err := f.tenderRepo.UpdateLatest(txCtx, tenderID, revision); err != nil {
			return fmt.Errorf("failed to update latest pointers: %w", err)
		}

		if _, err := f.rawPayloadRepo.Upsert(txCtx, &models.RawPayload{
			TenderRevisionID: revision.ID,
			ContentHash:      rawHash,
			Payload:          rawSnapshot,
			FetchedAt:        observedAt,
		}); err != nil {
			return fmt.Errorf("failed to persist raw payload: %w", err)
		}

		for _, att := range attachments {
			if _, err := f.attachmentRepo.Upsert(txCtx, &models.Attachment{
				TenderRevisionID: revision.ID,
				FileName:         att.FileName,
				MimeType:         att.MimeType,
				FileURL:          att.FileURL,
				ContentHash:      att.ContentHash,
			}); err != nil {
				return fmt.Errorf("failed to persist attachment %s: %w", att.FileName, err)
			}
		}

		result = &dto.NormalizationResult{
			Status:          dto.NormalizationSuccess,
			RevisionID:      revision.ID,
			RevisionHash:    revision.RevisionHash,
			CreatedRevision: true,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// recordParseFailure writes at most one terminal FAILED revision per
// (tender, raw content) pair, keeping the raw payload for inspection.
func (f *NormalizationFlowImpl) recordParseFailure(ctx context.Context, source string, tenderID uint, tenderExternalID, rawHash string, rawSnapshot json.RawMessage, parseErr error, observedAt time.Time) (*dto.NormalizationResult, error) {
	failedHash := utils.KeyHash("normalize_failed", source, tenderExternalID, rawHash)

	existing, err := f.revisionRepo.ByTenderAndRevisionHash(ctx, tenderID, failedHash)
	if err != nil {
		return nil, fmt.Errorf("failed to look up failed revision: %w", err)
	}
	if existing != nil {
		return &dto.NormalizationResult{
			Status:       dto.NormalizationFailed,
			RevisionID:   existing.ID,
			RevisionHash: existing.RevisionHash,
		}, nil
	}

	var result *dto.NormalizationResult
	err = runInTransaction(ctx, f.db, func(txCtx context.Context) error {
		message := parseErr.Error()
		revision, created, err := f.appendRevision(txCtx, &models.TenderRevision{
			TenderID:              tenderID,
			RevisionHash:          failedHash,
			RawContentHash:        rawHash,
			NormalizedContentHash: rawHash,
			RawSnapshot:           rawSnapshot,
			RevisionStatus:        models.RevisionStatusFailed,
			ErrorMessage:          &message,
			ObservedAt:            observedAt,
		})
		if err != nil {
			return err
		}

		if created {
			if err := f.tenderRepo.UpdateLatest(txCtx, tenderID, revision); err != nil {
				return fmt.Errorf("failed to update latest pointers: %w", err)
			}
			if _, err := f.rawPayloadRepo.Upsert(txCtx, &models.RawPayload{
				TenderRevisionID: revision.ID,
				ContentHash:      rawHash,
				Payload:          rawSnapshot,
				FetchedAt:        observedAt,
			}); err != nil {
				return fmt.Errorf("failed to persist raw payload: %w", err)
			}
		}

		result = &dto.NormalizationResult{
			Status:          dto.NormalizationFailed,
			RevisionID:      revision.ID,
			RevisionHash:    revision.RevisionHash,
			CreatedRevision: created,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// appendRevision assigns the next revision number and inserts. A unique
// violation means a concurrent writer won with the same hash; the surviving
// row is returned with created=false.
func (f *NormalizationFlowImpl) appendRevision(ctx context.Context, revision *models.TenderRevision) (*models.TenderRevision, bool, error) {
	maxNumber, err := f.revisionRepo.MaxRevisionNumber(ctx, revision.TenderID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to resolve revision number: %w", err)
	}
	revision.RevisionNumber = maxNumber + 1

	if err := f.revisionRepo.Save(ctx, revision); err != nil {
		if repository.IsDuplicateKey(err) {
			existing, rerr := f.revisionRepo.ByTenderAndRevisionHash(ctx, revision.TenderID, revision.RevisionHash)
			if rerr != nil || existing == nil {
				return nil, false, fmt.Errorf("failed to re-read revision after conflict: %w", rerr)
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("failed to create revision: %w", err)
	}

	return revision, true, nil
}

// ProcessPending drains queued normalize jobs, marking each executed with
// its outcome. Job-level failures are recorded on the job row and counted.
func (f *NormalizationFlowImpl) ProcessPending(ctx context.Context, limit int) (*dto.ProcessPendingStats, error) {
	now := time.Now().UTC()

	jobs, err := f.jobRepo.ListPending(ctx, models.JobTypeNormalizeTender, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending jobs: %w", err)
	}

	stats := &dto.ProcessPendingStats{}
	for _, job := range jobs {
		stats.Processed++

		result, err := f.processJob(ctx, job, now)
		if err != nil {
			log.Printf("Normalization job %d failed: %v", job.ID, err)
			message := err.Error()
			if markErr := f.jobRepo.MarkExecuted(ctx, job, &message); markErr != nil {
				log.Printf("Failed to mark job %d executed: %v", job.ID, markErr)
			}
			stats.Failed++
			continue
		}

		if markErr := f.jobRepo.MarkExecuted(ctx, job, nil); markErr != nil {
			log.Printf("Failed to mark job %d executed: %v", job.ID, markErr)
		}

		switch result.Status {
		case dto.NormalizationSuccess:
			stats.Succeeded++
		case dto.NormalizationNoop:
			stats.Noop++
		case dto.NormalizationFailed:
			stats.Failed++
		}
	}

	return stats, nil
}

func (f *NormalizationFlowImpl) processJob(ctx context.Context, job *models.PipelineJob, now time.Time) (*dto.NormalizationResult, error) {
	var rawPayload map[string]any
	if err := json.Unmarshal(job.Payload, &rawPayload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRawPayloadInvalid, err)
	}
	return f.NormalizeOne(ctx, job.Source, job.TenderID, job.TenderExternalID, rawPayload, now)
}
