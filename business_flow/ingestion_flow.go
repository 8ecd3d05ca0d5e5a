package businessflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tenderwatch/tenderwatch/app/dto"
	"github.com/tenderwatch/tenderwatch/app/services"
	"github.com/tenderwatch/tenderwatch/models"
	"github.com/tenderwatch/tenderwatch/repository"
	"github.com/tenderwatch/tenderwatch/utils"
)

// IngestionFlow pulls tender summaries and details from a source connector
// and turns them into append-only revisions plus queued normalization work.
// Every write path is idempotent, so re-running a batch over unchanged source
// data is a no-op.
type IngestionFlow interface {
	Ingest(ctx context.Context, source string) (*dto.IngestionResult, error)
}

// IngestionFlowImpl implements the ingestion business flow
type IngestionFlowImpl struct {
	connector      services.TenderConnector
	tenderRepo     repository.TenderRepository
	revisionRepo   repository.TenderRevisionRepository
	rawPayloadRepo repository.RawPayloadRepository
	jobRepo        repository.PipelineJobRepository
	failedJobRepo  repository.FailedJobRepository
	db             *gorm.DB
	maxRetries     int
	retryBackoff   time.Duration
}

// NewIngestionFlow creates a new ingestion flow with injected dependencies
func NewIngestionFlow(
	connector services.TenderConnector,
	tenderRepo repository.TenderRepository,
	revisionRepo repository.TenderRevisionRepository,
	rawPayloadRepo repository.RawPayloadRepository,
	jobRepo repository.PipelineJobRepository,
	failedJobRepo repository.FailedJobRepository,
	db *gorm.DB,
	maxRetries int,
	retryBackoff time.Duration,
) IngestionFlow {
	return &IngestionFlowImpl{
		connector:      connector,
		tenderRepo:     tenderRepo,
		revisionRepo:   revisionRepo,
		rawPayloadRepo: rawPayloadRepo,
		jobRepo:        jobRepo,
		failedJobRepo:  failedJobRepo,
		db:             db,
		maxRetries:     maxRetries,
		retryBackoff:   retryBackoff,
	}
}

// Ingest runs one ingestion batch for the given source. Per-tender failures
// are recorded and counted; they never abort the batch.
func (f *IngestionFlowImpl) Ingest(ctx context.Context, source string) (*dto.IngestionResult, error) {
	if source == "" {
		return nil, ErrSourceRequired
	}

	summaries, err := f.connector.FetchTenderList(ctx)
	if err != nil {
		return nil, NewBusinessError("TENDER_LIST_FETCH_FAILED", ErrTenderListFetch.Error(), err)
	}

	result := &dto.IngestionResult{Source: source, Total: len(summaries)}

	for _, summary := range summaries {
		detail, err := f.fetchDetailWithRetry(ctx, summary.ID)
		if err != nil {
			f.recordFailure(ctx, source, summary.ID, err)
			result.Failed++
			continue
		}

		if err := f.ingestOne(ctx, source, summary, detail, result); err != nil {
			log.Printf("Ingestion failed for %s/%s: %v", source, summary.ID, err)
			f.recordFailure(ctx, source, summary.ID, err)
			result.Failed++
		}
	}

	return result, nil
}

// fetchDetailWithRetry fetches one tender detail, retrying transient
// connector errors with a fixed backoff between attempts.
func (f *IngestionFlowImpl) fetchDetailWithRetry(ctx context.Context, tenderID string) (map[string]any, error) {
	attempts := f.maxRetries + 1
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		detail, err := f.connector.FetchTenderDetail(ctx, tenderID)
		if err == nil {
			return detail, nil
		}
		lastErr = err

		if attempt < attempts && f.retryBackoff > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(f.retryBackoff):
			}
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %v", ErrConnectorExhausted, attempts, lastErr)
}

func (f *IngestionFlowImpl) ingestOne(ctx context.Context, source string, summary dto.TenderSummary, detail map[string]any, result *dto.IngestionResult) error {
	rawHash, err := utils.StableHash(detail)
	if err != nil {
		return fmt.Errorf("failed to hash raw payload: %w", err)
	}

	rawSnapshot, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("failed to serialize raw payload: %w", err)
	}

	now := time.Now().UTC()

	return runInTransaction(ctx, f.db, func(txCtx context.Context) error {
		tender, err := f.upsertTender(txCtx, source, summary, now)
		if err != nil {
			return err
		}

		revision, created, err := f.resolveRevision(txCtx, tender, rawHash, rawSnapshot, now)
		if err != nil {
			return err
		}
		if created {
			result.CreatedRevisions++
		} else {
			result.SkippedRevisions++
		}

		if err := f.tenderRepo.UpdateLatest(txCtx, tender.ID, revision); err != nil {
			return fmt.Errorf("failed to update latest pointers: %w", err)
		}

		if _, err := f.rawPayloadRepo.Upsert(txCtx, &models.RawPayload{
			TenderRevisionID: revision.ID,
			ContentHash:      rawHash,
			Payload:          rawSnapshot,
			FetchedAt:        now,
		}); err != nil {
			return fmt.Errorf("failed to persist raw payload: %w", err)
		}

		queued, err := f.jobRepo.EnqueueIfAbsent(txCtx, &models.PipelineJob{
			JobType:          models.JobTypeNormalizeTender,
			IdempotencyKey:   utils.KeyHash("normalize", source, summary.ID, revision.RevisionHash),
			Source:           source,
			TenderExternalID: summary.ID,
			TenderID:         tender.ID,
			Payload:          rawSnapshot,
			ScheduledAt:      now,
		})
		if err != nil {
			return fmt.Errorf("failed to enqueue normalization job: %w", err)
		}
		if queued {
			result.QueuedJobs++
		}

		return nil
	})
}

// upsertTender creates the tender on first sighting and refreshes the
// summary fields plus last_seen_at on every later one.
func (f *IngestionFlowImpl) upsertTender(ctx context.Context, source string, summary dto.TenderSummary, now time.Time) (*models.Tender, error) {
	tender, err := f.tenderRepo.BySourceAndExternalID(ctx, source, summary.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up tender: %w", err)
	}

	if tender == nil {
		tender = &models.Tender{
			UUID:        uuid.New(),
			Source:      source,
			ExternalID:  summary.ID,
			Title:       summary.Title,
			FirstSeenAt: now,
			LastSeenAt:  now,
		}
		if summary.Agency != "" {
			tender.Agency = &summary.Agency
		}
		if summary.Status != "" {
			tender.Status = &summary.Status
		}

		if err := f.tenderRepo.Save(ctx, tender); err != nil {
			if repository.IsDuplicateKey(err) {
				// Lost the insert race; the surviving row is ours to update.
				tender, err = f.tenderRepo.BySourceAndExternalID(ctx, source, summary.ID)
				if err != nil || tender == nil {
					return nil, fmt.Errorf("failed to re-read tender after conflict: %w", err)
				}
			} else {
				return nil, fmt.Errorf("failed to create tender: %w", err)
			}
		} else {
			return tender, nil
		}
	}

	if summary.Title != "" {
		tender.Title = summary.Title
	}
	if summary.Agency != "" {
		tender.Agency = &summary.Agency
	}
	if summary.Status != "" {
		tender.Status = &summary.Status
	}
	tender.LastSeenAt = now

	if err := f.tenderRepo.Update(ctx, tender); err != nil {
		return nil, fmt.Errorf("failed to update tender: %w", err)
	}
	return tender, nil
}

// resolveRevision reuses the existing revision for this raw content or
// appends a new one. Normalization runs later, so both content hashes start
// equal to the raw hash and the revision hash is the raw hash itself.
func (f *IngestionFlowImpl) resolveRevision(ctx context.Context, tender *models.Tender, rawHash string, rawSnapshot json.RawMessage, now time.Time) (*models.TenderRevision, bool, error) {
	existing, err := f.revisionRepo.ByTenderAndRawHash(ctx, tender.ID, rawHash)
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up revision: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	maxNumber, err := f.revisionRepo.MaxRevisionNumber(ctx, tender.ID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to resolve revision number: %w", err)
	}

	revision := &models.TenderRevision{
		TenderID:              tender.ID,
		RevisionNumber:        maxNumber + 1,
		RevisionHash:          rawHash,
		RawContentHash:        rawHash,
		NormalizedContentHash: rawHash,
		RawSnapshot:           rawSnapshot,
		RevisionStatus:        models.RevisionStatusSuccess,
		ObservedAt:            now,
	}

	if err := f.revisionRepo.Save(ctx, revision); err != nil {
		if repository.IsDuplicateKey(err) {
			existing, rerr := f.revisionRepo.ByTenderAndRawHash(ctx, tender.ID, rawHash)
			if rerr != nil || existing == nil {
				return nil, false, fmt.Errorf("failed to re-read revision after conflict: %w", rerr)
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("failed to create revision: %w", err)
	}

	return revision, true, nil
}

func (f *IngestionFlowImpl) recordFailure(ctx context.Context, source, tenderID string, cause error) {
	failed := &models.FailedJob{
		JobKey:           utils.KeyHash(source, tenderID),
		Source:           source,
		TenderExternalID: tenderID,
		Stage:            "ingest",
		Error:            cause.Error(),
		FailedAt:         time.Now().UTC(),
	}
	if err := f.failedJobRepo.UpsertByKey(ctx, failed); err != nil {
		log.Printf("Failed to record failed job for %s/%s: %v", source, tenderID, err)
	}
}
