// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/tenderwatch/tenderwatch/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

// TenderRepository defines operations for tenders
type TenderRepository interface {
	ByID(ctx context.Context, id uint) (*models.Tender, error)
	BySourceAndExternalID(ctx context.Context, source, externalID string) (*models.Tender, error)
	Save(ctx context.Context, tender *models.Tender) error
	Update(ctx context.Context, tender *models.Tender) error
	UpdateLatest(ctx context.Context, tenderID uint, revision *models.TenderRevision) error
}

// TenderRevisionRepository defines operations for append-only tender revisions
type TenderRevisionRepository interface {
	ByID(ctx context.Context, id uint) (*models.TenderRevision, error)
	ByTenderAndRevisionHash(ctx context.Context, tenderID uint, revisionHash string) (*models.TenderRevision, error)
	ByTenderAndRawHash(ctx context.Context, tenderID uint, rawHash string) (*models.TenderRevision, error)
	MaxRevisionNumber(ctx context.Context, tenderID uint) (int, error)
	Save(ctx context.Context, revision *models.TenderRevision) error
	// ListForReindex returns the latest SUCCESS revision of every tender,
	// optionally restricted to one source.
	ListForReindex(ctx context.Context, source *string) ([]*models.TenderRevision, error)
	// ContextByID resolves a revision together with its owning tender.
	ContextByID(ctx context.Context, id uint) (*models.TenderRevision, *models.Tender, error)
}

// RawPayloadRepository defines operations for content-addressed raw payload snapshots
type RawPayloadRepository interface {
	Upsert(ctx context.Context, payload *models.RawPayload) (created bool, err error)
}

// AttachmentRepository defines operations for revision attachments
type AttachmentRepository interface {
	Upsert(ctx context.Context, attachment *models.Attachment) (created bool, err error)
	ListByRevision(ctx context.Context, revisionID uint) ([]*models.Attachment, error)
}

// IndexDocumentRepository defines operations for denormalized search documents
type IndexDocumentRepository interface {
	ByRevisionID(ctx context.Context, revisionID uint) (*models.IndexDocument, error)
	Upsert(ctx context.Context, doc *models.IndexDocument) (created bool, err error)
	Search(ctx context.Context, filter models.IndexDocumentFilter, limit int) ([]*models.IndexDocument, error)
}

// IndexChunkRepository defines operations for per-attachment search chunks
type IndexChunkRepository interface {
	Upsert(ctx context.Context, chunk *models.IndexChunk) (created bool, err error)
	ListByRevision(ctx context.Context, revisionID uint) ([]*models.IndexChunk, error)
}

// SubscriptionRepository defines operations for subscriber profiles
type SubscriptionRepository interface {
	ByID(ctx context.Context, id uint) (*models.Subscription, error)
	ListActive(ctx context.Context) ([]*models.Subscription, error)
	Save(ctx context.Context, subscription *models.Subscription) error
	Update(ctx context.Context, subscription *models.Subscription) error
}

// MatchOutcomeRepository defines operations for match results
type MatchOutcomeRepository interface {
	ByPair(ctx context.Context, subscriptionID, revisionID uint) (*models.MatchOutcome, error)
	Upsert(ctx context.Context, outcome *models.MatchOutcome) error
}

// DeliveryLogRepository defines operations for the notification state machine
type DeliveryLogRepository interface {
	ByEventKey(ctx context.Context, channel, eventKey string) (*models.DeliveryLog, error)
	Save(ctx context.Context, log *models.DeliveryLog) error
	Update(ctx context.Context, log *models.DeliveryLog) error
	// ListDueRetries returns failed logs whose next retry timestamp has passed
	// and which still have attempts left.
	ListDueRetries(ctx context.Context, now time.Time, limit int) ([]*models.DeliveryLog, error)
}

// PipelineJobRepository defines operations for queued pipeline jobs
type PipelineJobRepository interface {
	// EnqueueIfAbsent inserts the job unless one with the same idempotency key
	// already exists; returns whether a new row was created.
	EnqueueIfAbsent(ctx context.Context, job *models.PipelineJob) (created bool, err error)
	ListPending(ctx context.Context, jobType string, now time.Time, limit int) ([]*models.PipelineJob, error)
	MarkExecuted(ctx context.Context, job *models.PipelineJob, execErr *string) error
}

// FailedJobRepository defines operations for recorded ingestion failures
type FailedJobRepository interface {
	UpsertByKey(ctx context.Context, job *models.FailedJob) error
	ListBySource(ctx context.Context, source string, limit int) ([]*models.FailedJob, error)
}
