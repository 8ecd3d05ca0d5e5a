// Package testing provides test utilities, fixtures, and an in-memory
// repository set for exercising the pipeline flows without Postgres.
package testing

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/tenderwatch/tenderwatch/models"
	"github.com/tenderwatch/tenderwatch/repository"
	"github.com/tenderwatch/tenderwatch/utils"
)

// MemStore holds every pipeline entity in memory behind one mutex. It
// enforces the same uniqueness invariants as the Postgres schema and
// reports conflicts with gorm.ErrDuplicatedKey so the flows' conflict
// handling is exercised identically.
type MemStore struct {
	mu     sync.Mutex
	nextID uint

	tenders       []*models.Tender
	revisions     []*models.TenderRevision
	rawPayloads   []*models.RawPayload
	attachments   []*models.Attachment
	documents     []*models.IndexDocument
	chunks        []*models.IndexChunk
	subscriptions []*models.Subscription
	deliveryLogs  []*models.DeliveryLog
	outcomes      []*models.MatchOutcome
	jobs          []*models.PipelineJob
	failedJobs    []*models.FailedJob
}

// NewMemStore creates an empty in-memory store
func NewMemStore() *MemStore {
	return &MemStore{}
}

func (s *MemStore) sequence() uint {
	s.nextID++
	return s.nextID
}

// Repository views

func (s *MemStore) Tenders() repository.TenderRepository { return &memTenderRepo{s} }
func (s *MemStore) Revisions() repository.TenderRevisionRepository {
	return &memRevisionRepo{s}
}
func (s *MemStore) RawPayloads() repository.RawPayloadRepository { return &memRawPayloadRepo{s} }
func (s *MemStore) Attachments() repository.AttachmentRepository { return &memAttachmentRepo{s} }
func (s *MemStore) IndexDocuments() repository.IndexDocumentRepository {
	return &memIndexDocumentRepo{s}
}
func (s *MemStore) IndexChunks() repository.IndexChunkRepository { return &memIndexChunkRepo{s} }
func (s *MemStore) Subscriptions() repository.SubscriptionRepository {
	return &memSubscriptionRepo{s}
}
func (s *MemStore) MatchOutcomes() repository.MatchOutcomeRepository {
	return &memMatchOutcomeRepo{s}
}
func (s *MemStore) DeliveryLogs() repository.DeliveryLogRepository { return &memDeliveryLogRepo{s} }
func (s *MemStore) PipelineJobs() repository.PipelineJobRepository { return &memPipelineJobRepo{s} }
func (s *MemStore) FailedJobs() repository.FailedJobRepository     { return &memFailedJobRepo{s} }

// Tenders

type memTenderRepo struct{ s *MemStore }

func (r *memTenderRepo) ByID(_ context.Context, id uint) (*models.Tender, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.tenders {
		if t.ID == id {
			c := *t
			return &c, nil
		}
	}
	return nil, nil
}

func (r *memTenderRepo) BySourceAndExternalID(_ context.Context, source, externalID string) (*models.Tender, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.tenders {
		if t.Source == source && t.ExternalID == externalID {
			c := *t
			return &c, nil
		}
	}
	return nil, nil
}

func (r *memTenderRepo) Save(_ context.Context, tender *models.Tender) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.tenders {
		if t.Source == tender.Source && t.ExternalID == tender.ExternalID {
			return gorm.ErrDuplicatedKey
		}
	}
	tender.ID = r.s.sequence()
	tender.CreatedAt = time.Now().UTC()
	tender.UpdatedAt = tender.CreatedAt
	c := *tender
	r.s.tenders = append(r.s.tenders, &c)
	return nil
}

func (r *memTenderRepo) Update(_ context.Context, tender *models.Tender) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i, t := range r.s.tenders {
		if t.ID == tender.ID {
			tender.UpdatedAt = time.Now().UTC()
			c := *tender
			r.s.tenders[i] = &c
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *memTenderRepo) UpdateLatest(_ context.Context, tenderID uint, revision *models.TenderRevision) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.tenders {
		if t.ID == tenderID {
			id := revision.ID
			revHash := revision.RevisionHash
			rawHash := revision.RawContentHash
			normHash := revision.NormalizedContentHash
			t.LatestRevisionID = &id
			t.LatestRevisionHash = &revHash
			t.LatestRawHash = &rawHash
			t.LatestNormalizedHash = &normHash
			t.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

// Revisions

type memRevisionRepo struct{ s *MemStore }

func (r *memRevisionRepo) ByID(_ context.Context, id uint) (*models.TenderRevision, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.byIDLocked(id), nil
}

func (r *memRevisionRepo) byIDLocked(id uint) *models.TenderRevision {
	for _, rev := range r.s.revisions {
		if rev.ID == id {
			c := *rev
			return &c
		}
	}
	return nil
}

func (r *memRevisionRepo) ByTenderAndRevisionHash(_ context.Context, tenderID uint, revisionHash string) (*models.TenderRevision, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, rev := range r.s.revisions {
		if rev.TenderID == tenderID && rev.RevisionHash == revisionHash {
			c := *rev
			return &c, nil
		}
	}
	return nil, nil
}

func (r *memRevisionRepo) ByTenderAndRawHash(_ context.Context, tenderID uint, rawHash string) (*models.TenderRevision, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var best *models.TenderRevision
	for _, rev := range r.s.revisions {
		if rev.TenderID == tenderID && rev.RawContentHash == rawHash {
			if best == nil || rev.RevisionNumber > best.RevisionNumber {
				best = rev
			}
		}
	}
	if best == nil {
		return nil, nil
	}
	c := *best
	return &c, nil
}

func (r *memRevisionRepo) MaxRevisionNumber(_ context.Context, tenderID uint) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	max := 0
	for _, rev := range r.s.revisions {
		if rev.TenderID == tenderID && rev.RevisionNumber > max {
			max = rev.RevisionNumber
		}
	}
	return max, nil
}

func (r *memRevisionRepo) Save(_ context.Context, revision *models.TenderRevision) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, rev := range r.s.revisions {
		if rev.TenderID == revision.TenderID && rev.RevisionHash == revision.RevisionHash {
			return gorm.ErrDuplicatedKey
		}
	}
	revision.ID = r.s.sequence()
	revision.CreatedAt = time.Now().UTC()
	c := *revision
	r.s.revisions = append(r.s.revisions, &c)
	return nil
}

func (r *memRevisionRepo) ListForReindex(_ context.Context, source *string) ([]*models.TenderRevision, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	latest := make(map[uint]*models.TenderRevision)
	for _, rev := range r.s.revisions {
		if rev.RevisionStatus != models.RevisionStatusSuccess {
			continue
		}
		if cur, ok := latest[rev.TenderID]; !ok || rev.RevisionNumber > cur.RevisionNumber {
			latest[rev.TenderID] = rev
		}
	}

	var out []*models.TenderRevision
	for tenderID, rev := range latest {
		if source != nil && *source != "" {
			tender := r.tenderLocked(tenderID)
			if tender == nil || tender.Source != *source {
				continue
			}
		}
		c := *rev
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TenderID < out[j].TenderID })
	return out, nil
}

func (r *memRevisionRepo) tenderLocked(id uint) *models.Tender {
	for _, t := range r.s.tenders {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func (r *memRevisionRepo) ContextByID(_ context.Context, id uint) (*models.TenderRevision, *models.Tender, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	revision := r.byIDLocked(id)
	if revision == nil {
		return nil, nil, nil
	}
	tender := r.tenderLocked(revision.TenderID)
	if tender == nil {
		return revision, nil, nil
	}
	c := *tender
	return revision, &c, nil
}

// Raw payloads

type memRawPayloadRepo struct{ s *MemStore }

func (r *memRawPayloadRepo) Upsert(_ context.Context, payload *models.RawPayload) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.rawPayloads {
		if p.TenderRevisionID == payload.TenderRevisionID && p.ContentHash == payload.ContentHash {
			*payload = *p
			return false, nil
		}
	}
	payload.ID = r.s.sequence()
	payload.CreatedAt = time.Now().UTC()
	c := *payload
	r.s.rawPayloads = append(r.s.rawPayloads, &c)
	return true, nil
}

// RawPayloadCount reports the number of stored raw payload rows
func (s *MemStore) RawPayloadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rawPayloads)
}

// Attachments

type memAttachmentRepo struct{ s *MemStore }

func (r *memAttachmentRepo) Upsert(_ context.Context, attachment *models.Attachment) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.attachments {
		if a.TenderRevisionID == attachment.TenderRevisionID &&
			a.FileName == attachment.FileName &&
			a.ContentHash == attachment.ContentHash {
			*attachment = *a
			return false, nil
		}
	}
	attachment.ID = r.s.sequence()
	attachment.CreatedAt = time.Now().UTC()
	c := *attachment
	r.s.attachments = append(r.s.attachments, &c)
	return true, nil
}

func (r *memAttachmentRepo) ListByRevision(_ context.Context, revisionID uint) ([]*models.Attachment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Attachment
	for _, a := range r.s.attachments {
		if a.TenderRevisionID == revisionID {
			c := *a
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FileName < out[j].FileName })
	return out, nil
}

// Index documents

type memIndexDocumentRepo struct{ s *MemStore }

func (r *memIndexDocumentRepo) ByRevisionID(_ context.Context, revisionID uint) (*models.IndexDocument, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, d := range r.s.documents {
		if d.TenderRevisionID == revisionID {
			c := *d
			return &c, nil
		}
	}
	return nil, nil
}

func (r *memIndexDocumentRepo) Upsert(_ context.Context, doc *models.IndexDocument) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i, d := range r.s.documents {
		if d.TenderRevisionID == doc.TenderRevisionID {
			doc.ID = d.ID
			doc.CreatedAt = d.CreatedAt
			doc.UpdatedAt = time.Now().UTC()
			c := *doc
			r.s.documents[i] = &c
			return false, nil
		}
	}
	doc.ID = r.s.sequence()
	doc.CreatedAt = time.Now().UTC()
	doc.UpdatedAt = doc.CreatedAt
	c := *doc
	r.s.documents = append(r.s.documents, &c)
	return true, nil
}

func (r *memIndexDocumentRepo) Search(_ context.Context, filter models.IndexDocumentFilter, limit int) ([]*models.IndexDocument, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*models.IndexDocument
	for _, d := range r.s.documents {
		if filter.Keyword != nil && *filter.Keyword != "" && !strings.Contains(d.SearchText, *filter.Keyword) {
			continue
		}
		if filter.Region != nil && *filter.Region != "" && (d.Region == nil || *d.Region != *filter.Region) {
			continue
		}
		if filter.Category != nil && *filter.Category != "" && (d.Category == nil || *d.Category != *filter.Category) {
			continue
		}
		if filter.DeadlineLTE != nil && *filter.DeadlineLTE != "" && d.Deadline > *filter.DeadlineLTE {
			continue
		}
		if filter.Source != nil && *filter.Source != "" && d.Source != *filter.Source {
			continue
		}
		c := *d
		out = append(out, &c)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Deadline != out[j].Deadline {
			return out[i].Deadline < out[j].Deadline
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Index chunks

type memIndexChunkRepo struct{ s *MemStore }

func (r *memIndexChunkRepo) Upsert(_ context.Context, chunk *models.IndexChunk) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.chunks {
		if c.TenderRevisionID == chunk.TenderRevisionID && c.ChunkHash == chunk.ChunkHash {
			*chunk = *c
			return false, nil
		}
	}
	chunk.ID = r.s.sequence()
	chunk.CreatedAt = time.Now().UTC()
	c := *chunk
	r.s.chunks = append(r.s.chunks, &c)
	return true, nil
}

func (r *memIndexChunkRepo) ListByRevision(_ context.Context, revisionID uint) ([]*models.IndexChunk, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.IndexChunk
	for _, c := range r.s.chunks {
		if c.TenderRevisionID == revisionID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Subscriptions

type memSubscriptionRepo struct{ s *MemStore }

func (r *memSubscriptionRepo) ByID(_ context.Context, id uint) (*models.Subscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, sub := range r.s.subscriptions {
		if sub.ID == id {
			c := *sub
			return &c, nil
		}
	}
	return nil, nil
}

func (r *memSubscriptionRepo) ListActive(_ context.Context) ([]*models.Subscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Subscription
	for _, sub := range r.s.subscriptions {
		if sub.IsActive {
			c := *sub
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memSubscriptionRepo) Save(_ context.Context, subscription *models.Subscription) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	subscription.ID = r.s.sequence()
	subscription.CreatedAt = time.Now().UTC()
	subscription.UpdatedAt = subscription.CreatedAt
	c := *subscription
	r.s.subscriptions = append(r.s.subscriptions, &c)
	return nil
}

func (r *memSubscriptionRepo) Update(_ context.Context, subscription *models.Subscription) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i, sub := range r.s.subscriptions {
		if sub.ID == subscription.ID {
			subscription.UpdatedAt = time.Now().UTC()
			c := *subscription
			r.s.subscriptions[i] = &c
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

// Match outcomes

type memMatchOutcomeRepo struct{ s *MemStore }

func (r *memMatchOutcomeRepo) ByPair(_ context.Context, subscriptionID, revisionID uint) (*models.MatchOutcome, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.outcomes {
		if o.SubscriptionID == subscriptionID && o.TenderRevisionID == revisionID {
			c := *o
			return &c, nil
		}
	}
	return nil, nil
}

func (r *memMatchOutcomeRepo) Upsert(_ context.Context, outcome *models.MatchOutcome) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i, o := range r.s.outcomes {
		if o.SubscriptionID == outcome.SubscriptionID && o.TenderRevisionID == outcome.TenderRevisionID {
			outcome.ID = o.ID
			outcome.CreatedAt = o.CreatedAt
			outcome.UpdatedAt = time.Now().UTC()
			c := *outcome
			r.s.outcomes[i] = &c
			return nil
		}
	}
	outcome.ID = r.s.sequence()
	outcome.CreatedAt = time.Now().UTC()
	outcome.UpdatedAt = outcome.CreatedAt
	c := *outcome
	r.s.outcomes = append(r.s.outcomes, &c)
	return nil
}

// MatchOutcomeCount reports the number of stored match outcomes
func (s *MemStore) MatchOutcomeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.outcomes)
}

// Delivery logs

type memDeliveryLogRepo struct{ s *MemStore }

func (r *memDeliveryLogRepo) ByEventKey(_ context.Context, channel, eventKey string) (*models.DeliveryLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, l := range r.s.deliveryLogs {
		if l.Channel == channel && l.EventKey == eventKey {
			c := *l
			return &c, nil
		}
	}
	return nil, nil
}

func (r *memDeliveryLogRepo) Save(_ context.Context, deliveryLog *models.DeliveryLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, l := range r.s.deliveryLogs {
		if l.Channel == deliveryLog.Channel && l.EventKey == deliveryLog.EventKey {
			return gorm.ErrDuplicatedKey
		}
	}
	deliveryLog.ID = r.s.sequence()
	deliveryLog.CreatedAt = time.Now().UTC()
	deliveryLog.UpdatedAt = deliveryLog.CreatedAt
	c := *deliveryLog
	r.s.deliveryLogs = append(r.s.deliveryLogs, &c)
	return nil
}

func (r *memDeliveryLogRepo) Update(_ context.Context, deliveryLog *models.DeliveryLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i, l := range r.s.deliveryLogs {
		if l.ID == deliveryLog.ID {
			deliveryLog.UpdatedAt = time.Now().UTC()
			c := *deliveryLog
			r.s.deliveryLogs[i] = &c
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *memDeliveryLogRepo) ListDueRetries(_ context.Context, now time.Time, limit int) ([]*models.DeliveryLog, error) {
	if limit <= 0 {
		limit = 100
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.DeliveryLog
	for _, l := range r.s.deliveryLogs {
		if l.DeliveryStatus == models.DeliveryStatusFailed &&
			l.NextRetryAt != nil && !l.NextRetryAt.After(now) &&
			l.AttemptCount < l.MaxAttempts {
			c := *l
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].NextRetryAt.Equal(*out[j].NextRetryAt) {
			return out[i].NextRetryAt.Before(*out[j].NextRetryAt)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeliveryLogCount reports the number of stored delivery logs
func (s *MemStore) DeliveryLogCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.deliveryLogs)
}

// Pipeline jobs

type memPipelineJobRepo struct{ s *MemStore }

func (r *memPipelineJobRepo) EnqueueIfAbsent(_ context.Context, job *models.PipelineJob) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, j := range r.s.jobs {
		if j.IdempotencyKey == job.IdempotencyKey {
			*job = *j
			return false, nil
		}
	}
	job.ID = r.s.sequence()
	job.CreatedAt = time.Now().UTC()
	job.UpdatedAt = job.CreatedAt
	c := *job
	r.s.jobs = append(r.s.jobs, &c)
	return true, nil
}

func (r *memPipelineJobRepo) ListPending(_ context.Context, jobType string, now time.Time, limit int) ([]*models.PipelineJob, error) {
	if limit <= 0 {
		limit = 100
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.PipelineJob
	for _, j := range r.s.jobs {
		if j.JobType == jobType && j.ExecutedAt == nil && !j.ScheduledAt.After(now) {
			c := *j
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ScheduledAt.Before(out[j].ScheduledAt)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memPipelineJobRepo) MarkExecuted(_ context.Context, job *models.PipelineJob, execErr *string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, j := range r.s.jobs {
		if j.ID == job.ID {
			j.ExecutedAt = utils.UTCNowPtr()
			j.Error = execErr
			j.UpdatedAt = time.Now().UTC()
			job.ExecutedAt = j.ExecutedAt
			job.Error = execErr
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

// PipelineJobCount reports the number of stored pipeline jobs
func (s *MemStore) PipelineJobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Failed jobs

type memFailedJobRepo struct{ s *MemStore }

func (r *memFailedJobRepo) UpsertByKey(_ context.Context, job *models.FailedJob) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, j := range r.s.failedJobs {
		if j.JobKey == job.JobKey {
			j.Error = job.Error
			j.FailedAt = job.FailedAt
			j.FailureCount++
			j.UpdatedAt = time.Now().UTC()
			*job = *j
			return nil
		}
	}
	job.ID = r.s.sequence()
	if job.FailureCount == 0 {
		job.FailureCount = 1
	}
	job.CreatedAt = time.Now().UTC()
	job.UpdatedAt = job.CreatedAt
	c := *job
	r.s.failedJobs = append(r.s.failedJobs, &c)
	return nil
}

func (r *memFailedJobRepo) ListBySource(_ context.Context, source string, limit int) ([]*models.FailedJob, error) {
	if limit <= 0 {
		limit = 100
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.FailedJob
	for _, j := range r.s.failedJobs {
		if j.Source == source {
			c := *j
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FailedAt.After(out[j].FailedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
