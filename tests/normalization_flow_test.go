package tests

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenderwatch/tenderwatch/app/dto"
	businessflow "github.com/tenderwatch/tenderwatch/business_flow"
	"github.com/tenderwatch/tenderwatch/models"
	testingutil "github.com/tenderwatch/tenderwatch/testing"
)

func newNormalizationHarness(t *testing.T) (*testingutil.MemStore, businessflow.NormalizationFlow, *models.Tender) {
	t.Helper()

	store := testingutil.NewMemStore()
	flow := businessflow.NewNormalizationFlow(
		store.Tenders(),
		store.Revisions(),
		store.RawPayloads(),
		store.Attachments(),
		store.PipelineJobs(),
		nil,
	)

	now := time.Now().UTC()
	tender := &models.Tender{
		UUID:        uuid.New(),
		Source:      "g2b",
		ExternalID:  "T-1",
		Title:       "도로 보수 공사",
		FirstSeenAt: now,
		LastSeenAt:  now,
	}
	require.NoError(t, store.Tenders().Save(context.Background(), tender))

	return store, flow, tender
}

func TestNormalizeOneChangeDetection(t *testing.T) {
	ctx := context.Background()
	store, flow, tender := newNormalizationHarness(t)
	observedAt := time.Now().UTC()

	detail := testingutil.TenderDetail("도로 보수 공사", "서울시청", "서울", "건설", "2026-11-30", 0, 500000000)

	first, err := flow.NormalizeOne(ctx, "g2b", tender.ID, "T-1", detail, observedAt)
	require.NoError(t, err)
	assert.Equal(t, dto.NormalizationSuccess, first.Status)
	assert.True(t, first.CreatedRevision)
	require.NotZero(t, first.RevisionID)

	t.Run("CosmeticChangeIsNoop", func(t *testing.T) {
		// A new crawl field changes the raw bytes but not the canonical content.
		cosmetic := testingutil.TenderDetail("도로 보수 공사", "서울시청", "서울", "건설", "2026-11-30", 0, 500000000)
		cosmetic["crawl_ts"] = "2026-08-31T09:00:00Z"

		result, err := flow.NormalizeOne(ctx, "g2b", tender.ID, "T-1", cosmetic, observedAt)
		require.NoError(t, err)
		assert.Equal(t, dto.NormalizationNoop, result.Status)
		assert.False(t, result.CreatedRevision)
		assert.Equal(t, first.RevisionID, result.RevisionID)

		maxNumber, err := store.Revisions().MaxRevisionNumber(ctx, tender.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, maxNumber)
	})

	t.Run("MaterialChangeAppendsRevision", func(t *testing.T) {
		amended := testingutil.TenderDetail("도로 보수 공사", "서울시청", "서울", "건설", "2026-11-30", 0, 650000000)

		result, err := flow.NormalizeOne(ctx, "g2b", tender.ID, "T-1", amended, observedAt)
		require.NoError(t, err)
		assert.Equal(t, dto.NormalizationSuccess, result.Status)
		assert.True(t, result.CreatedRevision)
		assert.NotEqual(t, first.RevisionID, result.RevisionID)

		maxNumber, err := store.Revisions().MaxRevisionNumber(ctx, tender.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, maxNumber)

		updated, err := store.Tenders().ByID(ctx, tender.ID)
		require.NoError(t, err)
		require.NotNil(t, updated.LatestRevisionID)
		assert.Equal(t, result.RevisionID, *updated.LatestRevisionID)
	})
}

func TestNormalizeOneRecordsParseFailure(t *testing.T) {
	ctx := context.Background()
	store, flow, tender := newNormalizationHarness(t)
	observedAt := time.Now().UTC()

	broken := map[string]any{"agency": "서울시청"}

	first, err := flow.NormalizeOne(ctx, "g2b", tender.ID, "T-1", broken, observedAt)
	require.NoError(t, err, "a malformed payload is a result, not an error")
	assert.Equal(t, dto.NormalizationFailed, first.Status)
	assert.True(t, first.CreatedRevision)

	revision, err := store.Revisions().ByID(ctx, first.RevisionID)
	require.NoError(t, err)
	require.NotNil(t, revision)
	assert.Equal(t, models.RevisionStatusFailed, revision.RevisionStatus)
	require.NotNil(t, revision.ErrorMessage)

	second, err := flow.NormalizeOne(ctx, "g2b", tender.ID, "T-1", broken, observedAt)
	require.NoError(t, err)
	assert.Equal(t, dto.NormalizationFailed, second.Status)
	assert.False(t, second.CreatedRevision, "the same broken payload must not pile up FAILED revisions")
	assert.Equal(t, first.RevisionID, second.RevisionID)

	maxNumber, err := store.Revisions().MaxRevisionNumber(ctx, tender.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, maxNumber)
}

func TestNormalizeOnePersistsAttachments(t *testing.T) {
	ctx := context.Background()
	store, flow, tender := newNormalizationHarness(t)

	detail := testingutil.WithAttachments(
		testingutil.TenderDetail("도로 보수 공사", "서울시청", "서울", "건설", "2026-11-30", 0, 500000000),
		testingutil.Attachment("spec.pdf", "https://g2b.example/files/spec.pdf", "application/pdf"),
		testingutil.Attachment("drawings.zip", "https://g2b.example/files/drawings.zip", ""),
	)

	result, err := flow.NormalizeOne(ctx, "g2b", tender.ID, "T-1", detail, time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, dto.NormalizationSuccess, result.Status)

	attachments, err := store.Attachments().ListByRevision(ctx, result.RevisionID)
	require.NoError(t, err)
	require.Len(t, attachments, 2)
	assert.Equal(t, "drawings.zip", attachments[0].FileName, "listing is ordered by file name")
	assert.Equal(t, "application/octet-stream", attachments[0].MimeType)
	assert.Equal(t, "spec.pdf", attachments[1].FileName)
	assert.Equal(t, "application/pdf", attachments[1].MimeType)
}

func TestProcessPendingDrainsQueue(t *testing.T) {
	ctx := context.Background()
	store, flow, tender := newNormalizationHarness(t)

	payload, err := json.Marshal(testingutil.TenderDetail("도로 보수 공사", "서울시청", "서울", "건설", "2026-11-30", 0, 500000000))
	require.NoError(t, err)

	created, err := store.PipelineJobs().EnqueueIfAbsent(ctx, &models.PipelineJob{
		JobType:          models.JobTypeNormalizeTender,
		IdempotencyKey:   "job-good",
		Source:           "g2b",
		TenderExternalID: "T-1",
		TenderID:         tender.ID,
		Payload:          payload,
		ScheduledAt:      time.Now().UTC().Add(-time.Minute),
	})
	require.NoError(t, err)
	require.True(t, created)

	created, err = store.PipelineJobs().EnqueueIfAbsent(ctx, &models.PipelineJob{
		JobType:          models.JobTypeNormalizeTender,
		IdempotencyKey:   "job-bad",
		Source:           "g2b",
		TenderExternalID: "T-1",
		TenderID:         tender.ID,
		Payload:          json.RawMessage(`[1,2,3]`),
		ScheduledAt:      time.Now().UTC().Add(-time.Minute),
	})
	require.NoError(t, err)
	require.True(t, created)

	stats, err := flow.ProcessPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, 1, stats.Succeeded)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 0, stats.Noop)

	// Both jobs are marked executed, so the next drain sees an empty queue.
	stats, err = flow.ProcessPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Processed)
}
