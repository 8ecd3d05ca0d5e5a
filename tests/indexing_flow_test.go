package tests

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/tenderwatch/tenderwatch/app/dto"
	businessflow "github.com/tenderwatch/tenderwatch/business_flow"
	"github.com/tenderwatch/tenderwatch/models"
	testingutil "github.com/tenderwatch/tenderwatch/testing"
)

type indexingHarness struct {
	store    *testingutil.MemStore
	indexing businessflow.IndexingFlow
	seoulRev uint
	busanRev uint
}

// newIndexingHarness normalizes two tenders into successful revisions:
// a Seoul construction tender with two attachments and a Busan
// infrastructure tender with an earlier deadline.
func newIndexingHarness(t *testing.T) *indexingHarness {
	t.Helper()
	ctx := context.Background()

	store := testingutil.NewMemStore()
	normalization := businessflow.NewNormalizationFlow(
		store.Tenders(), store.Revisions(), store.RawPayloads(), store.Attachments(), store.PipelineJobs(), nil,
	)
	indexing := businessflow.NewIndexingFlow(
		store.Tenders(), store.Revisions(), store.Attachments(), store.IndexDocuments(), store.IndexChunks(),
		nil, nil, 0,
	)

	now := time.Now().UTC()
	h := &indexingHarness{store: store, indexing: indexing}

	seoul := &models.Tender{
		UUID: uuid.New(), Source: "g2b", ExternalID: "T-1",
		Title: "도로 보수 공사", FirstSeenAt: now, LastSeenAt: now,
	}
	require.NoError(t, store.Tenders().Save(ctx, seoul))
	seoulDetail := testingutil.WithAttachments(
		testingutil.TenderDetail("도로 보수 공사", "서울시청", "서울", "건설", "2026-02-01", 0, 500000000),
		testingutil.Attachment("spec.pdf", "https://g2b.example/files/spec.pdf", "application/pdf"),
		testingutil.Attachment("site-plan.pdf", "https://g2b.example/files/site-plan.pdf", "application/pdf"),
	)
	result, err := normalization.NormalizeOne(ctx, "g2b", seoul.ID, "T-1", seoulDetail, now)
	require.NoError(t, err)
	require.Equal(t, dto.NormalizationSuccess, result.Status)
	h.seoulRev = result.RevisionID

	busan := &models.Tender{
		UUID: uuid.New(), Source: "g2b", ExternalID: "T-2",
		Title: "항만 준설", FirstSeenAt: now, LastSeenAt: now,
	}
	require.NoError(t, store.Tenders().Save(ctx, busan))
	busanDetail := testingutil.TenderDetail("항만 준설", "부산항만공사", "부산", "인프라", "2026-01-15", 0, 900000000)
	result, err = normalization.NormalizeOne(ctx, "g2b", busan.ID, "T-2", busanDetail, now)
	require.NoError(t, err)
	require.Equal(t, dto.NormalizationSuccess, result.Status)
	h.busanRev = result.RevisionID

	return h
}

func TestReindexIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newIndexingHarness(t)

	first, err := h.indexing.Reindex(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Scanned)
	assert.Equal(t, 2, first.IndexedDocuments)
	assert.Equal(t, 2, first.IndexedChunks)
	assert.Equal(t, 0, first.SkippedDocuments)

	second, err := h.indexing.Reindex(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Scanned)
	assert.Equal(t, 0, second.IndexedDocuments)
	assert.Equal(t, 2, second.SkippedDocuments)
	assert.Equal(t, 0, second.IndexedChunks, "unchanged revisions must not grow the chunk set")

	chunks, err := h.store.IndexChunks().ListByRevision(ctx, h.seoulRev)
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
}

func TestSearchFacets(t *testing.T) {
	ctx := context.Background()
	h := newIndexingHarness(t)

	_, err := h.indexing.Reindex(ctx, nil)
	require.NoError(t, err)

	t.Run("RegionFilter", func(t *testing.T) {
		resp, err := h.indexing.Search(ctx, &dto.SearchRequest{Region: "서울"})
		require.NoError(t, err)
		require.Equal(t, 1, resp.Total)
		assert.Equal(t, "도로 보수 공사", resp.Results[0].Title)
	})

	t.Run("KeywordFilter", func(t *testing.T) {
		resp, err := h.indexing.Search(ctx, &dto.SearchRequest{Keyword: "준설"})
		require.NoError(t, err)
		require.Equal(t, 1, resp.Total)
		assert.Equal(t, "항만 준설", resp.Results[0].Title)
	})

	t.Run("DeadlineOrdering", func(t *testing.T) {
		resp, err := h.indexing.Search(ctx, &dto.SearchRequest{DeadlineLTE: "2026-12-31"})
		require.NoError(t, err)
		require.Equal(t, 2, resp.Total)
		assert.Equal(t, "항만 준설", resp.Results[0].Title, "earlier deadline sorts first")
		assert.Equal(t, "도로 보수 공사", resp.Results[1].Title)
	})

	t.Run("DeadlineCutoff", func(t *testing.T) {
		resp, err := h.indexing.Search(ctx, &dto.SearchRequest{DeadlineLTE: "2026-01-20"})
		require.NoError(t, err)
		require.Equal(t, 1, resp.Total)
		assert.Equal(t, "항만 준설", resp.Results[0].Title)
	})

	t.Run("CategoryAndRegionCombined", func(t *testing.T) {
		resp, err := h.indexing.Search(ctx, &dto.SearchRequest{Region: "서울", Category: "인프라"})
		require.NoError(t, err)
		assert.Equal(t, 0, resp.Total)
	})
}

func TestSearchMissingDeadlineSortsLast(t *testing.T) {
	ctx := context.Background()
	h := newIndexingHarness(t)

	normalization := businessflow.NewNormalizationFlow(
		h.store.Tenders(), h.store.Revisions(), h.store.RawPayloads(), h.store.Attachments(), h.store.PipelineJobs(), nil,
	)

	now := time.Now().UTC()
	open := &models.Tender{
		UUID: uuid.New(), Source: "g2b", ExternalID: "T-3",
		Title: "상시 모집 공고", FirstSeenAt: now, LastSeenAt: now,
	}
	require.NoError(t, h.store.Tenders().Save(ctx, open))
	result, err := normalization.NormalizeOne(ctx, "g2b", open.ID, "T-3",
		testingutil.TenderDetail("상시 모집 공고", "조달청", "세종", "용역", "", 0, 0), now)
	require.NoError(t, err)
	require.Equal(t, dto.NormalizationSuccess, result.Status)

	_, err = h.indexing.Reindex(ctx, nil)
	require.NoError(t, err)

	resp, err := h.indexing.Search(ctx, &dto.SearchRequest{})
	require.NoError(t, err)
	require.Equal(t, 3, resp.Total)
	assert.Equal(t, "상시 모집 공고", resp.Results[2].Title, "missing deadline carries the sentinel and sorts last")
	assert.Equal(t, models.DeadlineSentinel, resp.Results[2].Deadline)
}

func TestExportSearchRendersWorkbook(t *testing.T) {
	ctx := context.Background()
	h := newIndexingHarness(t)

	_, err := h.indexing.Reindex(ctx, nil)
	require.NoError(t, err)

	data, err := h.indexing.ExportSearch(ctx, &dto.SearchRequest{})
	require.NoError(t, err)
	require.NotEmpty(t, data)

	workbook, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = workbook.Close() }()

	rows, err := workbook.GetRows("Tenders")
	require.NoError(t, err)
	require.Len(t, rows, 3, "header plus one row per hit")
	assert.Equal(t, "Tender ID", rows[0][0])
	assert.Equal(t, "항만 준설", rows[1][3])
}
