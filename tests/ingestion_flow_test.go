package tests

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenderwatch/tenderwatch/app/services"
	businessflow "github.com/tenderwatch/tenderwatch/business_flow"
	testingutil "github.com/tenderwatch/tenderwatch/testing"
)

func newIngestionHarness(connector *services.MockTenderConnector, maxRetries int) (*testingutil.MemStore, businessflow.IngestionFlow) {
	store := testingutil.NewMemStore()
	flow := businessflow.NewIngestionFlow(
		connector,
		store.Tenders(),
		store.Revisions(),
		store.RawPayloads(),
		store.PipelineJobs(),
		store.FailedJobs(),
		nil, maxRetries, 0,
	)
	return store, flow
}

func TestIngestIsIdempotent(t *testing.T) {
	ctx := context.Background()

	connector := services.NewMockTenderConnector()
	testingutil.SeedConnector(connector, map[string]map[string]any{
		"T-100": testingutil.TenderDetail("도로 보수 공사", "서울시청", "서울", "건설", "2026-11-30", 0, 500000000),
	})

	store, flow := newIngestionHarness(connector, 2)

	first, err := flow.Ingest(ctx, "g2b")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Total)
	assert.Equal(t, 1, first.CreatedRevisions)
	assert.Equal(t, 0, first.SkippedRevisions)
	assert.Equal(t, 1, first.QueuedJobs)
	assert.Equal(t, 0, first.Failed)
	assert.Equal(t, 1, store.RawPayloadCount())
	assert.Equal(t, 1, store.PipelineJobCount())

	second, err := flow.Ingest(ctx, "g2b")
	require.NoError(t, err)
	assert.Equal(t, 0, second.CreatedRevisions)
	assert.Equal(t, 1, second.SkippedRevisions)
	assert.Equal(t, 0, second.QueuedJobs)
	assert.Equal(t, 0, second.Failed)
	assert.Equal(t, 1, store.RawPayloadCount(), "re-ingesting unchanged content must not add payload rows")
	assert.Equal(t, 1, store.PipelineJobCount(), "re-ingesting unchanged content must not enqueue new jobs")

	tender, err := store.Tenders().BySourceAndExternalID(ctx, "g2b", "T-100")
	require.NoError(t, err)
	require.NotNil(t, tender)
	require.NotNil(t, tender.LatestRevisionID)

	maxNumber, err := store.Revisions().MaxRevisionNumber(ctx, tender.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, maxNumber)
}

func TestIngestChangedContentAppendsRevision(t *testing.T) {
	ctx := context.Background()

	connector := services.NewMockTenderConnector()
	testingutil.SeedConnector(connector, map[string]map[string]any{
		"T-200": testingutil.TenderDetail("하수관 정비", "부산시청", "부산", "인프라", "2026-10-01", 0, 200000000),
	})

	store, flow := newIngestionHarness(connector, 0)

	first, err := flow.Ingest(ctx, "g2b")
	require.NoError(t, err)
	require.Equal(t, 1, first.CreatedRevisions)

	// The source amends the budget; the next batch must append revision 2.
	connector.Details["T-200"] = testingutil.TenderDetail("하수관 정비", "부산시청", "부산", "인프라", "2026-10-01", 0, 250000000)

	second, err := flow.Ingest(ctx, "g2b")
	require.NoError(t, err)
	assert.Equal(t, 1, second.CreatedRevisions)
	assert.Equal(t, 1, second.QueuedJobs)

	tender, err := store.Tenders().BySourceAndExternalID(ctx, "g2b", "T-200")
	require.NoError(t, err)
	require.NotNil(t, tender)

	maxNumber, err := store.Revisions().MaxRevisionNumber(ctx, tender.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, maxNumber)
	assert.Equal(t, 2, store.RawPayloadCount())
}

func TestIngestRecordsExhaustedFetches(t *testing.T) {
	ctx := context.Background()

	connector := services.NewMockTenderConnector()
	testingutil.SeedConnector(connector, map[string]map[string]any{
		"T-500": testingutil.TenderDetail("청사 경비 용역", "대전시청", "대전", "용역", "2026-09-15", 0, 80000000),
	})
	// Fails every attempt of the first batch: 1 initial try plus 2 retries.
	connector.FailIDs["T-500"] = 3

	store, flow := newIngestionHarness(connector, 2)

	first, err := flow.Ingest(ctx, "g2b")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Total)
	assert.Equal(t, 1, first.Failed)
	assert.Equal(t, 0, first.CreatedRevisions)
	assert.Equal(t, 3, connector.FetchCount("T-500"))

	failures, err := store.FailedJobs().ListBySource(ctx, "g2b", 10)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "T-500", failures[0].TenderExternalID)
	assert.Equal(t, "ingest", failures[0].Stage)
	assert.Equal(t, 1, failures[0].FailureCount)

	// The source recovers; the next batch ingests normally and the failure
	// record stays behind as history.
	second, err := flow.Ingest(ctx, "g2b")
	require.NoError(t, err)
	assert.Equal(t, 1, second.CreatedRevisions)
	assert.Equal(t, 0, second.Failed)

	failures, err = store.FailedJobs().ListBySource(ctx, "g2b", 10)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, 1, failures[0].FailureCount)
}

func TestIngestRequiresSource(t *testing.T) {
	connector := services.NewMockTenderConnector()
	_, flow := newIngestionHarness(connector, 0)

	_, err := flow.Ingest(context.Background(), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, businessflow.ErrSourceRequired)
}
