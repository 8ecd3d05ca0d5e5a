package tests

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenderwatch/tenderwatch/app/dto"
	"github.com/tenderwatch/tenderwatch/app/services"
	businessflow "github.com/tenderwatch/tenderwatch/business_flow"
	"github.com/tenderwatch/tenderwatch/models"
	testingutil "github.com/tenderwatch/tenderwatch/testing"
	"github.com/tenderwatch/tenderwatch/utils"
)

type matchNotifyHarness struct {
	store      *testingutil.MemStore
	fixtures   *testingutil.TestFixtures
	flow       businessflow.MatchNotifyFlow
	provider   *services.MockNotificationProvider
	revisionID uint
}

// newMatchNotifyHarness normalizes one Seoul construction tender with a far
// deadline, a source URL, and a 500M budget into a successful revision.
func newMatchNotifyHarness(t *testing.T, failCount, maxAttempts int) *matchNotifyHarness {
	t.Helper()
	ctx := context.Background()

	store := testingutil.NewMemStore()
	normalization := businessflow.NewNormalizationFlow(
		store.Tenders(), store.Revisions(), store.RawPayloads(), store.Attachments(), store.PipelineJobs(), nil,
	)

	now := time.Now().UTC()
	tender := &models.Tender{
		UUID: uuid.New(), Source: "g2b", ExternalID: "T-1",
		Title: "도로 보수 공사", FirstSeenAt: now, LastSeenAt: now,
	}
	require.NoError(t, store.Tenders().Save(ctx, tender))

	detail := testingutil.TenderDetail("도로 보수 공사", "서울시청", "서울", "건설", "2027-06-30", 0, 500000000)
	detail["url"] = "https://g2b.example/tenders/T-1"

	result, err := normalization.NormalizeOne(ctx, "g2b", tender.ID, "T-1", detail, now)
	require.NoError(t, err)
	require.Equal(t, dto.NormalizationSuccess, result.Status)

	provider := services.NewMockNotificationProvider(failCount)
	flow := businessflow.NewMatchNotifyFlow(
		store.Revisions(), store.Subscriptions(), store.MatchOutcomes(), store.DeliveryLogs(),
		provider, nil, maxAttempts,
	)

	return &matchNotifyHarness{
		store:      store,
		fixtures:   testingutil.NewTestFixtures(store),
		flow:       flow,
		provider:   provider,
		revisionID: result.RevisionID,
	}
}

func eventKeyFor(subscriptionID, revisionID uint) string {
	return utils.KeyHash("match_notify",
		strconv.FormatUint(uint64(subscriptionID), 10),
		strconv.FormatUint(uint64(revisionID), 10),
	)
}

func TestRunForRevisionScoresAndDelivers(t *testing.T) {
	ctx := context.Background()
	h := newMatchNotifyHarness(t, 0, 3)

	subscription, err := h.fixtures.CreateSubscription(testingutil.SubscriptionSpec{
		Region:              utils.ToPtr("서울"),
		PreferredCategories: []string{"건설"},
		MinBudget:           utils.ToPtr(int64(100000000)),
	})
	require.NoError(t, err)

	_, err = h.fixtures.CreateSubscription(testingutil.SubscriptionSpec{Inactive: true})
	require.NoError(t, err)

	stats, err := h.flow.RunForRevision(ctx, h.revisionID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.SubscriptionsScanned, "inactive subscriptions never participate")
	assert.Equal(t, 1, stats.MatchesComputed)
	assert.Equal(t, 1, stats.NotificationsSent)
	assert.Equal(t, 0, stats.NotificationsFailed)

	outcome, err := h.store.MatchOutcomes().ByPair(ctx, subscription.ID, h.revisionID)
	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.True(t, outcome.Matched)
	// preferred_category 35 + budget_sufficient 20 + has_source_urls 10 + hard match 10
	assert.Equal(t, 75, outcome.FitScore)

	explanation, err := outcome.GetExplanation()
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"region": true}, explanation.HardFilters)
	assert.Contains(t, explanation.TopSignals, "preferred_category")
	assert.Len(t, explanation.TopSignals, 3)
	assert.Empty(t, explanation.RiskFlags)

	sent := h.provider.GetSent()
	require.Len(t, sent, 1)
	assert.Equal(t, subscription.ID, sent[0].SubscriptionID)
	assert.Equal(t, 75, sent[0].FitScore)
}

func TestRunForRevisionDeliversExactlyOnce(t *testing.T) {
	ctx := context.Background()
	h := newMatchNotifyHarness(t, 0, 3)

	subscription, err := h.fixtures.CreateSubscription(testingutil.SubscriptionSpec{
		Region: utils.ToPtr("서울"),
	})
	require.NoError(t, err)

	first, err := h.flow.RunForRevision(ctx, h.revisionID)
	require.NoError(t, err)
	assert.Equal(t, 1, first.NotificationsSent)

	second, err := h.flow.RunForRevision(ctx, h.revisionID)
	require.NoError(t, err)
	assert.Equal(t, 0, second.NotificationsSent)
	assert.Equal(t, 1, second.NotificationsSkipped, "a delivered pair dedups to a skip")

	require.Len(t, h.provider.GetSent(), 1)
	assert.Equal(t, 1, h.store.DeliveryLogCount())

	deliveryLog, err := h.store.DeliveryLogs().ByEventKey(ctx, "email", eventKeyFor(subscription.ID, h.revisionID))
	require.NoError(t, err)
	require.NotNil(t, deliveryLog)
	assert.Equal(t, models.DeliveryStatusDelivered, deliveryLog.DeliveryStatus)
	assert.Equal(t, 1, deliveryLog.AttemptCount)
	require.NotNil(t, deliveryLog.ProviderMessageID)

	history, err := deliveryLog.GetHistory()
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, models.DeliveryStatusQueued, history[0].Status)
	assert.Equal(t, models.DeliveryStatusProcessing, history[1].Status)
	assert.Equal(t, models.DeliveryStatusDelivered, history[2].Status)
}

func TestHardFilterMismatchSkipsDelivery(t *testing.T) {
	ctx := context.Background()
	h := newMatchNotifyHarness(t, 0, 3)

	subscription, err := h.fixtures.CreateSubscription(testingutil.SubscriptionSpec{
		Region: utils.ToPtr("부산"),
	})
	require.NoError(t, err)

	stats, err := h.flow.RunForRevision(ctx, h.revisionID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.MatchesComputed)
	assert.Equal(t, 0, stats.NotificationsSent)
	assert.Equal(t, 0, h.store.DeliveryLogCount(), "unmatched pairs never enter the delivery state machine")

	outcome, err := h.store.MatchOutcomes().ByPair(ctx, subscription.ID, h.revisionID)
	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.False(t, outcome.Matched)
}

func TestRetryDueConvergesToDelivered(t *testing.T) {
	ctx := context.Background()
	h := newMatchNotifyHarness(t, 1, 3)

	subscription, err := h.fixtures.CreateSubscription(testingutil.SubscriptionSpec{
		Region: utils.ToPtr("서울"),
	})
	require.NoError(t, err)

	first, err := h.flow.RunForRevision(ctx, h.revisionID)
	require.NoError(t, err)
	assert.Equal(t, 0, first.NotificationsSent)
	assert.Equal(t, 1, first.NotificationsFailed)

	eventKey := eventKeyFor(subscription.ID, h.revisionID)
	deliveryLog, err := h.store.DeliveryLogs().ByEventKey(ctx, "email", eventKey)
	require.NoError(t, err)
	require.NotNil(t, deliveryLog)
	assert.Equal(t, models.DeliveryStatusFailed, deliveryLog.DeliveryStatus)
	assert.Equal(t, 1, deliveryLog.AttemptCount)
	require.NotNil(t, deliveryLog.NextRetryAt)
	require.NotNil(t, deliveryLog.LastError)

	// Not due yet: the first failure schedules the retry 5 minutes out.
	stats, err := h.flow.RetryDue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.NotificationsSent)

	// Pull the retry timestamp into the past and re-drive.
	past := time.Now().UTC().Add(-time.Minute)
	deliveryLog.NextRetryAt = &past
	require.NoError(t, h.store.DeliveryLogs().Update(ctx, deliveryLog))

	stats, err = h.flow.RetryDue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.NotificationsSent)
	assert.Equal(t, 0, stats.NotificationsFailed)

	deliveryLog, err = h.store.DeliveryLogs().ByEventKey(ctx, "email", eventKey)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusDelivered, deliveryLog.DeliveryStatus)
	assert.Equal(t, 2, deliveryLog.AttemptCount)
	assert.Nil(t, deliveryLog.NextRetryAt)
	assert.Nil(t, deliveryLog.LastError)

	history, err := deliveryLog.GetHistory()
	require.NoError(t, err)
	require.Len(t, history, 5)
	assert.Equal(t, models.DeliveryStatusFailed, history[2].Status)
	assert.Equal(t, models.DeliveryStatusDelivered, history[4].Status)

	// A further retry pass finds nothing due.
	stats, err = h.flow.RetryDue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.NotificationsSent)
	require.Len(t, h.provider.GetSent(), 1)
}

func TestExhaustedDeliveriesAreSkipped(t *testing.T) {
	ctx := context.Background()
	h := newMatchNotifyHarness(t, 10, 2)

	subscription, err := h.fixtures.CreateSubscription(testingutil.SubscriptionSpec{
		Region: utils.ToPtr("서울"),
	})
	require.NoError(t, err)

	eventKey := eventKeyFor(subscription.ID, h.revisionID)
	for i := 0; i < 2; i++ {
		deliveryLog, err := h.store.DeliveryLogs().ByEventKey(ctx, "email", eventKey)
		require.NoError(t, err)
		if deliveryLog != nil {
			past := time.Now().UTC().Add(-time.Minute)
			deliveryLog.NextRetryAt = &past
			require.NoError(t, h.store.DeliveryLogs().Update(ctx, deliveryLog))
		}

		stats, err := h.flow.RunForRevision(ctx, h.revisionID)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.NotificationsFailed)
	}

	stats, err := h.flow.RunForRevision(ctx, h.revisionID)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.NotificationsFailed)
	assert.Equal(t, 1, stats.NotificationsSkipped, "attempts at the cap never reach the provider")

	deliveryLog, err := h.store.DeliveryLogs().ByEventKey(ctx, "email", eventKey)
	require.NoError(t, err)
	assert.Equal(t, 2, deliveryLog.AttemptCount)
	assert.Equal(t, models.DeliveryStatusFailed, deliveryLog.DeliveryStatus)
}

func TestRunForRevisionRejectsUnusableRevisions(t *testing.T) {
	ctx := context.Background()
	h := newMatchNotifyHarness(t, 0, 3)

	_, err := h.flow.RunForRevision(ctx, 9999)
	assert.ErrorIs(t, err, businessflow.ErrRevisionNotFound)

	normalization := businessflow.NewNormalizationFlow(
		h.store.Tenders(), h.store.Revisions(), h.store.RawPayloads(), h.store.Attachments(), h.store.PipelineJobs(), nil,
	)
	tender := &models.Tender{
		UUID: uuid.New(), Source: "g2b", ExternalID: "T-9",
		Title: "broken", FirstSeenAt: time.Now().UTC(), LastSeenAt: time.Now().UTC(),
	}
	require.NoError(t, h.store.Tenders().Save(ctx, tender))

	result, err := normalization.NormalizeOne(ctx, "g2b", tender.ID, "T-9", map[string]any{"agency": "nobody"}, time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, dto.NormalizationFailed, result.Status)

	_, err = h.flow.RunForRevision(ctx, result.RevisionID)
	assert.ErrorIs(t, err, businessflow.ErrRevisionNotNormalized)
}
