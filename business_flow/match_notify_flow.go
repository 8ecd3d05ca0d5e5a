package businessflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/tenderwatch/tenderwatch/app/dto"
	"github.com/tenderwatch/tenderwatch/app/services"
	"github.com/tenderwatch/tenderwatch/models"
	"github.com/tenderwatch/tenderwatch/repository"
	"github.com/tenderwatch/tenderwatch/utils"
)

// Soft scoring weights, listed in descending priority. The fit score is
// capped at 100.
const (
	scorePreferredCategory = 35
	scorePreferredRegion   = 25
	scoreBudgetSufficient  = 20
	scoreHasSourceURLs     = 10
	scoreHardMatchBonus    = 10
	maxFitScore            = 100

	deadlineSoonWindow = 7 * 24 * time.Hour
	maxRetryDelay      = 60 * time.Minute
)

// Risk flags attached to match explanations
const (
	RiskMissingDeadline = "missing_deadline"
	RiskDeadlineSoon    = "deadline_soon"
	RiskMissingBudget   = "missing_budget"
)

// MatchNotifyFlow scores one revision against every active subscription and
// drives the per-(subscription, revision) delivery state machine. A revision
// that cannot be resolved is a caller error; everything below that is
// contained per subscription.
type MatchNotifyFlow interface {
	RunForRevision(ctx context.Context, revisionID uint) (*dto.MatchNotifyStats, error)
	// RetryDue re-drives revisions whose failed deliveries are past their
	// next retry timestamp.
	RetryDue(ctx context.Context, limit int) (*dto.MatchNotifyStats, error)
}

// MatchNotifyFlowImpl implements the match and notify business flow
type MatchNotifyFlowImpl struct {
	revisionRepo     repository.TenderRevisionRepository
	subscriptionRepo repository.SubscriptionRepository
	outcomeRepo      repository.MatchOutcomeRepository
	deliveryRepo     repository.DeliveryLogRepository
	provider         services.NotificationProvider
	db               *gorm.DB
	maxAttempts      int
}

// NewMatchNotifyFlow creates a new match and notify flow with injected dependencies
func NewMatchNotifyFlow(
	revisionRepo repository.TenderRevisionRepository,
	subscriptionRepo repository.SubscriptionRepository,
	outcomeRepo repository.MatchOutcomeRepository,
	deliveryRepo repository.DeliveryLogRepository,
	provider services.NotificationProvider,
	db *gorm.DB,
	maxAttempts int,
) MatchNotifyFlow {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &MatchNotifyFlowImpl{
		revisionRepo:     revisionRepo,
		subscriptionRepo: subscriptionRepo,
		outcomeRepo:      outcomeRepo,
		deliveryRepo:     deliveryRepo,
		provider:         provider,
		db:               db,
		maxAttempts:      maxAttempts,
	}
}

// RunForRevision evaluates every active subscription against the revision's
// canonical content, persists the outcomes, and attempts delivery for the
// matched ones.
func (f *MatchNotifyFlowImpl) RunForRevision(ctx context.Context, revisionID uint) (*dto.MatchNotifyStats, error) {
	revision, _, err := f.revisionRepo.ContextByID(ctx, revisionID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve revision %d: %w", revisionID, err)
	}
	if revision == nil {
		return nil, fmt.Errorf("%w: id %d", ErrRevisionNotFound, revisionID)
	}
	if revision.RevisionStatus != models.RevisionStatusSuccess || len(revision.CanonicalSnapshot) == 0 {
		return nil, fmt.Errorf("%w: id %d", ErrRevisionNotNormalized, revisionID)
	}

	var canonical CanonicalTender
	if err := json.Unmarshal(revision.CanonicalSnapshot, &canonical); err != nil {
		return nil, fmt.Errorf("failed to decode canonical snapshot: %w", err)
	}

	subscriptions, err := f.subscriptionRepo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active subscriptions: %w", err)
	}

	now := time.Now().UTC()
	stats := &dto.MatchNotifyStats{}

	for _, subscription := range subscriptions {
		stats.SubscriptionsScanned++

		outcome, err := f.scoreAndPersist(ctx, subscription, revision, &canonical, now)
		if err != nil {
			log.Printf("Match scoring failed for subscription %d revision %d: %v", subscription.ID, revision.ID, err)
			continue
		}
		stats.MatchesComputed++

		if !outcome.Matched {
			continue
		}

		f.deliver(ctx, subscription, revision, outcome, now, stats)
	}

	return stats, nil
}

func (f *MatchNotifyFlowImpl) scoreAndPersist(ctx context.Context, subscription *models.Subscription, revision *models.TenderRevision, canonical *CanonicalTender, now time.Time) (*models.MatchOutcome, error) {
	matched, hardFilters := evaluateHardFilters(subscription, canonical)
	score, signals := scoreSoftSignals(subscription, canonical, matched)

	outcome := &models.MatchOutcome{
		SubscriptionID:   subscription.ID,
		TenderRevisionID: revision.ID,
		FitScore:         score,
		Matched:          matched,
		ScoredAt:         now,
	}
	if err := outcome.SetExplanation(models.MatchExplanation{
		HardFilters: hardFilters,
		TopSignals:  topSignals(signals, 3),
		RiskFlags:   riskFlags(canonical, now),
	}); err != nil {
		return nil, fmt.Errorf("failed to encode match explanation: %w", err)
	}

	if err := f.outcomeRepo.Upsert(ctx, outcome); err != nil {
		return nil, fmt.Errorf("failed to persist match outcome: %w", err)
	}
	return outcome, nil
}

// evaluateHardFilters applies only the filters the subscription specifies.
// With none specified the match is vacuously true.
func evaluateHardFilters(subscription *models.Subscription, canonical *CanonicalTender) (bool, map[string]bool) {
	hardFilters := make(map[string]bool)
	matched := true

	if subscription.Region != nil {
		pass := canonical.Region != nil && *canonical.Region == *subscription.Region
		hardFilters["region"] = pass
		matched = matched && pass
	}
	if subscription.Category != nil {
		pass := canonical.Category != nil && *canonical.Category == *subscription.Category
		hardFilters["category"] = pass
		matched = matched && pass
	}
	if subscription.DeadlineBefore != nil {
		// YYYY-MM-DD strings compare correctly as bytes.
		pass := canonical.Deadline != nil && *canonical.Deadline <= *subscription.DeadlineBefore
		hardFilters["deadline"] = pass
		matched = matched && pass
	}

	return matched, hardFilters
}

func scoreSoftSignals(subscription *models.Subscription, canonical *CanonicalTender, matched bool) (int, []string) {
	score := 0
	var signals []string

	if canonical.Category != nil && containsString(subscription.PreferredCategories, *canonical.Category) {
		score += scorePreferredCategory
		signals = append(signals, "preferred_category")
	}
	if canonical.Region != nil && containsString(subscription.PreferredRegions, *canonical.Region) {
		score += scorePreferredRegion
		signals = append(signals, "preferred_region")
	}
	if canonical.BudgetMax != nil && subscription.MinBudget != nil && *canonical.BudgetMax >= *subscription.MinBudget {
		score += scoreBudgetSufficient
		signals = append(signals, "budget_sufficient")
	}
	if len(canonical.SourceURLs) > 0 {
		score += scoreHasSourceURLs
		signals = append(signals, "has_source_urls")
	}
	if matched {
		score += scoreHardMatchBonus
		signals = append(signals, "hard_filters_matched")
	}

	if score > maxFitScore {
		score = maxFitScore
	}
	return score, signals
}

func riskFlags(canonical *CanonicalTender, now time.Time) []string {
	var flags []string

	if canonical.Deadline == nil {
		flags = append(flags, RiskMissingDeadline)
	} else if deadline, err := time.Parse(utils.DeadlineDateLayout, *canonical.Deadline); err == nil {
		if deadline.Before(now.Add(deadlineSoonWindow)) {
			flags = append(flags, RiskDeadlineSoon)
		}
	}
	if canonical.BudgetMin == nil && canonical.BudgetMax == nil {
		flags = append(flags, RiskMissingBudget)
	}

	return flags
}

func topSignals(signals []string, n int) []string {
	if len(signals) <= n {
		return signals
	}
	return signals[:n]
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// deliver runs one step of the delivery state machine for a matched pair.
// Provider failures are recorded with a retry timestamp and counted, never
// propagated.
func (f *MatchNotifyFlowImpl) deliver(ctx context.Context, subscription *models.Subscription, revision *models.TenderRevision, outcome *models.MatchOutcome, now time.Time, stats *dto.MatchNotifyStats) {
	eventKey := utils.KeyHash("match_notify", uintKey(subscription.ID), uintKey(revision.ID))

	deliveryLog, err := f.deliveryRepo.ByEventKey(ctx, subscription.Channel, eventKey)
	if err != nil {
		log.Printf("Failed to load delivery log for subscription %d: %v", subscription.ID, err)
		stats.NotificationsFailed++
		return
	}

	if deliveryLog != nil {
		if deliveryLog.DeliveryStatus == models.DeliveryStatusDelivered {
			stats.NotificationsSkipped++
			return
		}
		if deliveryLog.AttemptCount >= deliveryLog.MaxAttempts {
			stats.NotificationsSkipped++
			return
		}
	} else {
		deliveryLog, err = f.createDeliveryLog(ctx, subscription, revision, eventKey, now)
		if err != nil {
			log.Printf("Failed to create delivery log for subscription %d: %v", subscription.ID, err)
			stats.NotificationsFailed++
			return
		}
		// A concurrent run may have delivered between create and re-read.
		if deliveryLog.DeliveryStatus == models.DeliveryStatusDelivered {
			stats.NotificationsSkipped++
			return
		}
	}

	deliveryLog.DeliveryStatus = models.DeliveryStatusProcessing
	deliveryLog.AttemptCount++
	if err := deliveryLog.AppendHistory(models.DeliveryStatusProcessing, now, fmt.Sprintf("attempt %d", deliveryLog.AttemptCount)); err != nil {
		log.Printf("Failed to append delivery history: %v", err)
	}
	if err := f.deliveryRepo.Update(ctx, deliveryLog); err != nil {
		log.Printf("Failed to persist processing transition: %v", err)
		stats.NotificationsFailed++
		return
	}

	messageID, sendErr := f.provider.Send(ctx, subscription, revision, outcome)
	if sendErr != nil {
		f.recordDeliveryFailure(ctx, deliveryLog, sendErr, now)
		stats.NotificationsFailed++
		return
	}

	deliveryLog.DeliveryStatus = models.DeliveryStatusDelivered
	deliveryLog.LastError = nil
	deliveryLog.NextRetryAt = nil
	deliveryLog.ProviderMessageID = &messageID
	if err := deliveryLog.AppendHistory(models.DeliveryStatusDelivered, time.Now().UTC(), ""); err != nil {
		log.Printf("Failed to append delivery history: %v", err)
	}
	if err := f.deliveryRepo.Update(ctx, deliveryLog); err != nil {
		log.Printf("Failed to persist delivered transition: %v", err)
		stats.NotificationsFailed++
		return
	}

	stats.NotificationsSent++
}

func (f *MatchNotifyFlowImpl) createDeliveryLog(ctx context.Context, subscription *models.Subscription, revision *models.TenderRevision, eventKey string, now time.Time) (*models.DeliveryLog, error) {
	deliveryLog := &models.DeliveryLog{
		SubscriptionID:   subscription.ID,
		TenderRevisionID: revision.ID,
		Channel:          subscription.Channel,
		EventKey:         eventKey,
		DeliveryStatus:   models.DeliveryStatusQueued,
		MaxAttempts:      f.maxAttempts,
	}
	if err := deliveryLog.AppendHistory(models.DeliveryStatusQueued, now, ""); err != nil {
		return nil, err
	}

	if err := f.deliveryRepo.Save(ctx, deliveryLog); err != nil {
		if repository.IsDuplicateKey(err) {
			existing, rerr := f.deliveryRepo.ByEventKey(ctx, subscription.Channel, eventKey)
			if rerr != nil || existing == nil {
				return nil, fmt.Errorf("failed to re-read delivery log after conflict: %w", rerr)
			}
			return existing, nil
		}
		return nil, err
	}
	return deliveryLog, nil
}

func (f *MatchNotifyFlowImpl) recordDeliveryFailure(ctx context.Context, deliveryLog *models.DeliveryLog, sendErr error, now time.Time) {
	message := sendErr.Error()

	retryDelay := time.Duration(5*deliveryLog.AttemptCount) * time.Minute
	if retryDelay > maxRetryDelay {
		retryDelay = maxRetryDelay
	}
	nextRetry := now.Add(retryDelay)

	deliveryLog.DeliveryStatus = models.DeliveryStatusFailed
	deliveryLog.LastError = &message
	deliveryLog.NextRetryAt = &nextRetry
	if err := deliveryLog.AppendHistory(models.DeliveryStatusFailed, time.Now().UTC(), message); err != nil {
		log.Printf("Failed to append delivery history: %v", err)
	}
	if err := f.deliveryRepo.Update(ctx, deliveryLog); err != nil {
		log.Printf("Failed to persist failed transition: %v", err)
	}
}

// RetryDue re-runs match and notify for every revision that has a failed
// delivery past its retry timestamp. Delivered pairs on those revisions
// dedup to skips.
func (f *MatchNotifyFlowImpl) RetryDue(ctx context.Context, limit int) (*dto.MatchNotifyStats, error) {
	due, err := f.deliveryRepo.ListDueRetries(ctx, time.Now().UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due retries: %w", err)
	}

	seen := make(map[uint]bool)
	total := &dto.MatchNotifyStats{}

	for _, deliveryLog := range due {
		if seen[deliveryLog.TenderRevisionID] {
			continue
		}
		seen[deliveryLog.TenderRevisionID] = true

		stats, err := f.RunForRevision(ctx, deliveryLog.TenderRevisionID)
		if err != nil {
			log.Printf("Retry run failed for revision %d: %v", deliveryLog.TenderRevisionID, err)
			continue
		}
		total.Add(stats)
	}

	return total, nil
}
