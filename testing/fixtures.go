package testing

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/tenderwatch/tenderwatch/app/dto"
	"github.com/tenderwatch/tenderwatch/app/services"
	"github.com/tenderwatch/tenderwatch/models"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	Store *MemStore
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(store *MemStore) *TestFixtures {
	return &TestFixtures{Store: store}
}

// SubscriptionSpec describes the subscription a test wants created. Zero
// values mean "no filter" or "no preference".
type SubscriptionSpec struct {
	Channel             string
	Region              *string
	Category            *string
	DeadlineBefore      *string
	PreferredCategories []string
	PreferredRegions    []string
	MinBudget           *int64
	Inactive            bool
}

// CreateSubscription persists a subscription built from the given description
func (tf *TestFixtures) CreateSubscription(spec SubscriptionSpec) (*models.Subscription, error) {
	channel := spec.Channel
	if channel == "" {
		channel = "email"
	}

	randomDigits := fmt.Sprintf("%09d", rand.Intn(900000000)+100000000)
	subscription := &models.Subscription{
		UUID:                uuid.New(),
		OwnerEmail:          fmt.Sprintf("watcher.%s@example.com", randomDigits),
		Name:                fmt.Sprintf("watch-%s", randomDigits),
		Channel:             channel,
		Region:              spec.Region,
		Category:            spec.Category,
		DeadlineBefore:      spec.DeadlineBefore,
		PreferredCategories: pq.StringArray(spec.PreferredCategories),
		PreferredRegions:    pq.StringArray(spec.PreferredRegions),
		MinBudget:           spec.MinBudget,
		IsActive:            !spec.Inactive,
	}

	if err := tf.Store.Subscriptions().Save(context.Background(), subscription); err != nil {
		return nil, fmt.Errorf("failed to create test subscription: %w", err)
	}
	return subscription, nil
}

// TenderDetail builds a raw source payload for one tender. Empty strings and
// zero budgets are left out so tests can exercise missing-field behavior.
func TenderDetail(title, agency, region, category, deadline string, budgetMin, budgetMax int64) map[string]any {
	detail := map[string]any{}
	if title != "" {
		detail["title"] = title
	}
	if agency != "" {
		detail["agency"] = agency
	}
	if region != "" {
		detail["region"] = region
	}
	if category != "" {
		detail["category"] = category
	}
	if deadline != "" {
		detail["deadline"] = deadline
	}
	if budgetMin > 0 {
		detail["budget_min"] = budgetMin
	}
	if budgetMax > 0 {
		detail["budget_max"] = budgetMax
	}
	return detail
}

// WithAttachments adds attachment entries to a detail payload
func WithAttachments(detail map[string]any, attachments ...map[string]any) map[string]any {
	items := make([]any, 0, len(attachments))
	for _, a := range attachments {
		items = append(items, a)
	}
	detail["attachments"] = items
	return detail
}

// Attachment builds one attachment entry for a detail payload
func Attachment(name, fileURL, mimeType string) map[string]any {
	a := map[string]any{"name": name, "url": fileURL}
	if mimeType != "" {
		a["mime_type"] = mimeType
	}
	return a
}

// SeedConnector loads the mock connector with one tender per detail, keyed by
// external id, and lists all of them
func SeedConnector(connector *services.MockTenderConnector, details map[string]map[string]any) {
	for id, detail := range details {
		title, _ := detail["title"].(string)
		connector.Summaries = append(connector.Summaries, dto.TenderSummary{
			ID:    id,
			Title: title,
		})
		connector.Details[id] = detail
	}
}
