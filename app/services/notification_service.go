package services

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/tenderwatch/tenderwatch/models"
)

// NotificationProvider delivers one matched revision to one subscriber and
// returns the provider-side message id. Transport details (email/SMS) live
// behind this interface.
type NotificationProvider interface {
	Send(ctx context.Context, subscription *models.Subscription, revision *models.TenderRevision, outcome *models.MatchOutcome) (string, error)
}

// NoopNotificationProvider is the reference implementation for local use:
// it logs the delivery and fabricates a message id.
type NoopNotificationProvider struct{}

// NewNoopNotificationProvider creates the no-op reference provider
func NewNoopNotificationProvider() NotificationProvider {
	return &NoopNotificationProvider{}
}

func (p *NoopNotificationProvider) Send(_ context.Context, subscription *models.Subscription, revision *models.TenderRevision, outcome *models.MatchOutcome) (string, error) {
	messageID := "noop-" + uuid.New().String()
	log.Printf("Notification for subscription %d (%s) revision %d score=%d message_id=%s",
		subscription.ID, subscription.Channel, revision.ID, outcome.FitScore, messageID)
	return messageID, nil
}

// SentNotification records one delivery accepted by the mock provider
type SentNotification struct {
	SubscriptionID   uint
	TenderRevisionID uint
	Channel          string
	FitScore         int
	MessageID        string
}

// MockNotificationProvider records deliveries and can be scripted to fail a
// number of times before succeeding.
type MockNotificationProvider struct {
	mu           sync.Mutex
	sent         []SentNotification
	failuresLeft int
}

// NewMockNotificationProvider creates a mock provider that fails the first
// failCount sends.
func NewMockNotificationProvider(failCount int) *MockNotificationProvider {
	return &MockNotificationProvider{failuresLeft: failCount}
}

func (p *MockNotificationProvider) Send(_ context.Context, subscription *models.Subscription, revision *models.TenderRevision, outcome *models.MatchOutcome) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failuresLeft > 0 {
		p.failuresLeft--
		return "", fmt.Errorf("simulated delivery failure for subscription %d", subscription.ID)
	}

	messageID := "mock-" + uuid.New().String()
	p.sent = append(p.sent, SentNotification{
		SubscriptionID:   subscription.ID,
		TenderRevisionID: revision.ID,
		Channel:          subscription.Channel,
		FitScore:         outcome.FitScore,
		MessageID:        messageID,
	})
	return messageID, nil
}

// GetSent returns a copy of the recorded deliveries
func (p *MockNotificationProvider) GetSent() []SentNotification {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SentNotification, len(p.sent))
	copy(out, p.sent)
	return out
}

// ClearSent drops the recorded deliveries
func (p *MockNotificationProvider) ClearSent() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = nil
}
