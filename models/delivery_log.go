package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// DeliveryStatus represents the state of a notification delivery
type DeliveryStatus string

const (
	DeliveryStatusQueued     DeliveryStatus = "queued"
	DeliveryStatusProcessing DeliveryStatus = "processing"
	DeliveryStatusDelivered  DeliveryStatus = "delivered"
	DeliveryStatusFailed     DeliveryStatus = "failed"
)

// String returns the string representation of the status
func (s DeliveryStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliveryStatusQueued, DeliveryStatusProcessing,
		DeliveryStatusDelivered, DeliveryStatusFailed:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for DeliveryStatus
func (s *DeliveryStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = DeliveryStatus(v)
	case []byte:
		*s = DeliveryStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into DeliveryStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for DeliveryStatus
func (s DeliveryStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid DeliveryStatus: %s", s)
	}
	return string(s), nil
}

// StatusTransition is one audit entry in a delivery log's status history
type StatusTransition struct {
	Status DeliveryStatus `json:"status"`
	At     time.Time      `json:"at"`
	Note   string         `json:"note,omitempty"`
}

// DeliveryLog is the persisted notification state machine instance for one
// (subscription, channel, event key) triple, where the event key is derived
// from the subscription and revision ids. Transitions:
// queued -> processing -> {delivered, failed}, failed -> processing on retry
// until MaxAttempts is reached.
type DeliveryLog struct {
	ID               uint   `gorm:"primaryKey" json:"id"`
	SubscriptionID   uint   `gorm:"index:idx_delivery_logs_subscription;not null" json:"subscription_id"`
	TenderRevisionID uint   `gorm:"index:idx_delivery_logs_revision;not null" json:"tender_revision_id"`
	Channel          string `gorm:"size:32;uniqueIndex:idx_delivery_logs_event;not null" json:"channel"`
	EventKey         string `gorm:"size:64;uniqueIndex:idx_delivery_logs_event;not null" json:"event_key"`

	DeliveryStatus DeliveryStatus `gorm:"size:16;not null;default:'queued'" json:"delivery_status"`
	AttemptCount   int            `gorm:"not null;default:0" json:"attempt_count"`
	MaxAttempts    int            `gorm:"not null;default:3" json:"max_attempts"`
	NextRetryAt    *time.Time     `gorm:"index:idx_delivery_logs_next_retry" json:"next_retry_at,omitempty"`

	LastError         *string         `gorm:"type:text" json:"last_error,omitempty"`
	ProviderMessageID *string         `gorm:"size:128" json:"provider_message_id,omitempty"`
	StatusHistory     json.RawMessage `gorm:"type:jsonb;not null;default:'[]'" json:"status_history"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"updated_at"`
}

func (DeliveryLog) TableName() string { return "delivery_logs" }

// AppendHistory records a status transition in the audit trail
func (d *DeliveryLog) AppendHistory(status DeliveryStatus, at time.Time, note string) error {
	history, err := d.GetHistory()
	if err != nil {
		return err
	}
	history = append(history, StatusTransition{Status: status, At: at, Note: note})
	raw, err := json.Marshal(history)
	if err != nil {
		return err
	}
	d.StatusHistory = raw
	return nil
}

// GetHistory unmarshals the status history audit trail
func (d *DeliveryLog) GetHistory() ([]StatusTransition, error) {
	if len(d.StatusHistory) == 0 {
		return nil, nil
	}
	var history []StatusTransition
	if err := json.Unmarshal(d.StatusHistory, &history); err != nil {
		return nil, err
	}
	return history, nil
}

// DeliveryLogFilter represents filter criteria for delivery log queries
type DeliveryLogFilter struct {
	SubscriptionID   *uint
	TenderRevisionID *uint
	DeliveryStatus   *DeliveryStatus
}
