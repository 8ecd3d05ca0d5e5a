package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Subscription is a standing filter and preference profile owned by a user.
// Only active subscriptions participate in matching. Region/Category/
// DeadlineBefore are hard filters; the Preferred* and MinBudget fields are
// soft scoring signals.
type Subscription struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UUID       uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_subscriptions_uuid;not null" json:"uuid"`
	OwnerEmail string    `gorm:"size:255;index:idx_subscriptions_owner;not null" json:"owner_email"`
	Name       string    `gorm:"size:255;not null" json:"name"`
	Channel    string    `gorm:"size:32;not null;default:'email'" json:"channel"`

	Region         *string `gorm:"size:128" json:"region,omitempty"`
	Category       *string `gorm:"size:128" json:"category,omitempty"`
	DeadlineBefore *string `gorm:"size:10" json:"deadline_before,omitempty"`

	PreferredCategories pq.StringArray `gorm:"type:text[];not null;default:'{}'" json:"preferred_categories"`
	PreferredRegions    pq.StringArray `gorm:"type:text[];not null;default:'{}'" json:"preferred_regions"`
	MinBudget           *int64         `json:"min_budget,omitempty"`

	IsActive  bool      `gorm:"not null;default:true;index:idx_subscriptions_active" json:"is_active"`
	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"updated_at"`
}

func (Subscription) TableName() string { return "subscriptions" }

// SubscriptionFilter represents filter criteria for subscription queries
type SubscriptionFilter struct {
	OwnerEmail *string
	IsActive   *bool
	Channel    *string
}
