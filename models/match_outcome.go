package models

import (
	"encoding/json"
	"time"
)

// MatchExplanation is the structured JSON explanation persisted with a match
// outcome: which hard filters passed, which soft signals fired, and which
// risk flags were raised.
type MatchExplanation struct {
	HardFilters map[string]bool `json:"hard_filters"`
	TopSignals  []string        `json:"top_signals"`
	RiskFlags   []string        `json:"risk_flags"`
}

// MatchOutcome is the result of evaluating one (subscription, revision) pair.
// It is upserted per pair so re-scoring is idempotent.
type MatchOutcome struct {
	ID               uint `gorm:"primaryKey" json:"id"`
	SubscriptionID   uint `gorm:"uniqueIndex:idx_match_outcomes_pair;not null" json:"subscription_id"`
	TenderRevisionID uint `gorm:"uniqueIndex:idx_match_outcomes_pair;not null" json:"tender_revision_id"`

	FitScore    int             `gorm:"not null" json:"fit_score"`
	Matched     bool            `gorm:"not null;index:idx_match_outcomes_matched" json:"matched"`
	Explanation json.RawMessage `gorm:"type:jsonb;not null" json:"explanation"`

	ScoredAt  time.Time `gorm:"not null" json:"scored_at"`
	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');not null" json:"updated_at"`
}

func (MatchOutcome) TableName() string { return "match_outcomes" }

// SetExplanation marshals the explanation into the jsonb column
func (m *MatchOutcome) SetExplanation(exp MatchExplanation) error {
	raw, err := json.Marshal(exp)
	if err != nil {
		return err
	}
	m.Explanation = raw
	return nil
}

// GetExplanation unmarshals the stored explanation
func (m *MatchOutcome) GetExplanation() (MatchExplanation, error) {
	var exp MatchExplanation
	if len(m.Explanation) == 0 {
		return exp, nil
	}
	err := json.Unmarshal(m.Explanation, &exp)
	return exp, err
}
