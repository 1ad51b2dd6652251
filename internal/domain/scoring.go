package domain

import "time"

// BehaviorTier is the coarse bucket derived from a behavioral score.
type BehaviorTier string

const (
	BehaviorCold    BehaviorTier = "Cold"
	BehaviorWarm    BehaviorTier = "Warm"
	BehaviorHot     BehaviorTier = "Hot"
	BehaviorVeryHot BehaviorTier = "Very Hot"
)

// ScoreEvent is a single scored interaction used for decay aggregation.
// It is transient and never persisted on its own.
type ScoreEvent struct {
	Score     int       `json:"score"`
	EventType string    `json:"eventType"`
	Timestamp time.Time `json:"timestamp"`
	Page      string    `json:"page,omitempty"`
}
