package scoring

import (
	"math"
	"time"

	"github.com/databender/leadengine/internal/domain"
)

// Decay policy. A score loses DecayRate of its weight every DecayPeriodDays
// and is worth nothing after MaxDecayDays.
const (
	DecayRate       = 0.5
	DecayPeriodDays = 30
	MaxDecayDays    = 90
)

// DecayMultiplier returns the weight in [0,1] of an event that happened
// daysSinceEvent days ago. Future or same-day events keep full weight.
func DecayMultiplier(daysSinceEvent int) float64 {
	if daysSinceEvent <= 0 {
		return 1
	}
	if daysSinceEvent >= MaxDecayDays {
		return 0
	}
	factor := DecayRate * (float64(daysSinceEvent) / DecayPeriodDays)
	return math.Max(0, 1-factor)
}

// ApplyTimeDecay scales score by the decay multiplier, rounding half up.
func ApplyTimeDecay(score, daysSinceEvent int) int {
	return roundHalfUp(float64(score) * DecayMultiplier(daysSinceEvent))
}

// DaysBetween counts whole calendar days from event to now. Both times are
// truncated to UTC midnight first, so 23:59 -> 00:01 is one day.
func DaysBetween(event, now time.Time) int {
	e := truncateDay(event)
	n := truncateDay(now)
	return int(math.Floor(n.Sub(e).Hours() / 24))
}

// DecayedTotal sums every event's decayed score as of now. The sum is
// independent of event order.
func DecayedTotal(events []domain.ScoreEvent, now time.Time) int {
	total := 0
	for _, ev := range events {
		total += ApplyTimeDecay(ev.Score, DaysBetween(ev.Timestamp, now))
	}
	return total
}

// DecayStatus describes how stale a score is, for display.
type DecayStatus struct {
	DecayPercentage int    `json:"decayPercentage"`
	Label           string `json:"label"`
	IsExpired       bool   `json:"isExpired"`
}

// StatusFor labels the decay of an event daysSinceEvent old.
func StatusFor(daysSinceEvent int) DecayStatus {
	if daysSinceEvent >= MaxDecayDays {
		return DecayStatus{DecayPercentage: 100, Label: "Expired", IsExpired: true}
	}
	pct := roundHalfUp((1 - DecayMultiplier(daysSinceEvent)) * 100)

	var label string
	switch {
	case pct == 0:
		label = "Fresh"
	case pct < 25:
		label = "Recent"
	case pct < 50:
		label = "Aging"
	case pct < 75:
		label = "Stale"
	default:
		label = "Nearly Expired"
	}
	return DecayStatus{DecayPercentage: pct, Label: label}
}

func truncateDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func roundHalfUp(f float64) int {
	return int(math.Floor(f + 0.5))
}
