package scoring

import (
	"fmt"
	"strings"
	"time"

	"github.com/databender/leadengine/internal/domain"
)

// Tier upper bounds (inclusive). Scores above HotMax are Very Hot.
const (
	ColdMax = 25
	WarmMax = 50
	HotMax  = 75
)

// PageScores are exact-path weights.
var PageScores = map[string]int{
	"/contact":          30,
	"/assessment":       25,
	"/free-assessment":  25,
	"/services":         15,
	"/case-studies":     20,
	"/industries":       10,
	"/resources":        15,
	"/resources/guides": 15,
	"/":                 5,
	"/about":            5,
	"/blog":             5,
}

// Behavior weights.
const (
	ScrollDepth50Score       = 5
	ScrollDepth100Score      = 10
	ChatOpenedScore          = 20
	ChatMessageScore         = 15
	FormSubmittedScore       = 50
	AssessmentCompletedScore = 40
	GuideDownloadScore       = 75
	NewsletterSignupScore    = 60
	MultiplePagesScore       = 15
	LongSessionScore         = 10
	ReturningVisitorScore    = 25

	defaultPageScore   = 2
	multiPageThreshold = 3
	longSessionSeconds = 120
)

var prefixScores = []struct {
	prefix string
	score  int
}{
	{"/services/", 15},
	{"/case-studies/", 20},
	{"/industries/", 10},
	{"/resources/guides/", 15},
	{"/blog/", 5},
	{"/assessment", 25},
}

// PageScore weighs a single page path.
func PageScore(path string) int {
	if s, ok := PageScores[path]; ok {
		return s
	}
	for _, ps := range prefixScores {
		if strings.HasPrefix(path, ps.prefix) {
			return ps.score
		}
	}
	return defaultPageScore
}

// TierFor buckets a total score.
func TierFor(score int) domain.BehaviorTier {
	switch {
	case score <= ColdMax:
		return domain.BehaviorCold
	case score <= WarmMax:
		return domain.BehaviorWarm
	case score <= HotMax:
		return domain.BehaviorHot
	default:
		return domain.BehaviorVeryHot
	}
}

// FormScore is the behavior credit for submitting the given form type.
func FormScore(ft domain.FormType) int {
	switch ft {
	case domain.FormGuide:
		return GuideDownloadScore
	case domain.FormNewsletter:
		return NewsletterSignupScore
	case domain.FormAssessment:
		return AssessmentCompletedScore
	default:
		return FormSubmittedScore
	}
}

// VisitorData is everything known about a visitor when scoring.
type VisitorData struct {
	PagesVisited []string
	// PageSequence is the ordered journey; PagesVisited is used when empty.
	PageSequence           []string
	MaxScrollDepth         int
	ChatOpened             bool
	ChatMessagesSent       int
	FormSubmitted          bool
	AssessmentCompleted    bool
	HasDownloadedGuide     bool
	PageCount              int
	SessionDurationSeconds int
	// ActionCount falls back to PageCount when zero.
	ActionCount        int
	IsReturningVisitor bool
	Email              string
	LastVisitDate      *time.Time
	VisitDates         []time.Time
	EventTimestamps    []domain.ScoreEvent
}

// Breakdown is the full explanation of a lead score.
type Breakdown struct {
	PageScore       int                 `json:"pageScore"`
	BehaviorScore   int                 `json:"behaviorScore"`
	NegativeScore   int                 `json:"negativeScore"`
	SequenceBonus   int                 `json:"sequenceBonus"`
	VelocityBonus   int                 `json:"velocityBonus"`
	TotalScore      int                 `json:"totalScore"`
	Tier            domain.BehaviorTier `json:"tier"`
	Reasons         []string            `json:"reasons"`
	IsDisqualified  bool                `json:"isDisqualified"`
	NegativeSignals NegativeResult      `json:"negativeSignals"`
	Patterns        PatternResult       `json:"sequencePatterns"`
	Velocity        VelocityResult      `json:"velocityMetrics"`
}

// CalculateLeadScore combines page weights, behavior, journey and velocity
// bonuses, and negative deductions. The total never drops below zero and a
// disqualified visitor is always Cold.
func (r *Rules) CalculateLeadScore(d VisitorData, now time.Time) Breakdown {
	b := Breakdown{Reasons: []string{}}

	seen := make(map[string]bool)
	for _, p := range d.PagesVisited {
		if seen[p] {
			continue
		}
		seen[p] = true
		b.PageScore += PageScore(p)
	}
	if b.PageScore > 0 {
		b.Reasons = append(b.Reasons, fmt.Sprintf("Visited %d page(s)", len(seen)))
	}

	behavior := func(points int, reason string) {
		b.BehaviorScore += points
		b.Reasons = append(b.Reasons, reason)
	}
	switch {
	case d.MaxScrollDepth >= 100:
		behavior(ScrollDepth100Score, "Scrolled to bottom of page")
	case d.MaxScrollDepth >= 50:
		behavior(ScrollDepth50Score, "Scrolled 50%+ of page")
	}
	if d.ChatOpened {
		behavior(ChatOpenedScore, "Opened chat widget")
	}
	if d.ChatMessagesSent > 0 {
		behavior(ChatMessageScore*d.ChatMessagesSent, fmt.Sprintf("Sent %d chat message(s)", d.ChatMessagesSent))
	}
	if d.FormSubmitted {
		behavior(FormSubmittedScore, "Submitted a form")
	}
	if d.AssessmentCompleted {
		behavior(AssessmentCompletedScore, "Completed assessment")
	}
	if d.PageCount >= multiPageThreshold {
		behavior(MultiplePagesScore, "Viewed 3+ pages in session")
	}
	if d.SessionDurationSeconds >= longSessionSeconds {
		behavior(LongSessionScore, "Session > 2 minutes")
	}
	if d.IsReturningVisitor {
		behavior(ReturningVisitorScore, "Returning visitor")
	}

	// Decay only ever lowers the behavior component.
	if len(d.EventTimestamps) > 0 {
		decayed := DecayedTotal(d.EventTimestamps, now)
		if decayed < b.BehaviorScore {
			b.Reasons = append(b.Reasons, fmt.Sprintf("Time decay applied (%d -> %d)", b.BehaviorScore, decayed))
			b.BehaviorScore = decayed
		}
	}

	neg := NegativeInput{PagesVisited: d.PagesVisited, Email: d.Email}
	if d.LastVisitDate != nil {
		days := DaysBetween(*d.LastVisitDate, now)
		neg.DaysSinceLastVisit = &days
	}
	b.NegativeSignals = r.EvaluateNegativeSignals(neg)
	b.NegativeScore = b.NegativeSignals.TotalDeduction
	b.IsDisqualified = b.NegativeSignals.IsDisqualified
	for _, s := range b.NegativeSignals.Signals {
		b.Reasons = append(b.Reasons, fmt.Sprintf("%s (%d)", s.Reason, s.Points))
	}

	seq := d.PageSequence
	if len(seq) == 0 {
		seq = d.PagesVisited
	}
	b.Patterns = DetectSequencePatterns(PatternInput{
		PageSequence:       seq,
		VisitDates:         d.VisitDates,
		HasDownloadedGuide: d.HasDownloadedGuide,
	})
	b.SequenceBonus = b.Patterns.TotalBonus
	for _, p := range b.Patterns.Patterns {
		b.Reasons = append(b.Reasons, fmt.Sprintf("%s (+%d)", p.Description, p.Bonus))
	}

	actions := d.ActionCount
	if actions == 0 {
		actions = d.PageCount
	}
	b.Velocity = CalculateSessionVelocity(VelocityInput{
		ActionCount:            actions,
		SessionDurationSeconds: d.SessionDurationSeconds,
		PageCount:              d.PageCount,
	})
	b.VelocityBonus = b.Velocity.TotalBonus
	if b.Velocity.Metrics.HasHighActionCount {
		b.Reasons = append(b.Reasons, fmt.Sprintf("High action count: %d actions (+%d)", b.Velocity.Metrics.ActionsPerSession, HighActionCountBonus))
	}
	if b.Velocity.Metrics.HasHighEngagement {
		b.Reasons = append(b.Reasons, fmt.Sprintf("High engagement: %ds/page (+%d)", b.Velocity.Metrics.AverageSecondsPerPage, HighEngagementBonus))
	}

	total := b.PageScore + b.BehaviorScore + b.NegativeScore + b.SequenceBonus + b.VelocityBonus
	if total < 0 {
		total = 0
	}
	b.TotalScore = total
	if b.IsDisqualified {
		b.Tier = domain.BehaviorCold
	} else {
		b.Tier = TierFor(total)
	}
	return b
}

// EventScore weighs a single tracked event. Unknown event types score zero.
func EventScore(eventType domain.EventType, page string, data map[string]interface{}) int {
	switch eventType {
	case domain.EventPageview:
		return PageScore(page)
	case domain.EventScrollDepth:
		depth := numberField(data, "depth")
		switch {
		case depth >= 100:
			return ScrollDepth100Score
		case depth >= 50:
			return ScrollDepth50Score
		}
		return 0
	case domain.EventChatOpen:
		return ChatOpenedScore
	case domain.EventChatMessage:
		return ChatMessageScore
	case domain.EventFormSubmit:
		name, _ := data["formName"].(string)
		if strings.Contains(strings.ToLower(name), "assessment") {
			return AssessmentCompletedScore
		}
		return FormSubmittedScore
	case domain.EventChatLeadDetected:
		return FormSubmittedScore
	}
	return 0
}

// numberField reads a numeric value decoded from JSON.
func numberField(data map[string]interface{}, key string) float64 {
	switch v := data[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}
