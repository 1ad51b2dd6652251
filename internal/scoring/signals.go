package scoring

import (
	"fmt"
	"strings"

	"github.com/databender/leadengine/internal/domain"
)

// Negative signal deductions.
const (
	CareersPageDeduction   = -15
	PersonalEmailDeduction = -10
	CompetitorDeduction    = -100
	InactivityDeduction    = -10

	// InactivityDays is the gap after which a visitor counts as gone cold.
	InactivityDays = 60
)

// DefaultPersonalDomains are consumer mailbox providers.
var DefaultPersonalDomains = []string{
	"gmail.com", "yahoo.com", "hotmail.com", "outlook.com", "aol.com",
	"icloud.com", "me.com", "mac.com", "live.com", "msn.com",
	"ymail.com", "protonmail.com", "proton.me",
}

// Rules holds the configurable domain lists used by email-based signals.
// A Rules value is read-only after construction and safe for concurrent use.
type Rules struct {
	personal   map[string]struct{}
	competitor map[string]struct{}
}

// NewRules builds rules from domain lists. A nil personal list falls back to
// DefaultPersonalDomains; competitors default to none.
func NewRules(personal, competitor []string) *Rules {
	if personal == nil {
		personal = DefaultPersonalDomains
	}
	return &Rules{personal: domainSet(personal), competitor: domainSet(competitor)}
}

// DefaultRules returns rules with the built-in personal domains and no
// competitors.
func DefaultRules() *Rules {
	return NewRules(nil, nil)
}

func domainSet(domains []string) map[string]struct{} {
	set := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			set[d] = struct{}{}
		}
	}
	return set
}

// IsPersonalEmail reports whether the address uses a consumer mailbox domain.
func (r *Rules) IsPersonalEmail(email string) bool {
	d := domain.EmailDomain(email)
	if d == "" {
		return false
	}
	_, ok := r.personal[d]
	return ok
}

// IsCompetitorEmail reports whether the address belongs to a competitor.
func (r *Rules) IsCompetitorEmail(email string) bool {
	d := domain.EmailDomain(email)
	if d == "" {
		return false
	}
	_, ok := r.competitor[d]
	return ok
}

// IsCareersPage reports whether a path looks like a job listing.
func IsCareersPage(path string) bool {
	p := strings.ToLower(path)
	return strings.Contains(p, "/careers") || strings.Contains(p, "/jobs")
}

// Signal is one fired rule and its point effect.
type Signal struct {
	Signal string `json:"signal"`
	Points int    `json:"points"`
	Reason string `json:"reason"`
}

// NegativeInput is what the negative rules look at. DaysSinceLastVisit is nil
// when the visitor has no prior visit.
type NegativeInput struct {
	PagesVisited       []string
	Email              string
	DaysSinceLastVisit *int
}

// NegativeResult sums every negative signal that fired.
type NegativeResult struct {
	TotalDeduction int      `json:"totalDeduction"`
	Signals        []Signal `json:"signals"`
	IsDisqualified bool     `json:"isDisqualified"`
}

// EvaluateNegativeSignals applies every negative rule independently and sums
// the deductions. The careers rule is a presence check and fires at most once.
// Competitor takes precedence over personal for the same address.
func (r *Rules) EvaluateNegativeSignals(in NegativeInput) NegativeResult {
	res := NegativeResult{Signals: []Signal{}}

	for _, p := range in.PagesVisited {
		if IsCareersPage(p) {
			res.add(Signal{
				Signal: "careers_page",
				Points: CareersPageDeduction,
				Reason: "Visited careers page (likely job seeker)",
			})
			break
		}
	}

	if in.Email != "" {
		if r.IsCompetitorEmail(in.Email) {
			res.add(Signal{
				Signal: "competitor_email",
				Points: CompetitorDeduction,
				Reason: "Email from competitor domain",
			})
			res.IsDisqualified = true
		} else if r.IsPersonalEmail(in.Email) {
			res.add(Signal{
				Signal: "personal_email",
				Points: PersonalEmailDeduction,
				Reason: "Personal email domain (non-business)",
			})
		}
	}

	if in.DaysSinceLastVisit != nil && *in.DaysSinceLastVisit > InactivityDays {
		res.add(Signal{
			Signal: "inactive_60_days",
			Points: InactivityDeduction,
			Reason: fmt.Sprintf("Inactive for %d days", *in.DaysSinceLastVisit),
		})
	}

	return res
}

func (r *NegativeResult) add(s Signal) {
	r.Signals = append(r.Signals, s)
	r.TotalDeduction += s.Points
}
