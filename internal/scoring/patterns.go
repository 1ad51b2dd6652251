package scoring

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Journey bonuses.
const (
	CaseStudyToContactBonus    = 15
	MultiServiceToContactBonus = 12
	ThreeVisitsBonus           = 15
	BlogGuideCaseStudyBonus    = 10

	// ThreeVisitsWindow is the span three visits must fall within.
	ThreeVisitsWindow = 7 * 24 * time.Hour
)

// Pattern is one detected journey and its bonus.
type Pattern struct {
	Pattern     string `json:"pattern"`
	Bonus       int    `json:"bonus"`
	Description string `json:"description"`
}

// PatternInput is an ordered page journey plus optional visit timestamps.
type PatternInput struct {
	PageSequence       []string
	VisitDates         []time.Time
	HasDownloadedGuide bool
}

// PatternResult sums every detected journey.
type PatternResult struct {
	TotalBonus int       `json:"totalBonus"`
	Patterns   []Pattern `json:"patterns"`
}

func (r *PatternResult) add(p Pattern) {
	r.Patterns = append(r.Patterns, p)
	r.TotalBonus += p.Bonus
}

func isCaseStudyPage(p string) bool { return strings.HasPrefix(p, "/case-studies") }
func isContactPage(p string) bool { return strings.HasPrefix(p, "/contact") }
func isServicePage(p string) bool { return strings.HasPrefix(p, "/services") }
func isBlogPage(p string) bool { return strings.HasPrefix(p, "/blog") }

func isGuidePage(p string) bool {
	return strings.HasPrefix(p, "/resources/guides") || strings.Contains(p, "guide")
}

// DetectSequencePatterns runs four independent detectors over the journey.
// Each fires at most once and bonuses add up.
func DetectSequencePatterns(in PatternInput) PatternResult {
	res := PatternResult{Patterns: []Pattern{}}
	seq := in.PageSequence

	if caseStudyBeforeContact(seq) {
		res.add(Pattern{
			Pattern:     "case_study_to_contact",
			Bonus:       CaseStudyToContactBonus,
			Description: "Viewed case study then contacted",
		})
	}

	if n, ok := multiServiceBeforeContact(seq); ok {
		res.add(Pattern{
			Pattern:     "multi_service_to_contact",
			Bonus:       MultiServiceToContactBonus,
			Description: fmt.Sprintf("Explored %d services then contacted", n),
		})
	}

	if threeVisitsWithin(in.VisitDates, ThreeVisitsWindow) {
		res.add(Pattern{
			Pattern:     "three_visits_seven_days",
			Bonus:       ThreeVisitsBonus,
			Description: "3+ visits within 7 days (high intent)",
		})
	}

	if in.HasDownloadedGuide && blogGuideCaseStudy(seq, in.HasDownloadedGuide) {
		res.add(Pattern{
			Pattern:     "blog_guide_case_study",
			Bonus:       BlogGuideCaseStudyBonus,
			Description: "Blog -> Guide -> Case Study journey",
		})
	}

	return res
}

func caseStudyBeforeContact(seq []string) bool {
	saw := false
	for _, p := range seq {
		if isCaseStudyPage(p) {
			saw = true
		}
		if saw && isContactPage(p) {
			return true
		}
	}
	return false
}

// multiServiceBeforeContact compares the first contact visit against the last
// occurrence of the most recently first-seen distinct service page. Journeys
// that interleave several services and contacts are judged by that pair only.
func multiServiceBeforeContact(seq []string) (int, bool) {
	var unique []string
	seen := make(map[string]bool)
	for _, p := range seq {
		if isServicePage(p) && !seen[p] {
			seen[p] = true
			unique = append(unique, p)
		}
	}
	if len(unique) < 2 {
		return len(unique), false
	}

	lastService := unique[len(unique)-1]
	lastServiceIdx := -1
	contactIdx := -1
	for i, p := range seq {
		if p == lastService {
			lastServiceIdx = i
		}
		if contactIdx == -1 && isContactPage(p) {
			contactIdx = i
		}
	}
	return len(unique), contactIdx > -1 && contactIdx > lastServiceIdx
}

func threeVisitsWithin(dates []time.Time, window time.Duration) bool {
	if len(dates) < 3 {
		return false
	}
	sorted := make([]time.Time, len(dates))
	copy(sorted, dates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	for i := 0; i+2 < len(sorted); i++ {
		if sorted[i+2].Sub(sorted[i]) <= window {
			return true
		}
	}
	return false
}

func blogGuideCaseStudy(seq []string, downloaded bool) bool {
	sawBlog, sawGuide := false, false
	for _, p := range seq {
		if isBlogPage(p) {
			sawBlog = true
		}
		if sawBlog && (isGuidePage(p) || downloaded) {
			sawGuide = true
		}
		if sawBlog && sawGuide && isCaseStudyPage(p) {
			return true
		}
	}
	return false
}
