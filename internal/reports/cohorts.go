package reports

import (
	"strings"
	"time"

	"github.com/databender/leadengine/internal/domain"
)

// Cohort source categories, in reporting order.
const (
	CohortOrganic  = "organic"
	CohortPaid     = "paid"
	CohortReferral = "referral"
	CohortAISearch = "aiSearch"
	CohortDirect   = "direct"
)

var cohortSources = []string{CohortOrganic, CohortPaid, CohortReferral, CohortAISearch, CohortDirect}

const (
	cohortWeeks          = 8
	minCohortLeads       = 3
	minSourceLeads       = 5
	cohortLabelDayFormat = "Jan 2"
)

var (
	aiSearchSources = []string{"perplexity", "chatgpt", "openai", "claude", "bing-copilot", "copilot", "gemini"}
	searchSources   = []string{"google", "bing", "duckduckgo", "yahoo", "baidu", "ecosia"}
)

// SourceTally is leads and conversions from one source category.
type SourceTally struct {
	Leads          int     `json:"leads"`
	Conversions    int     `json:"conversions"`
	ConversionRate float64 `json:"conversionRate"`
}

// Cohort is the leads created in one Monday-based week.
type Cohort struct {
	Week             string                  `json:"cohortWeek"`
	Label            string                  `json:"cohortLabel"`
	TotalLeads       int                     `json:"totalLeads"`
	Conversions      int                     `json:"conversions"`
	ConversionRate   float64                 `json:"conversionRate"`
	AvgTimeToConvert *float64                `json:"avgTimeToConvert"`
	BySource         map[string]*SourceTally `json:"bySource"`
}

// BestCohort names the strongest week.
type BestCohort struct {
	Week           string  `json:"week"`
	ConversionRate float64 `json:"conversionRate"`
}

// BestSource names the strongest source category.
type BestSource struct {
	Source         string  `json:"source"`
	ConversionRate float64 `json:"conversionRate"`
}

// CohortReport compares lead quality across recent weeks.
type CohortReport struct {
	Cohorts               []Cohort    `json:"cohorts"`
	TotalLeads            int         `json:"totalLeads"`
	TotalConversions      int         `json:"totalConversions"`
	OverallConversionRate float64     `json:"overallConversionRate"`
	BestCohort            *BestCohort `json:"bestCohort"`
	BestSource            *BestSource `json:"bestSource"`
}

// CategorizeCohortSource buckets a lead by how it found the site.
func CategorizeCohortSource(l *domain.Lead) string {
	source := strings.ToLower(firstNonEmpty(l.UTMSource, l.ReferrerSource))
	medium := strings.ToLower(firstNonEmpty(l.UTMMedium, l.ReferrerMedium))

	for _, s := range aiSearchSources {
		if strings.Contains(source, s) {
			return CohortAISearch
		}
	}
	switch {
	case medium == "cpc" || medium == "ppc" || medium == "paid" || strings.HasSuffix(source, "_ads"):
		return CohortPaid
	case medium == "referral" || l.LeadSource == domain.SourceReferral:
		return CohortReferral
	}
	for _, s := range searchSources {
		if strings.Contains(source, s) {
			return CohortOrganic
		}
	}
	if medium == "organic" {
		return CohortOrganic
	}
	if source != "" && source != "direct" && source != "unknown" {
		return CohortReferral
	}
	return CohortDirect
}

// WeekStart returns the Monday 00:00 UTC on or before t.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

func cohortLabel(start time.Time) string {
	return start.Format(cohortLabelDayFormat) + " - " + start.AddDate(0, 0, 6).Format(cohortLabelDayFormat)
}

// BuildCohorts groups leads into the eight weeks ending with the week of now.
// A lead converts once it reaches qualified or later; its time to convert is
// the minutes between creation and its last update.
func BuildCohorts(leads []domain.Lead, now time.Time) *CohortReport {
	type acc struct {
		cohort  Cohort
		minutes float64
		timed   int
	}
	weeks := make([]*acc, 0, cohortWeeks)
	byKey := map[string]*acc{}
	current := WeekStart(now)
	for i := cohortWeeks - 1; i >= 0; i-- {
		start := current.AddDate(0, 0, -7*i)
		a := &acc{cohort: Cohort{
			Week:     start.Format("2006-01-02"),
			Label:    cohortLabel(start),
			BySource: map[string]*SourceTally{},
		}}
		for _, src := range cohortSources {
			a.cohort.BySource[src] = &SourceTally{}
		}
		weeks = append(weeks, a)
		byKey[a.cohort.Week] = a
	}

	sources := map[string]*SourceTally{}
	for _, src := range cohortSources {
		sources[src] = &SourceTally{}
	}

	r := &CohortReport{TotalLeads: len(leads)}
	for i := range leads {
		l := &leads[i]
		converted := l.Status.IsConverted()
		src := CategorizeCohortSource(l)

		sources[src].Leads++
		if converted {
			r.TotalConversions++
			sources[src].Conversions++
		}

		a, ok := byKey[WeekStart(l.CreatedAt).Format("2006-01-02")]
		if !ok {
			continue
		}
		a.cohort.TotalLeads++
		a.cohort.BySource[src].Leads++
		if converted {
			a.cohort.Conversions++
			a.cohort.BySource[src].Conversions++
			if mins := l.UpdatedAt.Sub(l.CreatedAt).Minutes(); mins > 0 {
				a.minutes += mins
				a.timed++
			}
		}
	}

	r.Cohorts = make([]Cohort, 0, len(weeks))
	for _, a := range weeks {
		c := a.cohort
		c.ConversionRate = round(percent(c.Conversions, c.TotalLeads), 1)
		for _, t := range c.BySource {
			t.ConversionRate = round(percent(t.Conversions, t.Leads), 1)
		}
		if a.timed > 0 {
			avg := round(a.minutes/float64(a.timed), 0)
			c.AvgTimeToConvert = &avg
		}
		r.Cohorts = append(r.Cohorts, c)

		if c.TotalLeads >= minCohortLeads && (r.BestCohort == nil || c.ConversionRate > r.BestCohort.ConversionRate) {
			r.BestCohort = &BestCohort{Week: c.Label, ConversionRate: c.ConversionRate}
		}
	}
	r.OverallConversionRate = round(percent(r.TotalConversions, r.TotalLeads), 1)

	for _, src := range cohortSources {
		t := sources[src]
		if t.Leads < minSourceLeads {
			continue
		}
		rate := round(percent(t.Conversions, t.Leads), 1)
		if r.BestSource == nil || rate > r.BestSource.ConversionRate {
			r.BestSource = &BestSource{Source: sourceDisplayName(src), ConversionRate: rate}
		}
	}
	return r
}

func sourceDisplayName(src string) string {
	if src == CohortAISearch {
		return "AI Search"
	}
	return strings.ToUpper(src[:1]) + src[1:]
}

