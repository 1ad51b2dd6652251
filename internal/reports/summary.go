package reports

import (
	"sort"
	"strings"
	"time"

	"github.com/databender/leadengine/internal/domain"
	"github.com/databender/leadengine/internal/scoring"
)

const (
	summaryTopPages     = 10
	summaryTopCompanies = 10
	summaryTopEntries   = 5
)

// PageCount is a page with a tally.
type PageCount struct {
	Page  string `json:"page"`
	Count int    `json:"count"`
}

// CompanyVisit is an identified company and how much it browsed.
type CompanyVisit struct {
	Name      string `json:"name"`
	Domain    string `json:"domain,omitempty"`
	Sessions  int    `json:"sessions"`
	Pageviews int    `json:"pageviews"`
}

// TierCounts buckets visitors by their best behavior score of the day.
type TierCounts struct {
	VeryHot int `json:"veryHot"`
	Hot     int `json:"hot"`
	Warm    int `json:"warm"`
	Cold    int `json:"cold"`
}

// Summary is one UTC day of site traffic.
type Summary struct {
	Date               string         `json:"date"`
	Pageviews          int            `json:"pageviews"`
	UniqueVisitors     int            `json:"uniqueVisitors"`
	Sessions           int            `json:"sessions"`
	AvgSessionDuration int            `json:"avgSessionDuration"`
	BounceRate         float64        `json:"bounceRate"`
	VsLastWeekAvg      float64        `json:"vsLastWeekAvg"`
	LeadTiers          TierCounts     `json:"leadTiers"`
	Conversions        int            `json:"conversions"`
	ConversionsByType  map[string]int `json:"conversionsByType"`
	Companies          []CompanyVisit `json:"companies"`
	TopConvertingPages []PageCount    `json:"topConvertingPages"`
	TopPages           []PageCount    `json:"topPages"`
}

// BuildDailySummary folds one day's events and sessions. weekEvents are the
// events of the seven days before day; VsLastWeekAvg is the percentage
// change of the day's pageviews against their daily mean. Bot events are
// ignored.
func BuildDailySummary(day time.Time, events []domain.TrackedEvent, sessions []domain.Session, weekEvents []domain.TrackedEvent) *Summary {
	s := &Summary{
		Date:               day.UTC().Format("2006-01-02"),
		Sessions:           len(sessions),
		ConversionsByType:  map[string]int{},
		Companies:          []CompanyVisit{},
		TopConvertingPages: []PageCount{},
		TopPages:           []PageCount{},
	}

	visitors := map[string]struct{}{}
	pages := map[string]int{}
	for i := range events {
		e := &events[i]
		if e.IsBot {
			continue
		}
		visitors[e.VisitorID] = struct{}{}
		if e.EventType == domain.EventPageview {
			s.Pageviews++
			pages[e.Page]++
		}
	}
	s.UniqueVisitors = len(visitors)
	s.TopPages = topPages(pages, summaryTopPages)

	weekViews := 0
	for i := range weekEvents {
		if !weekEvents[i].IsBot && weekEvents[i].EventType == domain.EventPageview {
			weekViews++
		}
	}
	if avg := float64(weekViews) / 7; avg > 0 {
		s.VsLastWeekAvg = round((float64(s.Pageviews)-avg)/avg*100, 0)
	}

	duration, bounces := 0, 0
	best := map[string]int{}
	companies := map[string]*CompanyVisit{}
	entries := map[string]int{}
	for i := range sessions {
		sess := &sessions[i]
		duration += sess.Duration
		if sess.PageCount <= 1 {
			bounces++
		}
		if sess.LeadScore > best[sess.VisitorID] {
			best[sess.VisitorID] = sess.LeadScore
		}
		if sess.IsConverted {
			s.Conversions++
			s.ConversionsByType[firstNonEmpty(sess.ConversionType, "unknown")]++
			entries[firstNonEmpty(sess.EntryPage, "/")]++
		}
		if sess.CompanyName != "" {
			key := strings.ToLower(sess.CompanyName)
			c, ok := companies[key]
			if !ok {
				c = &CompanyVisit{Name: sess.CompanyName, Domain: sess.CompanyDomain}
				companies[key] = c
			}
			c.Sessions++
			c.Pageviews += sess.PageCount
		}
	}
	if len(sessions) > 0 {
		s.AvgSessionDuration = duration / len(sessions)
	}
	s.BounceRate = round(percent(bounces, len(sessions)), 1)
	s.TopConvertingPages = topPages(entries, summaryTopEntries)

	for _, score := range best {
		if score <= 0 {
			continue
		}
		switch scoring.TierFor(score) {
		case domain.BehaviorVeryHot:
			s.LeadTiers.VeryHot++
		case domain.BehaviorHot:
			s.LeadTiers.Hot++
		case domain.BehaviorWarm:
			s.LeadTiers.Warm++
		default:
			s.LeadTiers.Cold++
		}
	}

	for _, c := range companies {
		s.Companies = append(s.Companies, *c)
	}
	sort.Slice(s.Companies, func(i, j int) bool {
		if s.Companies[i].Pageviews != s.Companies[j].Pageviews {
			return s.Companies[i].Pageviews > s.Companies[j].Pageviews
		}
		return s.Companies[i].Name < s.Companies[j].Name
	})
	if len(s.Companies) > summaryTopCompanies {
		s.Companies = s.Companies[:summaryTopCompanies]
	}
	return s
}

func topPages(counts map[string]int, n int) []PageCount {
	out := []PageCount{}
	for _, p := range ranked(counts) {
		if len(out) == n {
			break
		}
		out = append(out, PageCount{Page: p, Count: counts[p]})
	}
	return out
}

// TemplateVars flattens the summary for the daily summary email template.
func (s *Summary) TemplateVars(adminURL string) map[string]interface{} {
	list := func(pcs []PageCount) []map[string]interface{} {
		out := make([]map[string]interface{}, 0, len(pcs))
		for _, p := range pcs {
			out = append(out, map[string]interface{}{"page": p.Page, "count": p.Count})
		}
		return out
	}
	companies := make([]map[string]interface{}, 0, len(s.Companies))
	for _, c := range s.Companies {
		companies = append(companies, map[string]interface{}{
			"name": c.Name, "domain": c.Domain, "sessions": c.Sessions, "pageviews": c.Pageviews,
		})
	}
	conversions := make([]map[string]interface{}, 0, len(s.ConversionsByType))
	for _, t := range ranked(s.ConversionsByType) {
		conversions = append(conversions, map[string]interface{}{"type": t, "count": s.ConversionsByType[t]})
	}
	return map[string]interface{}{
		"date":                 s.Date,
		"pageviews":            s.Pageviews,
		"unique_visitors":      s.UniqueVisitors,
		"sessions":             s.Sessions,
		"avg_session_duration": s.AvgSessionDuration,
		"bounce_rate":          s.BounceRate,
		"vs_last_week":         s.VsLastWeekAvg,
		"very_hot":             s.LeadTiers.VeryHot,
		"hot":                  s.LeadTiers.Hot,
		"warm":                 s.LeadTiers.Warm,
		"cold":                 s.LeadTiers.Cold,
		"conversions":          s.Conversions,
		"conversions_by_type":  conversions,
		"companies":            companies,
		"top_converting_pages": list(s.TopConvertingPages),
		"top_pages":            list(s.TopPages),
		"admin_url":            adminURL,
	}
}
