package reports

import (
	"math"
	"net/url"
	"sort"
	"strings"

	"github.com/databender/leadengine/internal/domain"
)

// TrafficSource is a channel bucket for sessions and leads.
type TrafficSource string

const (
	SourceLinkedIn TrafficSource = "linkedin"
	SourceTwitter  TrafficSource = "twitter"
	SourceOrganic  TrafficSource = "organic"
	SourceDirect   TrafficSource = "direct"
	SourceReferral TrafficSource = "referral"
	SourcePaid     TrafficSource = "paid"
	SourceOther    TrafficSource = "other"
)

var trafficSources = []TrafficSource{
	SourceLinkedIn, SourceTwitter, SourceOrganic, SourceDirect, SourceReferral, SourcePaid, SourceOther,
}

const topReferrerCount = 20

// CategorizeSource buckets a (source, medium) pair as recorded on sessions
// and leads.
func CategorizeSource(source, medium string) TrafficSource {
	source = strings.ToLower(strings.TrimSpace(source))
	medium = strings.ToLower(strings.TrimSpace(medium))

	switch {
	case medium == "cpc" || medium == "ppc" || medium == "paid" || strings.HasSuffix(source, "_ads"):
		return SourcePaid
	case strings.Contains(source, "linkedin") || source == "lnkd.in":
		return SourceLinkedIn
	case strings.Contains(source, "twitter") || source == "x.com" || source == "t.co":
		return SourceTwitter
	case medium == "organic":
		return SourceOrganic
	case source == "" || source == "direct":
		return SourceDirect
	case medium == "referral" || medium == "social":
		return SourceReferral
	}
	for _, s := range searchSources {
		if strings.Contains(source, s) {
			return SourceOrganic
		}
	}
	return SourceOther
}

// ExtractDomain reduces a referrer URL or host to its bare host name.
func ExtractDomain(ref string) string {
	ref = strings.ToLower(strings.TrimSpace(ref))
	if ref == "" {
		return ""
	}
	if !strings.Contains(ref, "://") {
		ref = "https://" + ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

// SourceQuality is traffic and lead yield for one channel.
type SourceQuality struct {
	Source           TrafficSource `json:"source"`
	Sessions         int           `json:"sessions"`
	Visitors         int           `json:"visitors"`
	Leads            int           `json:"leads"`
	ConversionRate   float64       `json:"conversionRate"`
	AvgBehaviorScore int           `json:"avgBehaviorScore"`
}

// ReferrerQuality is traffic and lead yield for one referring site.
type ReferrerQuality struct {
	Domain   string `json:"domain"`
	Visitors int    `json:"visitors"`
	Leads    int    `json:"leads"`
	AvgScore int    `json:"avgScore"`
}

// SourcesReport ranks channels and referrers by traffic.
type SourcesReport struct {
	TotalSessions int               `json:"totalSessions"`
	TotalLeads    int               `json:"totalLeads"`
	Sources       []SourceQuality   `json:"sources"`
	TopReferrers  []ReferrerQuality `json:"topReferrers"`
}

type sourceAcc struct {
	sessions int
	visitors map[string]struct{}
	leads    int
	score    int
	scored   int
}

func newSourceAcc() *sourceAcc { return &sourceAcc{visitors: map[string]struct{}{}} }

func (a *sourceAcc) addSession(s *domain.Session) {
	a.sessions++
	a.visitors[s.VisitorID] = struct{}{}
	if s.LeadScore > 0 {
		a.score += s.LeadScore
		a.scored++
	}
}

func (a *sourceAcc) avgScore() int {
	if a.scored == 0 {
		return 0
	}
	return int(math.Round(float64(a.score) / float64(a.scored)))
}

// BuildSources compares channels by sessions, unique visitors and leads.
// Referrers from ownDomain, and direct traffic, are left out of the referrer
// ranking.
func BuildSources(sessions []domain.Session, leads []domain.Lead, ownDomain string) *SourcesReport {
	bySource := map[TrafficSource]*sourceAcc{}
	for _, src := range trafficSources {
		bySource[src] = newSourceAcc()
	}
	referrers := map[string]*sourceAcc{}
	ownDomain = strings.ToLower(ownDomain)

	for i := range sessions {
		s := &sessions[i]
		bySource[CategorizeSource(s.ReferrerSource, s.ReferrerMedium)].addSession(s)

		d := ExtractDomain(s.ReferrerSource)
		if d == "" || d == "direct" || d == "unknown" || isOwnDomain(d, ownDomain) {
			continue
		}
		a, ok := referrers[d]
		if !ok {
			a = newSourceAcc()
			referrers[d] = a
		}
		a.addSession(s)
	}
	for i := range leads {
		l := &leads[i]
		bySource[CategorizeSource(firstNonEmpty(l.UTMSource, l.ReferrerSource), firstNonEmpty(l.UTMMedium, l.ReferrerMedium))].leads++
		if a, ok := referrers[ExtractDomain(l.ReferrerSource)]; ok {
			a.leads++
		}
	}

	r := &SourcesReport{TotalSessions: len(sessions), TotalLeads: len(leads), Sources: []SourceQuality{}, TopReferrers: []ReferrerQuality{}}
	for _, src := range trafficSources {
		a := bySource[src]
		if a.sessions == 0 && a.leads == 0 {
			continue
		}
		r.Sources = append(r.Sources, SourceQuality{
			Source:           src,
			Sessions:         a.sessions,
			Visitors:         len(a.visitors),
			Leads:            a.leads,
			ConversionRate:   round(percent(a.leads, len(a.visitors)), 2),
			AvgBehaviorScore: a.avgScore(),
		})
	}
	sort.SliceStable(r.Sources, func(i, j int) bool { return r.Sources[i].Sessions > r.Sources[j].Sessions })

	for d, a := range referrers {
		r.TopReferrers = append(r.TopReferrers, ReferrerQuality{Domain: d, Visitors: len(a.visitors), Leads: a.leads, AvgScore: a.avgScore()})
	}
	sort.Slice(r.TopReferrers, func(i, j int) bool {
		if r.TopReferrers[i].Visitors != r.TopReferrers[j].Visitors {
			return r.TopReferrers[i].Visitors > r.TopReferrers[j].Visitors
		}
		return r.TopReferrers[i].Domain < r.TopReferrers[j].Domain
	})
	if len(r.TopReferrers) > topReferrerCount {
		r.TopReferrers = r.TopReferrers[:topReferrerCount]
	}
	return r
}

func isOwnDomain(host, own string) bool {
	return own != "" && (host == own || strings.HasSuffix(host, "."+own))
}
