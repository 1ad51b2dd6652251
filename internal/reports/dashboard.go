package reports

import (
	"sort"
	"strings"
	"time"

	"github.com/databender/leadengine/internal/domain"
)

const (
	hotLeadScore      = 70
	priorityLeadScore = 40
	priorityLeadCount = 5
	topContentCount   = 5
)

// ActionItems are the counts the sales team acts on first.
type ActionItems struct {
	HotLeadsToContact   int `json:"hotLeadsToContact"`
	NewToday            int `json:"newToday"`
	NeedFollowUp        int `json:"needFollowUp"`
	CompaniesToResearch int `json:"companiesToResearch"`
}

// PriorityLead is an uncontacted lead worth reaching out to.
type PriorityLead struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Company   string            `json:"company"`
	Score     int               `json:"score"`
	Tier      domain.LeadTier   `json:"tier"`
	Status    domain.LeadStatus `json:"status"`
	Industry  string            `json:"industry,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Funnel counts visitors down to customers.
type Funnel struct {
	Visitors            int `json:"visitors"`
	IdentifiedCompanies int `json:"identifiedCompanies"`
	Leads               int `json:"leads"`
	Contacted           int `json:"contacted"`
	Qualified           int `json:"qualified"`
	Customers           int `json:"customers"`
}

// ContentConversion is leads attributed to one page.
type ContentConversion struct {
	Page           string  `json:"page"`
	Leads          int     `json:"leads"`
	ConversionRate float64 `json:"conversionRate"`
}

// ChannelOutreach is contacted versus total leads for one channel.
type ChannelOutreach struct {
	Contacted int `json:"contacted"`
	Total     int `json:"total"`
}

// Outreach summarises contact coverage.
type Outreach struct {
	LinkedIn  ChannelOutreach `json:"linkedin"`
	Email     ChannelOutreach `json:"email"`
	Untouched int             `json:"untouched"`
}

// ChannelScore is lead count and mean behavior score for one channel.
type ChannelScore struct {
	Source   string  `json:"source"`
	Leads    int     `json:"leads"`
	AvgScore float64 `json:"avgScore"`
}

// Dashboard is the sales overview for a trailing window.
type Dashboard struct {
	Period            Period              `json:"period"`
	ActionItems       ActionItems         `json:"actionItems"`
	PriorityLeads     []PriorityLead      `json:"priorityLeads"`
	Funnel            Funnel              `json:"funnel"`
	ConvertingContent []ContentConversion `json:"convertingContent"`
	Outreach          Outreach            `json:"outreach"`
	Channels          []ChannelScore      `json:"channels"`
}

// BuildDashboard folds the window's leads and sessions into the sales
// overview. Leads count as new today when created on now's UTC date.
// A company seen in sessions but not on any lead needs research.
func BuildDashboard(leads []domain.Lead, sessions []domain.Session, period Period, now time.Time) *Dashboard {
	d := &Dashboard{
		Period:            period,
		PriorityLeads:     []PriorityLead{},
		ConvertingContent: []ContentConversion{},
		Channels:          []ChannelScore{},
	}
	today := now.UTC().Truncate(24 * time.Hour)

	knownCompanies := map[string]bool{}
	content := map[string]int{}
	channels := map[string][2]int{}
	var priority []*domain.Lead

	for i := range leads {
		l := &leads[i]
		contacted := l.HasBeenContacted()

		if !contacted && (l.Tier == domain.TierA || l.BehaviorScore >= hotLeadScore) {
			d.ActionItems.HotLeadsToContact++
		}
		if !l.CreatedAt.Before(today) {
			d.ActionItems.NewToday++
		}
		if l.Status == domain.LeadContacted && contacted {
			d.ActionItems.NeedFollowUp++
		}
		if !contacted && l.BehaviorScore >= priorityLeadScore {
			priority = append(priority, l)
		}

		for _, c := range []string{l.Company, l.IdentifiedCompany} {
			if c != "" {
				knownCompanies[strings.ToLower(c)] = true
			}
		}

		switch l.Status {
		case domain.LeadCustomer:
			d.Funnel.Customers++
			fallthrough
		case domain.LeadQualified, domain.LeadOpportunity:
			d.Funnel.Qualified++
			fallthrough
		case domain.LeadContacted:
			d.Funnel.Contacted++
		}

		content[firstNonEmpty(l.SourcePage, l.FirstTouchLandingPage, "/")]++

		ch := firstNonEmpty(l.UTMSource, l.ReferrerSource, "direct")
		acc := channels[ch]
		acc[0]++
		acc[1] += l.BehaviorScore
		channels[ch] = acc

		d.Outreach.LinkedIn.Total++
		d.Outreach.Email.Total++
		if l.ContactedVia(domain.ChannelLinkedIn) {
			d.Outreach.LinkedIn.Contacted++
		}
		if l.ContactedVia(domain.ChannelEmail) {
			d.Outreach.Email.Contacted++
		}
		if !contacted {
			d.Outreach.Untouched++
		}
	}
	d.Funnel.Leads = len(leads)

	visitors := map[string]struct{}{}
	companies := map[string]struct{}{}
	pageSessions := map[string]int{}
	for i := range sessions {
		s := &sessions[i]
		visitors[s.VisitorID] = struct{}{}
		if s.CompanyName != "" {
			key := strings.ToLower(s.CompanyName)
			companies[key] = struct{}{}
		}
		seen := map[string]bool{}
		for _, p := range append([]string{s.EntryPage}, s.PagesVisited...) {
			if p != "" && !seen[p] {
				seen[p] = true
				pageSessions[p]++
			}
		}
	}
	d.Funnel.Visitors = len(visitors)
	d.Funnel.IdentifiedCompanies = len(companies)
	for c := range companies {
		if !knownCompanies[c] {
			d.ActionItems.CompaniesToResearch++
		}
	}

	sort.SliceStable(priority, func(i, j int) bool {
		if priority[i].BehaviorScore != priority[j].BehaviorScore {
			return priority[i].BehaviorScore > priority[j].BehaviorScore
		}
		return priority[i].CreatedAt.After(priority[j].CreatedAt)
	})
	for _, l := range priority {
		if len(d.PriorityLeads) == priorityLeadCount {
			break
		}
		tier := l.Tier
		if tier == "" {
			tier = domain.TierC
		}
		d.PriorityLeads = append(d.PriorityLeads, PriorityLead{
			ID:        l.LeadID,
			Name:      l.FullName(),
			Company:   firstNonEmpty(l.Company, l.IdentifiedCompany),
			Score:     l.BehaviorScore,
			Tier:      tier,
			Status:    l.Status,
			Industry:  firstNonEmpty(l.Industry, l.IdentifiedIndustry),
			CreatedAt: l.CreatedAt,
		})
	}

	for _, p := range ranked(content) {
		if len(d.ConvertingContent) == topContentCount {
			break
		}
		d.ConvertingContent = append(d.ConvertingContent, ContentConversion{
			Page:           p,
			Leads:          content[p],
			ConversionRate: round(percent(content[p], pageSessions[p]), 1),
		})
	}

	for src, acc := range channels {
		d.Channels = append(d.Channels, ChannelScore{
			Source:   src,
			Leads:    acc[0],
			AvgScore: round(float64(acc[1])/float64(acc[0]), 1),
		})
	}
	sort.Slice(d.Channels, func(i, j int) bool {
		if d.Channels[i].AvgScore != d.Channels[j].AvgScore {
			return d.Channels[i].AvgScore > d.Channels[j].AvgScore
		}
		return d.Channels[i].Source < d.Channels[j].Source
	})
	return d
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
