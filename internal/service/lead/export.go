package lead

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/databender/leadengine/internal/domain"
	"github.com/databender/leadengine/internal/pkg/logger"
)

// Count is a labeled tally.
type Count struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// DayCount is the number of leads created on one UTC day.
type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Stats summarises the leads created in a date range.
type Stats struct {
	TotalLeads       int            `json:"totalLeads"`
	ByStatus         map[string]int `json:"byStatus"`
	ByTier           map[string]int `json:"byTier"`
	ByIndustry       map[string]int `json:"byIndustry"`
	ByFormType       map[string]int `json:"byFormType"`
	ByLeadSource     map[string]int `json:"byLeadSource"`
	AvgBehaviorScore float64        `json:"avgBehaviorScore"`
	LeadsByDay       []DayCount     `json:"leadsByDay"`
	TopSources       []Count        `json:"topSources"`
}

const topSourceCount = 10

// Stats tallies leads created between from and to inclusive.
func (s *Service) Stats(ctx context.Context, from, to time.Time) (*Stats, error) {
	leads, err := s.repo.ListCreatedBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	return ComputeStats(leads), nil
}

// ComputeStats is the pure fold behind Stats. Every known status, tier, form
// type and lead source appears with a zero count when absent.
func ComputeStats(leads []domain.Lead) *Stats {
	st := &Stats{
		ByStatus:     map[string]int{},
		ByTier:       map[string]int{"A": 0, "B": 0, "C": 0, "unassigned": 0},
		ByIndustry:   map[string]int{},
		ByFormType:   map[string]int{},
		ByLeadSource: map[string]int{},
		LeadsByDay:   []DayCount{},
		TopSources:   []Count{},
	}
	for _, v := range domain.LeadStatuses {
		st.ByStatus[string(v)] = 0
	}
	for _, v := range domain.FormTypes {
		st.ByFormType[string(v)] = 0
	}
	for _, v := range []domain.LeadSource{
		domain.SourceWebsite, domain.SourceCSVImport, domain.SourceLinkedIn, domain.SourceReferral,
		domain.SourceEvent, domain.SourceColdResearch, domain.SourceOther,
	} {
		st.ByLeadSource[string(v)] = 0
	}

	sources := map[string]int{}
	days := map[string]int{}
	scoreSum, scored := 0, 0
	for i := range leads {
		l := &leads[i]
		st.TotalLeads++
		st.ByStatus[string(l.Status)]++

		if l.Tier != "" {
			st.ByTier[string(l.Tier)]++
		} else {
			st.ByTier["unassigned"]++
		}

		industry := firstNonEmpty(l.Industry, l.IdentifiedIndustry, "Unknown")
		st.ByIndustry[industry]++
		st.ByFormType[string(l.FormType)]++
		st.ByLeadSource[firstNonEmpty(string(l.LeadSource), string(domain.SourceWebsite))]++
		sources[firstNonEmpty(l.UTMSource, l.ReferrerSource, l.FirstTouchSource, "Direct")]++
		days[l.CreatedAt.UTC().Format("2006-01-02")]++

		if l.BehaviorScore > 0 {
			scoreSum += l.BehaviorScore
			scored++
		}
	}
	if scored > 0 {
		st.AvgBehaviorScore = float64(scoreSum) / float64(scored)
	}

	for d, n := range days {
		st.LeadsByDay = append(st.LeadsByDay, DayCount{Date: d, Count: n})
	}
	sort.Slice(st.LeadsByDay, func(i, j int) bool { return st.LeadsByDay[i].Date < st.LeadsByDay[j].Date })

	st.TopSources = topCounts(sources, topSourceCount)
	return st
}

// topCounts sorts by count descending, then label, and keeps n.
func topCounts(m map[string]int, n int) []Count {
	out := make([]Count, 0, len(m))
	for k, v := range m {
		out = append(out, Count{Label: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

var exportHeader = []string{
	"Lead ID", "Email", "First Name", "Last Name", "Company", "Phone", "Status", "Tier",
	"Industry", "Form Type", "Resource", "Source Page", "Behavior Score", "Behavior Tier",
	"Identified Company", "Identified Industry", "UTM Source", "UTM Medium", "UTM Campaign",
	"Referrer Source", "Assigned To", "Contacted Via LinkedIn", "Contacted Via Email",
	"Last Contact Date", "Last Contact Channel", "Created At", "Updated At", "Message",
}

// ExportResult is a rendered CSV export.
type ExportResult struct {
	CSV        []byte
	Count      int
	ArchiveKey string
}

// Export renders every lead matching the filter as CSV, newest first. Limit
// and Cursor are ignored. With an archive configured a copy is stored; an
// archive failure is logged and the export still returns.
func (s *Service) Export(ctx context.Context, f ListFilter) (*ExportResult, error) {
	leads, err := s.repo.ListCreatedBetween(ctx, f.From, f.To)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	matched := leads[:0]
	for i := range leads {
		if f.Matches(&leads[i]) {
			matched = append(matched, leads[i])
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	data, err := WriteCSV(matched)
	if err != nil {
		return nil, err
	}
	res := &ExportResult{CSV: data, Count: len(matched)}

	if s.archive != nil {
		name := fmt.Sprintf("leads-%s.csv", s.now().UTC().Format("20060102-150405"))
		key, err := s.archive.ArchiveExport(ctx, name, data)
		if err != nil {
			logger.Warn("archive export failed", "error", err.Error())
		} else {
			res.ArchiveKey = key
		}
	}
	logger.Info("leads exported", "count", res.Count, "archive_key", res.ArchiveKey)
	return res, nil
}

// WriteCSV renders leads with the export header row.
func WriteCSV(leads []domain.Lead) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeader); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for i := range leads {
		if err := w.Write(csvRow(&leads[i])); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func csvRow(l *domain.Lead) []string {
	var lastDate, lastChannel string
	if last := lastContact(l); last != nil {
		lastDate = last.ContactedAt.UTC().Format(time.RFC3339)
		lastChannel = string(last.Channel)
	}
	score := ""
	if l.BehaviorScore > 0 {
		score = strconv.Itoa(l.BehaviorScore)
	}
	return []string{
		l.LeadID, l.Email, l.FirstName, l.LastName, l.Company, l.Phone, string(l.Status), string(l.Tier),
		l.Industry, string(l.FormType), l.ResourceTitle, l.SourcePage, score, string(l.BehaviorTier),
		l.IdentifiedCompany, l.IdentifiedIndustry, l.UTMSource, l.UTMMedium, l.UTMCampaign,
		l.ReferrerSource, l.AssignedTo, yesNo(l.ContactedVia(domain.ChannelLinkedIn)), yesNo(l.ContactedVia(domain.ChannelEmail)),
		lastDate, lastChannel, l.CreatedAt.UTC().Format(time.RFC3339), l.UpdatedAt.UTC().Format(time.RFC3339), l.Message,
	}
}

func lastContact(l *domain.Lead) *domain.ContactRecord {
	var last *domain.ContactRecord
	for i := range l.ContactHistory {
		if last == nil || l.ContactHistory[i].ContactedAt.After(last.ContactedAt) {
			last = &l.ContactHistory[i]
		}
	}
	return last
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
