package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/databender/leadengine/internal/domain"
)

const (
	DefaultDays   = 30
	MaxDays       = 365
	dashboardDays = 7
	cohortDays    = 7 * (cohortWeeks + 4)
)

// LeadSource loads leads by creation time. *storage.LeadStore satisfies it.
type LeadSource interface {
	ListCreatedBetween(ctx context.Context, from, to time.Time) ([]domain.Lead, error)
}

// AnalyticsSource loads tracked traffic. *storage.AnalyticsStore satisfies it.
type AnalyticsSource interface {
	EventsForRange(ctx context.Context, from, to time.Time) ([]domain.TrackedEvent, error)
	SessionsForRange(ctx context.Context, from, to time.Time) ([]domain.Session, error)
	ConversionsForRange(ctx context.Context, from, to time.Time) ([]domain.ConversionPath, error)
}

// Period is the inclusive UTC date range a report covers.
type Period struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Days  int    `json:"days"`
}

// Service loads report inputs from storage.
type Service struct {
	leads     LeadSource
	analytics AnalyticsSource
	ownDomain string
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a report service. ownDomain is excluded from referrer
// rankings.
func NewService(leads LeadSource, analytics AnalyticsSource, ownDomain string, opts ...Option) *Service {
	s := &Service{leads: leads, analytics: analytics, ownDomain: ownDomain, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ClampDays applies the default and the upper bound to a requested window.
func ClampDays(days int) int {
	if days <= 0 {
		return DefaultDays
	}
	if days > MaxDays {
		return MaxDays
	}
	return days
}

// window returns the last days UTC days ending today.
func (s *Service) window(days int) (time.Time, time.Time, Period) {
	now := s.now().UTC()
	to := now
	from := now.Truncate(24*time.Hour).AddDate(0, 0, -(days - 1))
	return from, to, Period{Start: from.Format("2006-01-02"), End: to.Format("2006-01-02"), Days: days}
}

// Attribution reports page attribution over the last days days.
func (s *Service) Attribution(ctx context.Context, days int) (*AttributionReport, Period, error) {
	from, to, p := s.window(ClampDays(days))
	conv, err := s.analytics.ConversionsForRange(ctx, from, to)
	if err != nil {
		return nil, p, fmt.Errorf("load conversions: %w", err)
	}
	return BuildAttribution(conv), p, nil
}

// Cohorts reports the last eight weekly cohorts.
func (s *Service) Cohorts(ctx context.Context) (*CohortReport, error) {
	now := s.now()
	leads, err := s.leads.ListCreatedBetween(ctx, now.AddDate(0, 0, -cohortDays), now)
	if err != nil {
		return nil, fmt.Errorf("load leads: %w", err)
	}
	return BuildCohorts(leads, now), nil
}

// Sources reports channel quality over the last days days.
func (s *Service) Sources(ctx context.Context, days int) (*SourcesReport, Period, error) {
	from, to, p := s.window(ClampDays(days))
	sessions, err := s.analytics.SessionsForRange(ctx, from, to)
	if err != nil {
		return nil, p, fmt.Errorf("load sessions: %w", err)
	}
	leads, err := s.leads.ListCreatedBetween(ctx, from, to)
	if err != nil {
		return nil, p, fmt.Errorf("load leads: %w", err)
	}
	return BuildSources(sessions, leads, s.ownDomain), p, nil
}

// Dashboard reports the sales overview, by default for the last week.
func (s *Service) Dashboard(ctx context.Context, days int) (*Dashboard, error) {
	if days <= 0 {
		days = dashboardDays
	}
	from, to, p := s.window(ClampDays(days))
	leads, err := s.leads.ListCreatedBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load leads: %w", err)
	}
	sessions, err := s.analytics.SessionsForRange(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	return BuildDashboard(leads, sessions, p, s.now()), nil
}

// DailySummary reports traffic for the UTC day containing day.
func (s *Service) DailySummary(ctx context.Context, day time.Time) (*Summary, error) {
	start := day.UTC().Truncate(24 * time.Hour)
	end := start.Add(24*time.Hour - time.Nanosecond)

	events, err := s.analytics.EventsForRange(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	sessions, err := s.analytics.SessionsForRange(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	week, err := s.analytics.EventsForRange(ctx, start.AddDate(0, 0, -7), start.Add(-time.Nanosecond))
	if err != nil {
		return nil, fmt.Errorf("load prior week events: %w", err)
	}
	return BuildDailySummary(start, events, sessions, week), nil
}
