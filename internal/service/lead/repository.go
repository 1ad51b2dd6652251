package lead

import (
	"context"
	"strings"
	"time"

	"github.com/databender/leadengine/internal/domain"
)

// Repository defines the data access contract for lead records.
type Repository interface {
	// GetLeadByEmail returns the most recent lead for an address, or nil, nil
	// when there is none.
	GetLeadByEmail(ctx context.Context, email string) (*domain.Lead, error)

	// GetByID returns the lead with the given leadId, or nil, nil.
	GetByID(ctx context.Context, leadID string) (*domain.Lead, error)

	// Put writes a full lead record, replacing any item with the same keys.
	Put(ctx context.Context, l *domain.Lead) error

	// Update sets the named top-level attributes on an existing lead and
	// stamps updatedAt.
	Update(ctx context.Context, l *domain.Lead, fields map[string]interface{}) error

	// AppendNote adds a note to the lead's notes list.
	AppendNote(ctx context.Context, l *domain.Lead, note domain.LeadNote) error

	// AppendContact adds an outreach record to the lead's contact history.
	AppendContact(ctx context.Context, l *domain.Lead, rec domain.ContactRecord) error

	// AppendTrackingHit adds an open or click to the matching list.
	AppendTrackingHit(ctx context.Context, l *domain.Lead, kind HitKind, hit domain.TrackingHit) error

	// List returns one page of leads matching the filter, newest first, plus
	// an opaque cursor for the next page ("" when exhausted).
	List(ctx context.Context, f ListFilter) ([]domain.Lead, string, error)

	// ListCreatedBetween returns every lead created in [from, to]. Zero times
	// leave that end unbounded.
	ListCreatedBetween(ctx context.Context, from, to time.Time) ([]domain.Lead, error)
}

// HitKind selects which tracking list a hit is appended to.
type HitKind string

const (
	HitOpen  HitKind = "opens"
	HitClick HitKind = "clicks"
)

// Contact status filter values.
const (
	ContactStatusAll          = "all"
	ContactStatusContacted    = "contacted"
	ContactStatusNotContacted = "not_contacted"
)

// ListFilter controls filtering and paging of the admin lead list.
type ListFilter struct {
	Status          domain.LeadStatus
	Tier            domain.LeadTier
	Industry        string
	FormType        domain.FormType
	From            time.Time
	To              time.Time
	MinScore        int
	Search          string
	ContactStatus   string
	ExcludeChannels []domain.ContactChannel
	Limit           int
	Cursor          string
}

// DefaultListLimit is used when a filter carries no limit.
const DefaultListLimit = 50

// Matches reports whether l passes every condition of the filter. Stores
// that push some conditions down to the database still call Matches so
// search stays case-insensitive and contact filters apply.
func (f ListFilter) Matches(l *domain.Lead) bool {
	if f.Status != "" && l.Status != f.Status {
		return false
	}
	if f.Tier != "" && l.Tier != f.Tier {
		return false
	}
	if f.Industry != "" && l.Industry != f.Industry {
		return false
	}
	if f.FormType != "" && l.FormType != f.FormType {
		return false
	}
	if !f.From.IsZero() && l.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && l.CreatedAt.After(f.To) {
		return false
	}
	if f.MinScore > 0 && l.BehaviorScore < f.MinScore {
		return false
	}
	if f.Search != "" && !matchesSearch(l, f.Search) {
		return false
	}
	switch f.ContactStatus {
	case ContactStatusContacted:
		if !l.HasBeenContacted() {
			return false
		}
	case ContactStatusNotContacted:
		if l.HasBeenContacted() {
			return false
		}
	}
	if len(f.ExcludeChannels) > 0 && l.ContactedVia(f.ExcludeChannels...) {
		return false
	}
	return true
}

func matchesSearch(l *domain.Lead, q string) bool {
	q = strings.ToLower(strings.TrimSpace(q))
	for _, field := range []string{l.Email, l.FirstName, l.LastName, l.Company} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}
