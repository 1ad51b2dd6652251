package api

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/databender/leadengine/internal/domain"
	"github.com/databender/leadengine/internal/service/lead"
)

// memStore backs the lead, sequence and report services in handler tests.
type memStore struct {
	mu    sync.RWMutex
	leads map[string]*domain.Lead
}

func newMemStore() *memStore {
	return &memStore{leads: make(map[string]*domain.Lead)}
}

func (m *memStore) add(l domain.Lead) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leads[l.LeadID] = &l
}

func (m *memStore) get(id string) domain.Lead {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.leads[id]
}

func (m *memStore) all() []domain.Lead {
	out := make([]domain.Lead, 0, len(m.leads))
	for _, l := range m.leads {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *memStore) GetLeadByEmail(_ context.Context, email string) (*domain.Lead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, l := range m.all() {
		if l.Email == email {
			l := l
			return &l, nil
		}
	}
	return nil, nil
}

func (m *memStore) GetByID(_ context.Context, id string) (*domain.Lead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.leads[id]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (m *memStore) Put(_ context.Context, l *domain.Lead) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *l
	m.leads[l.LeadID] = &cp
	return nil
}

func (m *memStore) Update(_ context.Context, l *domain.Lead, fields map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.leads[l.LeadID]
	if !ok {
		return errors.New("conditional check failed")
	}
	for k, v := range fields {
		switch k {
		case "status":
			stored.Status = v.(domain.LeadStatus)
		case "tier":
			stored.Tier = v.(domain.LeadTier)
		case "industry":
			stored.Industry = v.(string)
		case "assignedTo":
			stored.AssignedTo = v.(string)
		case "lastActivityAt":
			t := v.(time.Time)
			stored.LastActivityAt = &t
		}
	}
	return nil
}

func (m *memStore) AppendNote(_ context.Context, l *domain.Lead, note domain.LeadNote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leads[l.LeadID].Notes = append(m.leads[l.LeadID].Notes, note)
	return nil
}

func (m *memStore) AppendContact(_ context.Context, l *domain.Lead, rec domain.ContactRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leads[l.LeadID].ContactHistory = append(m.leads[l.LeadID].ContactHistory, rec)
	return nil
}

func (m *memStore) AppendTrackingHit(_ context.Context, _ *domain.Lead, _ lead.HitKind, _ domain.TrackingHit) error {
	return nil
}

func (m *memStore) List(_ context.Context, f lead.ListFilter) ([]domain.Lead, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Lead
	for _, l := range m.all() {
		l := l
		if f.Matches(&l) {
			out = append(out, l)
		}
	}
	if len(out) > f.Limit {
		return out[:f.Limit], "more", nil
	}
	return out, "", nil
}

func (m *memStore) ListCreatedBetween(_ context.Context, from, to time.Time) ([]domain.Lead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f := lead.ListFilter{From: from, To: to}
	var out []domain.Lead
	for _, l := range m.all() {
		l := l
		if f.Matches(&l) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memStore) SaveSequence(_ context.Context, l *domain.Lead, seq *domain.EmailSequence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.leads[l.LeadID]
	if !ok {
		return errors.New("conditional check failed")
	}
	cp := *seq
	stored.EmailSequence = &cp
	return nil
}

func (m *memStore) ListActiveSequences(_ context.Context) ([]domain.Lead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Lead
	for _, l := range m.all() {
		if l.EmailSequence != nil && l.EmailSequence.Status == domain.SequenceActive {
			out = append(out, l)
		}
	}
	return out, nil
}

// emptyAnalytics has no tracked traffic.
type emptyAnalytics struct{}

func (emptyAnalytics) EventsForRange(context.Context, time.Time, time.Time) ([]domain.TrackedEvent, error) {
	return nil, nil
}

func (emptyAnalytics) SessionsForRange(context.Context, time.Time, time.Time) ([]domain.Session, error) {
	return nil, nil
}

func (emptyAnalytics) ConversionsForRange(context.Context, time.Time, time.Time) ([]domain.ConversionPath, error) {
	return nil, nil
}
