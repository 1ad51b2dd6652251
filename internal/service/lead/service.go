package lead

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/databender/leadengine/internal/domain"
	"github.com/databender/leadengine/internal/enrich"
	"github.com/databender/leadengine/internal/pkg/logger"
	"github.com/databender/leadengine/internal/scoring"
	"github.com/databender/leadengine/internal/service/sequence"
	"github.com/databender/leadengine/internal/tasks"
)

// MaxListLimit caps one page of the admin lead list.
const MaxListLimit = 100

// Enroller starts drip sequences. *sequence.Service satisfies it.
type Enroller interface {
	Enroll(ctx context.Context, email string, seqType domain.SequenceType) (sequence.Result, error)
}

// Publisher hands work to the background queue. Any tasks.Queue satisfies it.
type Publisher interface {
	Publish(ctx context.Context, t tasks.Task) error
}

// Archiver keeps a copy of exported CSV files.
type Archiver interface {
	ArchiveExport(ctx context.Context, name string, data []byte) (string, error)
}

// CompanyLookup identifies the company behind a visitor IP.
type CompanyLookup interface {
	Company(ctx context.Context, ip string) *enrich.Company
}

// Service implements lead business logic. All public methods are safe for
// concurrent use if the underlying repository is.
type Service struct {
	repo      Repository
	rules     *scoring.Rules
	enroller  Enroller
	publisher Publisher
	archive   Archiver
	companies CompanyLookup
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRules sets the email domain rules used when scoring captures.
func WithRules(r *scoring.Rules) Option {
	return func(s *Service) {
		if r != nil {
			s.rules = r
		}
	}
}

// WithEnroller enables sequence enrollment on capture.
func WithEnroller(e Enroller) Option {
	return func(s *Service) { s.enroller = e }
}

// WithPublisher enables background tasks on capture.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithArchive stores a copy of every export.
func WithArchive(a Archiver) Option {
	return func(s *Service) { s.archive = a }
}

// WithCompanyLookup identifies submitters' companies from their IP.
func WithCompanyLookup(c CompanyLookup) Option {
	return func(s *Service) { s.companies = c }
}

// NewService creates a lead service backed by the given repository.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:  repo,
		rules: scoring.DefaultRules(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns a lead by ID or ErrLeadNotFound.
func (s *Service) Get(ctx context.Context, id string) (*domain.Lead, error) {
	l, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get lead: %w", err)
	}
	if l == nil {
		return nil, ErrLeadNotFound
	}
	return l, nil
}

// GetByEmail returns the newest lead for an address or ErrLeadNotFound.
func (s *Service) GetByEmail(ctx context.Context, email string) (*domain.Lead, error) {
	l, err := s.repo.GetLeadByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("get lead by email: %w", err)
	}
	if l == nil {
		return nil, ErrLeadNotFound
	}
	return l, nil
}

// ListResult is one page of leads.
type ListResult struct {
	Leads      []domain.Lead `json:"leads"`
	NextCursor string        `json:"nextCursor,omitempty"`
	HasMore    bool          `json:"hasMore"`
}

// List returns one page of leads matching the filter, newest first.
func (s *Service) List(ctx context.Context, f ListFilter) (*ListResult, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, ErrInvalidStatus
	}
	if f.Tier != "" && !f.Tier.Valid() {
		return nil, ErrInvalidTier
	}
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	leads, cursor, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	if leads == nil {
		leads = []domain.Lead{}
	}
	return &ListResult{Leads: leads, NextCursor: cursor, HasMore: cursor != ""}, nil
}

// UpdateInput holds the admin-editable CRM fields. Nil fields are left
// untouched; an empty tier clears the assignment.
type UpdateInput struct {
	Status     *domain.LeadStatus `json:"status,omitempty"`
	Tier       *domain.LeadTier   `json:"tier,omitempty"`
	Industry   *string            `json:"industry,omitempty"`
	AssignedTo *string            `json:"assignedTo,omitempty"`
	Tags       []string           `json:"tags,omitempty"`
}

// Update applies CRM field changes to a lead and returns the result.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*domain.Lead, error) {
	l, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.apply(ctx, l, in, false); err != nil {
		return nil, err
	}
	return l, nil
}

func (s *Service) apply(ctx context.Context, l *domain.Lead, in UpdateInput, touch bool) error {
	fields := map[string]interface{}{}
	if in.Status != nil {
		if !in.Status.Valid() {
			return ErrInvalidStatus
		}
		fields["status"] = *in.Status
	}
	if in.Tier != nil {
		if *in.Tier != "" && !in.Tier.Valid() {
			return ErrInvalidTier
		}
		fields["tier"] = *in.Tier
	}
	if in.Industry != nil {
		fields["industry"] = strings.TrimSpace(*in.Industry)
	}
	if in.AssignedTo != nil {
		fields["assignedTo"] = strings.TrimSpace(*in.AssignedTo)
	}
	if in.Tags != nil {
		fields["tags"] = in.Tags
	}
	if len(fields) == 0 {
		return ErrNoChanges
	}
	now := s.now().UTC()
	if touch {
		fields["lastActivityAt"] = now
	}
	if err := s.repo.Update(ctx, l, fields); err != nil {
		return fmt.Errorf("update lead: %w", err)
	}

	if in.Status != nil {
		l.Status = *in.Status
	}
	if in.Tier != nil {
		l.Tier = *in.Tier
	}
	if in.Industry != nil {
		l.Industry = fields["industry"].(string)
	}
	if in.AssignedTo != nil {
		l.AssignedTo = fields["assignedTo"].(string)
	}
	if in.Tags != nil {
		l.Tags = in.Tags
	}
	if touch {
		l.LastActivityAt = &now
	}
	return nil
}

// AddNote appends an admin note to a lead.
func (s *Service) AddNote(ctx context.Context, id, content, author string) (*domain.LeadNote, error) {
	l, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.addNote(ctx, l, content, author)
}

func (s *Service) addNote(ctx context.Context, l *domain.Lead, content, author string) (*domain.LeadNote, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyNote
	}
	note := domain.LeadNote{
		ID:        uuid.New().String(),
		Content:   content,
		Author:    author,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.AppendNote(ctx, l, note); err != nil {
		return nil, fmt.Errorf("append note: %w", err)
	}
	return &note, nil
}

// ContactInput describes one outreach attempt.
type ContactInput struct {
	Channel  domain.ContactChannel `json:"channel" validate:"required,oneof=linkedin email phone other"`
	Campaign string                `json:"campaign,omitempty" validate:"max=200"`
	Notes    string                `json:"notes,omitempty" validate:"max=2000"`
}

// RecordContact appends to the lead's contact history. A lead still in
// status new moves to contacted.
func (s *Service) RecordContact(ctx context.Context, id string, in ContactInput) (*domain.ContactRecord, error) {
	l, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.recordContact(ctx, l, in)
}

func (s *Service) recordContact(ctx context.Context, l *domain.Lead, in ContactInput) (*domain.ContactRecord, error) {
	if !in.Channel.Valid() {
		return nil, ErrInvalidChannel
	}
	rec := domain.ContactRecord{
		ID:          uuid.New().String(),
		Channel:     in.Channel,
		ContactedAt: s.now().UTC(),
		Campaign:    in.Campaign,
		Notes:       in.Notes,
	}
	if err := s.repo.AppendContact(ctx, l, rec); err != nil {
		return nil, fmt.Errorf("append contact: %w", err)
	}

	if l.Status == domain.LeadNew {
		st := domain.LeadContacted
		if err := s.apply(ctx, l, UpdateInput{Status: &st}, true); err != nil {
			return nil, err
		}
	} else if err := s.touch(ctx, l); err != nil {
		return nil, err
	}
	logger.Info("lead contacted", "lead_id", l.LeadID, "channel", string(in.Channel))
	return &rec, nil
}

func (s *Service) touch(ctx context.Context, l *domain.Lead) error {
	now := s.now().UTC()
	if err := s.repo.Update(ctx, l, map[string]interface{}{"lastActivityAt": now}); err != nil {
		return fmt.Errorf("update lead: %w", err)
	}
	l.LastActivityAt = &now
	return nil
}

// RecordOpen stores an email open against the lead named in the tracking data.
func (s *Service) RecordOpen(ctx context.Context, d sequence.TrackingData) error {
	return s.recordHit(ctx, HitOpen, d)
}

// RecordClick stores an email link click against the lead.
func (s *Service) RecordClick(ctx context.Context, d sequence.TrackingData) error {
	return s.recordHit(ctx, HitClick, d)
}

func (s *Service) recordHit(ctx context.Context, kind HitKind, d sequence.TrackingData) error {
	if d.LeadID == "" {
		return ErrLeadNotFound
	}
	l, err := s.Get(ctx, d.LeadID)
	if err != nil {
		return err
	}
	hit := domain.TrackingHit{
		EmailDay:     d.EmailDay,
		SequenceType: d.SequenceType,
		EmailID:      d.EmailID,
		At:           s.now().UTC(),
	}
	if kind == HitClick {
		hit.URL = d.DestinationURL
	}
	if err := s.repo.AppendTrackingHit(ctx, l, kind, hit); err != nil {
		return fmt.Errorf("append %s: %w", kind, err)
	}
	logger.Debug("tracking hit recorded", "lead_id", l.LeadID, "kind", string(kind), "day", d.EmailDay)
	return nil
}
