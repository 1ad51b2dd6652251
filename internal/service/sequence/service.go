package sequence

import (
	"context"
	"fmt"
	"time"

	"github.com/databender/leadengine/internal/domain"
	"github.com/databender/leadengine/internal/pkg/logger"
)

// DefaultSoftBounceThreshold is the number of soft bounces after which an
// address is treated as hard bounced.
const DefaultSoftBounceThreshold = 3

// Actions reported in Result.Action.
const (
	ActionEnrolled      = "enrolled"
	ActionPaused        = "paused"
	ActionResumed       = "resumed"
	ActionReplied       = "replied"
	ActionBounced       = "bounced"
	ActionSoftBounce    = "soft_bounce_recorded"
	ActionPromoted      = "promoted_to_hard_bounce"
	ActionUnsubscribed  = "unsubscribed"
	ActionComplained    = "complained"
	ActionCompleted     = "completed"
	ActionEmailRecorded = "email_recorded"
	ActionLeadNotFound  = "lead_not_found"
	ActionNoSequence    = "no_sequence"
	ActionIgnored       = "ignored"
)

// Result is the outcome of a state transition. Success=false with a Reason
// is a business refusal, not a failure.
type Result struct {
	Success bool   `json:"success"`
	Action  string `json:"action,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func refused(action, reason string) Result {
	return Result{Success: false, Action: action, Reason: reason}
}

func ok(action string) Result {
	return Result{Success: true, Action: action}
}

// Eligibility answers whether a lead may be enrolled.
type Eligibility struct {
	CanEnroll bool   `json:"canEnroll"`
	Reason    string `json:"reason,omitempty"`
}

// Service implements sequence state transitions. It is safe for concurrent use.
type Service struct {
	repo                Repository
	softBounceThreshold int
	now                 func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithSoftBounceThreshold sets how many soft bounces promote to a hard bounce.
// Values below 1 keep the default.
func WithSoftBounceThreshold(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.softBounceThreshold = n
		}
	}
}

// NewService creates a sequence service backed by the given repository.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:                repo,
		softBounceThreshold: DefaultSoftBounceThreshold,
		now:                 time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) load(ctx context.Context, email string) (*domain.Lead, error) {
	lead, err := s.repo.GetLeadByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("load lead: %w", err)
	}
	return lead, nil
}

func (s *Service) save(ctx context.Context, lead *domain.Lead, seq *domain.EmailSequence) error {
	if err := s.repo.SaveSequence(ctx, lead, seq); err != nil {
		return fmt.Errorf("save sequence: %w", err)
	}
	lead.EmailSequence = seq
	return nil
}

// Status returns the lead and its sequence, or ErrLeadNotFound.
func (s *Service) Status(ctx context.Context, email string) (*domain.Lead, error) {
	lead, err := s.load(ctx, email)
	if err != nil {
		return nil, err
	}
	if lead == nil {
		return nil, ErrLeadNotFound
	}
	return lead, nil
}

// ListActive returns all leads with an active sequence.
func (s *Service) ListActive(ctx context.Context) ([]domain.Lead, error) {
	return s.repo.ListActiveSequences(ctx)
}

// CheckEligibility reports whether lead may start a new sequence. A missing
// lead or sequence is eligible.
func CheckEligibility(lead *domain.Lead) Eligibility {
	if lead == nil || lead.EmailSequence == nil {
		return Eligibility{CanEnroll: true}
	}
	seq := lead.EmailSequence
	switch {
	case seq.Status == domain.SequenceActive:
		return Eligibility{Reason: "Already in active sequence"}
	case seq.Status == domain.SequenceUnsubscribed:
		return Eligibility{Reason: "Previously unsubscribed"}
	case seq.IsHardBounced():
		return Eligibility{Reason: "Email address bounced (invalid)"}
	case seq.ComplainedAt != nil:
		return Eligibility{Reason: "Previously marked as spam"}
	}
	return Eligibility{CanEnroll: true}
}

// CanEnroll reports whether the address may be enrolled in a sequence.
func (s *Service) CanEnroll(ctx context.Context, email string) (Eligibility, error) {
	lead, err := s.load(ctx, email)
	if err != nil {
		return Eligibility{}, err
	}
	return CheckEligibility(lead), nil
}

// Enroll starts a fresh sequence of the given type. The lead must exist and
// pass CheckEligibility.
func (s *Service) Enroll(ctx context.Context, email string, seqType domain.SequenceType) (Result, error) {
	if !seqType.Valid() {
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidSequenceType, seqType)
	}
	lead, err := s.load(ctx, email)
	if err != nil {
		return Result{}, err
	}
	if lead == nil {
		return refused(ActionLeadNotFound, "Lead not found"), nil
	}
	if e := CheckEligibility(lead); !e.CanEnroll {
		return refused(ActionIgnored, e.Reason), nil
	}

	seq := &domain.EmailSequence{
		SequenceType: seqType,
		EnrolledAt:   s.now().UTC(),
		Status:       domain.SequenceActive,
		CurrentDay:   0,
		EmailsSent:   map[string]domain.EmailSentRecord{},
	}
	if err := s.save(ctx, lead, seq); err != nil {
		return Result{}, err
	}
	logger.Info("sequence enrolled", "email", lead.Email, "sequence_type", string(seqType))
	return ok(ActionEnrolled), nil
}

// Pause stops sending for an active sequence. Pausing an already paused
// sequence succeeds without changing the stored reason.
func (s *Service) Pause(ctx context.Context, email, reason string) (Result, error) {
	if reason == "" {
		reason = domain.PauseManual
	}
	lead, err := s.load(ctx, email)
	if err != nil {
		return Result{}, err
	}
	if lead == nil || lead.EmailSequence == nil {
		return refused(ActionNoSequence, "Lead or sequence not found"), nil
	}
	cur := lead.EmailSequence
	switch {
	case cur.IsTerminal():
		return refused(ActionIgnored, fmt.Sprintf("Cannot pause %s sequence", cur.Status)), nil
	case cur.Status == domain.SequencePaused:
		return ok(ActionPaused), nil
	case cur.Status != domain.SequenceActive:
		return refused(ActionIgnored, fmt.Sprintf("Sequence is %s, not active", cur.Status)), nil
	}

	now := s.now().UTC()
	seq := cur.Clone()
	seq.Status = domain.SequencePaused
	seq.PauseReason = reason
	seq.PausedAt = &now
	if err := s.save(ctx, lead, seq); err != nil {
		return Result{}, err
	}
	logger.Info("sequence paused", "email", lead.Email, "reason", reason)
	return ok(ActionPaused), nil
}

// Resume reactivates a paused sequence. Bounced, unsubscribed and complained
// sequences are refused and left untouched.
func (s *Service) Resume(ctx context.Context, email string) (Result, error) {
	lead, err := s.load(ctx, email)
	if err != nil {
		return Result{}, err
	}
	if lead == nil || lead.EmailSequence == nil {
		return refused(ActionNoSequence, "Lead or sequence not found"), nil
	}
	cur := lead.EmailSequence
	switch {
	case cur.Status == domain.SequenceUnsubscribed:
		return refused(ActionIgnored, "Cannot resume unsubscribed lead"), nil
	case cur.IsHardBounced():
		return refused(ActionIgnored, "Cannot resume bounced lead (hard bounce)"), nil
	case cur.Status != domain.SequencePaused:
		return refused(ActionIgnored, fmt.Sprintf("Sequence is %s, not paused", cur.Status)), nil
	case cur.PauseReason == domain.PauseComplaint || cur.ComplainedAt != nil:
		return refused(ActionIgnored, "Cannot resume after spam complaint"), nil
	}

	now := s.now().UTC()
	seq := cur.Clone()
	seq.Status = domain.SequenceActive
	seq.ResumedAt = &now
	if cur.PauseReason == domain.PauseBounceSoft {
		seq.BounceCount = 0
	}
	if err := s.save(ctx, lead, seq); err != nil {
		return Result{}, err
	}
	logger.Info("sequence resumed", "email", lead.Email, "previous_reason", cur.PauseReason)
	return ok(ActionResumed), nil
}

// HandleReply pauses any non-terminal sequence with reason "replied".
func (s *Service) HandleReply(ctx context.Context, email string) (Result, error) {
	lead, err := s.load(ctx, email)
	if err != nil {
		return Result{}, err
	}
	if lead == nil || lead.EmailSequence == nil {
		return refused(ActionNoSequence, "Lead or sequence not found"), nil
	}
	cur := lead.EmailSequence
	if cur.IsTerminal() {
		return refused(ActionIgnored, fmt.Sprintf("Sequence is %s", cur.Status)), nil
	}

	now := s.now().UTC()
	seq := cur.Clone()
	seq.Status = domain.SequencePaused
	seq.PauseReason = domain.PauseReplied
	seq.PausedAt = &now
	seq.RepliedAt = &now
	if err := s.save(ctx, lead, seq); err != nil {
		return Result{}, err
	}
	logger.Info("sequence paused on reply", "email", lead.Email)
	return ok(ActionReplied), nil
}

// placeholder is recorded when SES feedback arrives for a lead that was
// never enrolled, so the address is still blocked from future enrollment.
func (s *Service) placeholder(status domain.SequenceStatus) *domain.EmailSequence {
	return &domain.EmailSequence{
		EnrolledAt: s.now().UTC(),
		Status:     status,
		EmailsSent: map[string]domain.EmailSentRecord{},
	}
}

// HandleBounce records an SES bounce. Hard bounces are terminal. Soft and
// undetermined bounces increment BounceCount and are promoted to a hard
// bounce once the count reaches the soft bounce threshold.
func (s *Service) HandleBounce(ctx context.Context, email string, bounceType domain.BounceType, reason string) (Result, error) {
	lead, err := s.load(ctx, email)
	if err != nil {
		return Result{}, err
	}
	if lead == nil {
		return refused(ActionLeadNotFound, "Lead not found"), nil
	}

	now := s.now().UTC()
	var seq *domain.EmailSequence
	if lead.EmailSequence != nil {
		seq = lead.EmailSequence.Clone()
	} else {
		seq = s.placeholder(domain.SequencePaused)
		seq.PauseReason = domain.PauseBounceSoft
	}
	seq.BounceCount++
	seq.LastBounceAt = &now
	seq.LastBounceReason = reason

	action := ActionBounced
	hard := bounceType == domain.BounceHard
	if !hard && !seq.IsTerminal() && seq.BounceCount >= s.softBounceThreshold {
		hard = true
		action = ActionPromoted
	}

	switch {
	case hard:
		seq.Status = domain.SequenceBounced
		seq.BounceType = domain.BounceHard
		seq.PauseReason = domain.PauseBounceHard
		seq.PausedAt = &now
	case seq.IsTerminal():
		action = ActionSoftBounce
	default:
		if bounceType == "" {
			bounceType = domain.BounceSoft
		}
		seq.BounceType = bounceType
		action = ActionSoftBounce
	}

	if err := s.save(ctx, lead, seq); err != nil {
		return Result{}, err
	}
	logger.Warn("email bounce recorded",
		"email", lead.Email,
		"bounce_type", string(bounceType),
		"bounce_count", seq.BounceCount,
		"action", action,
	)
	return ok(action), nil
}

// HandleComplaint unsubscribes the lead from any state and marks the
// complaint. This is terminal.
func (s *Service) HandleComplaint(ctx context.Context, email string) (Result, error) {
	lead, err := s.load(ctx, email)
	if err != nil {
		return Result{}, err
	}
	if lead == nil {
		return refused(ActionLeadNotFound, "Lead not found"), nil
	}

	now := s.now().UTC()
	seq := lead.EmailSequence.Clone()
	if seq == nil {
		seq = s.placeholder(domain.SequenceUnsubscribed)
	}
	seq.Status = domain.SequenceUnsubscribed
	seq.UnsubscribedAt = &now
	seq.ComplainedAt = &now
	seq.PauseReason = domain.PauseComplaint
	if err := s.save(ctx, lead, seq); err != nil {
		return Result{}, err
	}
	logger.Warn("spam complaint recorded", "email", lead.Email)
	return ok(ActionComplained), nil
}

// Unsubscribe marks the lead unsubscribed. Repeated calls keep the first
// unsubscribe timestamp.
func (s *Service) Unsubscribe(ctx context.Context, email string) (Result, error) {
	lead, err := s.load(ctx, email)
	if err != nil {
		return Result{}, err
	}
	if lead == nil {
		return refused(ActionLeadNotFound, "Lead not found"), nil
	}
	if cur := lead.EmailSequence; cur != nil && cur.Status == domain.SequenceUnsubscribed {
		return ok(ActionUnsubscribed), nil
	}

	now := s.now().UTC()
	seq := lead.EmailSequence.Clone()
	if seq == nil {
		seq = s.placeholder(domain.SequenceUnsubscribed)
	}
	seq.Status = domain.SequenceUnsubscribed
	seq.UnsubscribedAt = &now
	if err := s.save(ctx, lead, seq); err != nil {
		return Result{}, err
	}
	logger.Info("lead unsubscribed", "email", lead.Email)
	return ok(ActionUnsubscribed), nil
}

// Complete marks the sequence finished.
func (s *Service) Complete(ctx context.Context, email string) (Result, error) {
	lead, err := s.load(ctx, email)
	if err != nil {
		return Result{}, err
	}
	if lead == nil || lead.EmailSequence == nil {
		return refused(ActionNoSequence, "Lead or sequence not found"), nil
	}
	if lead.EmailSequence.IsTerminal() {
		return refused(ActionIgnored, fmt.Sprintf("Sequence is %s", lead.EmailSequence.Status)), nil
	}

	now := s.now().UTC()
	seq := lead.EmailSequence.Clone()
	seq.Status = domain.SequenceCompleted
	seq.CompletedAt = &now
	if err := s.save(ctx, lead, seq); err != nil {
		return Result{}, err
	}
	return ok(ActionCompleted), nil
}

// RecordEmailSent stores delivery of a schedule day. Sending the final day
// of an active sequence completes it.
func (s *Service) RecordEmailSent(ctx context.Context, email string, day int, messageID string) (Result, error) {
	lead, err := s.load(ctx, email)
	if err != nil {
		return Result{}, err
	}
	if lead == nil || lead.EmailSequence == nil {
		return refused(ActionNoSequence, "Lead or sequence not found"), nil
	}

	now := s.now().UTC()
	seq := lead.EmailSequence.Clone()
	seq.CurrentDay = day
	seq.EmailsSent[domain.DayKey(day)] = domain.EmailSentRecord{SentAt: now, MessageID: messageID}

	action := ActionEmailRecorded
	if seq.Status == domain.SequenceActive && day == seq.SequenceType.FinalDay() {
		seq.Status = domain.SequenceCompleted
		seq.CompletedAt = &now
		action = ActionCompleted
	}
	if err := s.save(ctx, lead, seq); err != nil {
		return Result{}, err
	}
	return ok(action), nil
}

// NextEmailDay returns the earliest due and unsent schedule day of an active
// sequence. Days are counted as whole 24h periods since enrollment.
func NextEmailDay(seq *domain.EmailSequence, now time.Time) (int, bool) {
	if seq == nil || seq.Status != domain.SequenceActive {
		return 0, false
	}
	elapsed := int(now.Sub(seq.EnrolledAt) / (24 * time.Hour))
	for _, day := range seq.SequenceType.Schedule() {
		if day <= elapsed && !seq.WasSent(day) {
			return day, true
		}
	}
	return 0, false
}

// ScheduleExhausted reports whether every schedule day has been delivered.
func ScheduleExhausted(seq *domain.EmailSequence) bool {
	if seq == nil {
		return false
	}
	for _, day := range seq.SequenceType.Schedule() {
		if !seq.WasSent(day) {
			return false
		}
	}
	return true
}
