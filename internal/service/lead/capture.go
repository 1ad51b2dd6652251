package lead

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/databender/leadengine/internal/domain"
	"github.com/databender/leadengine/internal/pkg/logger"
	"github.com/databender/leadengine/internal/pkg/phone"
	"github.com/databender/leadengine/internal/scoring"
	"github.com/databender/leadengine/internal/service/sequence"
	"github.com/databender/leadengine/internal/tasks"
)

// CaptureInput is a website form submission.
type CaptureInput struct {
	FirstName string `json:"firstName" validate:"required,max=100"`
	LastName  string `json:"lastName" validate:"required,max=100"`
	Email     string `json:"email" validate:"required,email,max=254"`
	Company   string `json:"company,omitempty" validate:"max=200"`
	Phone     string `json:"phone,omitempty" validate:"max=40"`
	Message   string `json:"message,omitempty" validate:"max=5000"`

	FormType      domain.FormType `json:"formType" validate:"required,oneof=contact guide audit assessment chat newsletter"`
	ResourceSlug  string          `json:"resourceSlug,omitempty"`
	ResourceTitle string          `json:"resourceTitle,omitempty"`
	SourcePage    string          `json:"sourcePage,omitempty"`

	VisitorID     string                   `json:"visitorId,omitempty"`
	SessionID     string                   `json:"sessionId,omitempty"`
	BehaviorScore int                      `json:"behaviorScore,omitempty" validate:"min=0"`
	PagesVisited  []string                 `json:"pagesVisited,omitempty"`
	PageJourney   []domain.PageJourneyStep `json:"pageJourney,omitempty"`

	IdentifiedCompany  string `json:"identifiedCompany,omitempty"`
	IdentifiedDomain   string `json:"identifiedDomain,omitempty"`
	IdentifiedIndustry string `json:"identifiedIndustry,omitempty"`

	UTMSource             string     `json:"utmSource,omitempty"`
	UTMMedium             string     `json:"utmMedium,omitempty"`
	UTMCampaign           string     `json:"utmCampaign,omitempty"`
	UTMTerm               string     `json:"utmTerm,omitempty"`
	UTMContent            string     `json:"utmContent,omitempty"`
	ReferrerSource        string     `json:"referrerSource,omitempty"`
	ReferrerMedium        string     `json:"referrerMedium,omitempty"`
	FirstTouchSource      string     `json:"firstTouchSource,omitempty"`
	FirstTouchLandingPage string     `json:"firstTouchLandingPage,omitempty"`
	FirstVisitDate        *time.Time `json:"firstVisitDate,omitempty"`

	AssessmentScores map[string]int    `json:"assessmentScores,omitempty"`
	AssessmentTier   string            `json:"assessmentTier,omitempty"`
	LeadSource       domain.LeadSource `json:"leadSource,omitempty" validate:"omitempty,oneof=website csv-import linkedin referral event cold-research other"`

	// ClientIP is set by the HTTP layer for company identification.
	ClientIP string `json:"-"`
}

// CaptureResult reports what Capture did.
type CaptureResult struct {
	Lead     *domain.Lead        `json:"-"`
	Created  bool                `json:"created"`
	Enrolled bool                `json:"enrolled"`
	Sequence domain.SequenceType `json:"sequence,omitempty"`
}

// Capture stores a form submission. An existing lead with the same email is
// updated in place; otherwise a new lead starts in status new. Sequence
// enrollment and background task failures are logged, never returned, since
// the lead itself is already saved.
func (s *Service) Capture(ctx context.Context, in CaptureInput) (*CaptureResult, error) {
	now := s.now().UTC()
	in.Email = domain.NormalizeEmail(in.Email)
	if raw := in.Phone; raw != "" {
		in.Phone = phone.NormalizeE164(raw)
		if !strings.HasPrefix(in.Phone, "+") {
			logger.Debug("phone kept as submitted", "email", in.Email, "phone", raw)
		}
	}
	s.identifyCompany(ctx, &in)

	score, tier, neg := s.score(in)
	if neg.IsDisqualified {
		logger.Info("capture from disqualified domain", "email", in.Email)
	}

	existing, err := s.repo.GetLeadByEmail(ctx, in.Email)
	if err != nil {
		return nil, fmt.Errorf("find lead: %w", err)
	}

	res := &CaptureResult{}
	if existing != nil {
		if err := s.merge(ctx, existing, in, score, tier, now); err != nil {
			return nil, err
		}
		res.Lead = existing
	} else {
		l := newLead(in, score, tier, now)
		if err := s.repo.Put(ctx, l); err != nil {
			return nil, fmt.Errorf("put lead: %w", err)
		}
		res.Lead = l
		res.Created = true
	}
	logger.Info("lead captured",
		"lead_id", res.Lead.LeadID,
		"email", in.Email,
		"form_type", string(in.FormType),
		"created", res.Created,
		"behavior_score", score,
	)

	payload := tasks.LeadPayload{Email: res.Lead.Email, LeadID: res.Lead.LeadID}
	s.publish(ctx, tasks.TypeLeadCaptured, payload)

	if seqType, ok := sequence.SequenceForForm(in.FormType, in.ResourceSlug); ok && s.enroller != nil {
		er, err := s.enroller.Enroll(ctx, res.Lead.Email, seqType)
		switch {
		case err != nil:
			logger.Error("sequence enrollment failed", "email", in.Email, "error", err.Error())
		case er.Success:
			res.Enrolled = true
			res.Sequence = seqType
			s.publish(ctx, tasks.TypeSequenceDay0, payload)
		default:
			logger.Info("sequence enrollment skipped", "email", in.Email, "reason", er.Reason)
		}
	}
	return res, nil
}

// score uses the client's behavior score when present, else the form's own
// weight, minus email-based deductions.
func (s *Service) score(in CaptureInput) (int, domain.BehaviorTier, scoring.NegativeResult) {
	base := in.BehaviorScore
	if base <= 0 {
		base = scoring.FormScore(in.FormType)
	}
	neg := s.rules.EvaluateNegativeSignals(scoring.NegativeInput{
		PagesVisited: in.PagesVisited,
		Email:        in.Email,
	})
	total := base + neg.TotalDeduction
	if total < 0 {
		total = 0
	}
	tier := scoring.TierFor(total)
	if neg.IsDisqualified {
		tier = domain.BehaviorCold
	}
	return total, tier, neg
}

func (s *Service) identifyCompany(ctx context.Context, in *CaptureInput) {
	if in.IdentifiedCompany != "" || in.ClientIP == "" || s.companies == nil {
		return
	}
	if c := s.companies.Company(ctx, in.ClientIP); c != nil {
		in.IdentifiedCompany = c.Name
		in.IdentifiedDomain = c.Domain
	}
}

func (s *Service) publish(ctx context.Context, t tasks.Type, payload tasks.LeadPayload) {
	if s.publisher == nil {
		return
	}
	task, err := tasks.New(t, payload)
	if err == nil {
		err = s.publisher.Publish(ctx, task)
	}
	if err != nil {
		logger.Error("publish task failed", "type", string(t), "email", payload.Email, "error", err.Error())
	}
}

func newLead(in CaptureInput, score int, tier domain.BehaviorTier, now time.Time) *domain.Lead {
	source := in.LeadSource
	if source == "" {
		source = domain.SourceWebsite
	}
	return &domain.Lead{
		LeadID:                uuid.New().String(),
		Email:                 in.Email,
		FirstName:             in.FirstName,
		LastName:              in.LastName,
		Company:               in.Company,
		Phone:                 in.Phone,
		Message:               in.Message,
		FormType:              in.FormType,
		ResourceSlug:          in.ResourceSlug,
		ResourceTitle:         in.ResourceTitle,
		SourcePage:            in.SourcePage,
		VisitorID:             in.VisitorID,
		SessionID:             in.SessionID,
		BehaviorScore:         score,
		BehaviorTier:          tier,
		PagesVisited:          in.PagesVisited,
		PageJourney:           in.PageJourney,
		IdentifiedCompany:     in.IdentifiedCompany,
		IdentifiedDomain:      in.IdentifiedDomain,
		IdentifiedIndustry:    in.IdentifiedIndustry,
		UTMSource:             in.UTMSource,
		UTMMedium:             in.UTMMedium,
		UTMCampaign:           in.UTMCampaign,
		UTMTerm:               in.UTMTerm,
		UTMContent:            in.UTMContent,
		ReferrerSource:        in.ReferrerSource,
		ReferrerMedium:        in.ReferrerMedium,
		FirstTouchSource:      in.FirstTouchSource,
		FirstTouchLandingPage: in.FirstTouchLandingPage,
		FirstVisitDate:        in.FirstVisitDate,
		AssessmentScores:      in.AssessmentScores,
		AssessmentTier:        in.AssessmentTier,
		Status:                domain.LeadNew,
		LeadSource:            source,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

// merge copies the non-empty parts of a repeat submission onto the lead.
func (s *Service) merge(ctx context.Context, l *domain.Lead, in CaptureInput, score int, tier domain.BehaviorTier, now time.Time) error {
	fields := map[string]interface{}{}
	str := func(key, v string, dst *string) {
		if v != "" {
			fields[key] = v
			*dst = v
		}
	}
	str("firstName", in.FirstName, &l.FirstName)
	str("lastName", in.LastName, &l.LastName)
	str("company", in.Company, &l.Company)
	str("phone", in.Phone, &l.Phone)
	str("message", in.Message, &l.Message)
	str("visitorId", in.VisitorID, &l.VisitorID)
	str("sessionId", in.SessionID, &l.SessionID)
	str("identifiedCompany", in.IdentifiedCompany, &l.IdentifiedCompany)
	str("identifiedDomain", in.IdentifiedDomain, &l.IdentifiedDomain)
	str("identifiedIndustry", in.IdentifiedIndustry, &l.IdentifiedIndustry)
	str("assessmentTier", in.AssessmentTier, &l.AssessmentTier)

	if in.BehaviorScore > 0 {
		fields["behaviorScore"] = score
		fields["behaviorTier"] = tier
		l.BehaviorScore = score
		l.BehaviorTier = tier
	}
	if len(in.PagesVisited) > 0 {
		fields["pagesVisited"] = in.PagesVisited
		l.PagesVisited = in.PagesVisited
	}
	if len(in.PageJourney) > 0 {
		fields["pageJourney"] = in.PageJourney
		l.PageJourney = in.PageJourney
	}
	if len(in.AssessmentScores) > 0 {
		fields["assessmentScores"] = in.AssessmentScores
		l.AssessmentScores = in.AssessmentScores
	}
	if in.LeadSource != "" {
		fields["leadSource"] = in.LeadSource
		l.LeadSource = in.LeadSource
	}
	fields["lastActivityAt"] = now
	l.LastActivityAt = &now

	if err := s.repo.Update(ctx, l, fields); err != nil {
		return fmt.Errorf("merge lead: %w", err)
	}
	return nil
}
