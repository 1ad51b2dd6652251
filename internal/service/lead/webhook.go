package lead

import (
	"context"
	"fmt"
	"time"

	"github.com/databender/leadengine/internal/domain"
	"github.com/databender/leadengine/internal/pkg/logger"
)

// WebhookAction is an operation requested by an outreach automation tool.
type WebhookAction string

const (
	WebhookUpdateStatus  WebhookAction = "update_status"
	WebhookRecordContact WebhookAction = "record_contact"
	WebhookAddNote       WebhookAction = "add_note"
	WebhookUpdateTier    WebhookAction = "update_tier"
)

// AutomationAuthor is the note author used when the tool sends none.
const AutomationAuthor = "Automation"

// WebhookRequest is the body sent by outreach tools.
type WebhookRequest struct {
	Action       WebhookAction         `json:"action" validate:"required,oneof=update_status record_contact add_note update_tier"`
	Email        string                `json:"email" validate:"required,email"`
	Status       domain.LeadStatus     `json:"status,omitempty"`
	Channel      domain.ContactChannel `json:"channel,omitempty"`
	Campaign     string                `json:"campaign,omitempty"`
	ContactNotes string                `json:"contactNotes,omitempty"`
	Note         string                `json:"note,omitempty"`
	Author       string                `json:"author,omitempty"`
	Tier         domain.LeadTier       `json:"tier,omitempty"`
}

// WebhookResult echoes the lead state after the action.
type WebhookResult struct {
	Email     string            `json:"email"`
	Status    domain.LeadStatus `json:"status"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// ApplyWebhook performs an automation action on the lead with the given email.
func (s *Service) ApplyWebhook(ctx context.Context, req WebhookRequest) (*WebhookResult, error) {
	l, err := s.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	previous := l.Status

	switch req.Action {
	case WebhookUpdateStatus:
		if req.Status == "" {
			return nil, fmt.Errorf("%w: status", ErrMissingField)
		}
		st := req.Status
		err = s.apply(ctx, l, UpdateInput{Status: &st}, true)
	case WebhookUpdateTier:
		if req.Tier == "" {
			return nil, fmt.Errorf("%w: tier", ErrMissingField)
		}
		tier := req.Tier
		err = s.apply(ctx, l, UpdateInput{Tier: &tier}, true)
	case WebhookAddNote:
		if req.Note == "" {
			return nil, fmt.Errorf("%w: note", ErrMissingField)
		}
		author := req.Author
		if author == "" {
			author = AutomationAuthor
		}
		if _, err = s.addNote(ctx, l, req.Note, author); err == nil {
			err = s.touch(ctx, l)
		}
	case WebhookRecordContact:
		channel := req.Channel
		if channel == "" {
			channel = domain.ChannelOther
		}
		_, err = s.recordContact(ctx, l, ContactInput{Channel: channel, Campaign: req.Campaign, Notes: req.ContactNotes})
	default:
		return nil, fmt.Errorf("unknown webhook action %q", req.Action)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("lead webhook applied",
		"action", string(req.Action),
		"email", l.Email,
		"previous_status", string(previous),
		"status", string(l.Status),
	)
	return &WebhookResult{Email: l.Email, Status: l.Status, UpdatedAt: l.UpdatedAt}, nil
}
