package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/databender/leadengine/internal/config"
	"github.com/databender/leadengine/internal/domain"
	"github.com/databender/leadengine/internal/pkg/logger"
	"github.com/databender/leadengine/internal/service/lead"
	"github.com/databender/leadengine/internal/ses"
	"github.com/databender/leadengine/internal/tasks"
)

// LeadFinder loads a lead by email. *lead.Service satisfies it.
type LeadFinder interface {
	GetByEmail(ctx context.Context, email string) (*domain.Lead, error)
}

// TextRenderer renders notification templates. *ses.TemplateService
// satisfies it.
type TextRenderer interface {
	RenderText(name string, vars map[string]interface{}) (*ses.Rendered, error)
}

// Sender delivers one email. *ses.Client satisfies it.
type Sender interface {
	Send(ctx context.Context, msg ses.Message) (string, error)
}

// Notifier emails the sales inbox when a lead is captured.
type Notifier struct {
	leads    LeadFinder
	renderer TextRenderer
	sender   Sender
	to       string
	enabled  bool
	adminURL string
}

// NewNotifier creates a notifier. Nothing is sent unless notifications are
// enabled and a sales address is configured.
func NewNotifier(leads LeadFinder, renderer TextRenderer, sender Sender, cfg config.NotificationsConfig, adminURL string) *Notifier {
	return &Notifier{
		leads:    leads,
		renderer: renderer,
		sender:   sender,
		to:       cfg.SalesEmail,
		enabled:  cfg.Enabled && cfg.SalesEmail != "",
		adminURL: strings.TrimRight(adminURL, "/"),
	}
}

// HandleLeadCaptured is the tasks.Handler for tasks.TypeLeadCaptured. A lead
// deleted before the task runs is acknowledged without mail.
func (n *Notifier) HandleLeadCaptured(ctx context.Context, t tasks.Task) error {
	if !n.enabled {
		return nil
	}
	var p tasks.LeadPayload
	if err := t.Decode(&p); err != nil {
		logger.Warn("dropping malformed lead task", "task_id", t.ID, "error", err.Error())
		return nil
	}

	l, err := n.leads.GetByEmail(ctx, p.Email)
	if errors.Is(err, lead.ErrLeadNotFound) {
		logger.Warn("captured lead no longer exists", "email", p.Email)
		return nil
	}
	if err != nil {
		return err
	}

	rendered, err := n.renderer.RenderText(ses.TemplateLeadCaptured, n.vars(l))
	if err != nil {
		return fmt.Errorf("render lead notification: %w", err)
	}
	messageID, err := n.sender.Send(ctx, ses.Message{
		To:      n.to,
		Subject: rendered.Subject,
		Text:    rendered.Text,
		ReplyTo: l.Email,
		Tags:    map[string]string{"notification": "lead_captured"},
	})
	if err != nil {
		return fmt.Errorf("send lead notification: %w", err)
	}
	logger.Info("sales notified", "lead_id", l.LeadID, "message_id", messageID)
	return nil
}

func (n *Notifier) vars(l *domain.Lead) map[string]interface{} {
	return map[string]interface{}{
		"form_type":      string(l.FormType),
		"full_name":      strings.TrimSpace(l.FirstName + " " + l.LastName),
		"email":          l.Email,
		"company":        l.Company,
		"phone":          l.Phone,
		"source_page":    l.SourcePage,
		"resource_title": l.ResourceTitle,
		"behavior_score": l.BehaviorScore,
		"behavior_tier":  string(l.BehaviorTier),
		"message":        l.Message,
		"admin_url":      n.adminURL + "/admin/leads/" + l.LeadID,
	}
}
