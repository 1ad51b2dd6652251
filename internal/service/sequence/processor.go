package sequence

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/databender/leadengine/internal/domain"
	"github.com/databender/leadengine/internal/pkg/logger"
	"github.com/databender/leadengine/internal/ses"
)

// Renderer produces the subject and bodies of a sequence email.
type Renderer interface {
	RenderSequence(seqType domain.SequenceType, day int, vars map[string]interface{}) (*ses.Rendered, error)
}

// Sender delivers a message and returns the provider message ID.
type Sender interface {
	Send(ctx context.Context, msg ses.Message) (string, error)
}

// ProcessingError records a failed lead in a batch run.
type ProcessingError struct {
	Email string `json:"email"`
	Error string `json:"error"`
}

// ProcessingResult summarises one Run.
type ProcessingResult struct {
	TotalProcessed     int               `json:"totalProcessed"`
	EmailsSent         int               `json:"emailsSent"`
	Errors             []ProcessingError `json:"errors"`
	CompletedSequences int               `json:"completedSequences"`
}

// Processor sends due sequence emails.
type Processor struct {
	svc      *Service
	renderer Renderer
	sender   Sender
	tracker  *Tracker
	tokens   *TokenSigner
	links    Links
}

// NewProcessor wires the pieces needed to send sequence emails.
func NewProcessor(svc *Service, renderer Renderer, sender Sender, tracker *Tracker, tokens *TokenSigner, links Links) *Processor {
	return &Processor{
		svc:      svc,
		renderer: renderer,
		sender:   sender,
		tracker:  tracker,
		tokens:   tokens,
		links:    links,
	}
}

// Run walks every active sequence, sending at most one due email per lead.
// Leads that replied are skipped. Sequences with every day delivered are
// completed. Per-lead failures are collected and do not stop the batch.
func (p *Processor) Run(ctx context.Context) (ProcessingResult, error) {
	result := ProcessingResult{Errors: []ProcessingError{}}

	leads, err := p.svc.ListActive(ctx)
	if err != nil {
		return result, fmt.Errorf("list active sequences: %w", err)
	}
	logger.Info("sequence processing started", "leads", len(leads))

	now := p.svc.now()
	for i := range leads {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		lead := &leads[i]
		result.TotalProcessed++

		if lead.HasReplied {
			continue
		}
		seq := lead.EmailSequence
		day, due := NextEmailDay(seq, now)
		if !due {
			if !ScheduleExhausted(seq) {
				continue
			}
			if _, err := p.svc.Complete(ctx, lead.Email); err != nil {
				result.Errors = append(result.Errors, ProcessingError{Email: lead.Email, Error: err.Error()})
				continue
			}
			result.CompletedSequences++
			continue
		}

		if err := p.send(ctx, lead, day); err != nil {
			logger.Error("sequence email failed", "email", lead.Email, "day", day, "error", err)
			result.Errors = append(result.Errors, ProcessingError{Email: lead.Email, Error: err.Error()})
			continue
		}
		result.EmailsSent++
		if day == seq.SequenceType.FinalDay() {
			result.CompletedSequences++
		}
	}

	logger.Info("sequence processing finished",
		"processed", result.TotalProcessed,
		"sent", result.EmailsSent,
		"completed", result.CompletedSequences,
		"errors", len(result.Errors),
	)
	return result, nil
}

// SendDay0 sends the welcome email right after enrollment. It returns true
// without sending when day 0 was already delivered.
func (p *Processor) SendDay0(ctx context.Context, email string) (bool, error) {
	lead, err := p.svc.Status(ctx, email)
	if err != nil {
		return false, err
	}
	seq := lead.EmailSequence
	if seq == nil {
		return false, ErrNoSequence
	}
	if seq.WasSent(0) {
		return true, nil
	}
	if seq.Status != domain.SequenceActive {
		return false, nil
	}
	if err := p.send(ctx, lead, 0); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Processor) send(ctx context.Context, lead *domain.Lead, day int) error {
	seq := lead.EmailSequence
	unsubscribeURL, err := p.tokens.UnsubscribeURL(p.links.SiteURL, lead.Email)
	if err != nil {
		return err
	}
	vars := TemplateVars(lead, seq.SequenceType, p.links, unsubscribeURL)
	rendered, err := p.renderer.RenderSequence(seq.SequenceType, day, vars)
	if err != nil {
		return fmt.Errorf("render %s day %d: %w", seq.SequenceType, day, err)
	}

	emailID := uuid.NewString()
	html, err := p.tracker.Apply(rendered.HTML, TrackingData{
		LeadID:       lead.LeadID,
		EmailDay:     day,
		SequenceType: string(seq.SequenceType),
		EmailID:      emailID,
	})
	if err != nil {
		return err
	}

	messageID, err := p.sender.Send(ctx, ses.Message{
		To:             lead.Email,
		Subject:        rendered.Subject,
		HTML:           html,
		Text:           rendered.Text,
		UnsubscribeURL: unsubscribeURL,
		Tags: map[string]string{
			"sequence_type": string(seq.SequenceType),
			"email_day":     fmt.Sprintf("day%d", day),
			"email_id":      emailID,
		},
	})
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}

	if _, err := p.svc.RecordEmailSent(ctx, lead.Email, day, messageID); err != nil {
		return fmt.Errorf("record send: %w", err)
	}
	logger.Info("sequence email sent", "email", lead.Email, "day", day, "message_id", messageID)
	return nil
}
