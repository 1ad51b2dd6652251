package sns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/databender/leadengine/internal/domain"
	"github.com/databender/leadengine/internal/pkg/httputil"
	"github.com/databender/leadengine/internal/pkg/logger"
	"github.com/databender/leadengine/internal/service/sequence"
)

const (
	maxBodyBytes     = 256 << 10
	maxConfirmBytes  = 16 << 10
	outcomeDelivered = "delivery_logged"
)

// SequenceEvents applies deliverability events to drip sequences.
// *sequence.Service satisfies it.
type SequenceEvents interface {
	HandleBounce(ctx context.Context, email string, bounceType domain.BounceType, reason string) (sequence.Result, error)
	HandleComplaint(ctx context.Context, email string) (sequence.Result, error)
}

// Outcome is what happened for one recipient of an SES event.
type Outcome struct {
	Email   string `json:"email"`
	Action  string `json:"action"`
	Success bool   `json:"success"`
}

// Handler serves the SES events webhook.
type Handler struct {
	verifier *Verifier
	fetcher  Fetcher
	events   SequenceEvents
}

// NewHandler wires the webhook. fetcher confirms subscriptions.
func NewHandler(verifier *Verifier, fetcher Fetcher, events SequenceEvents) *Handler {
	return &Handler{verifier: verifier, fetcher: fetcher, events: events}
}

// HandleSESEvents verifies the SNS envelope and dispatches on its type. Any
// verification failure answers 403.
func (h *Handler) HandleSESEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		httputil.BadRequest(w, "failed to read body")
		return
	}
	msg, err := h.verifier.ParseAndVerify(r.Context(), body)
	if err != nil {
		logger.Warn("sns verification failed", "error", err.Error())
		httputil.Forbidden(w, "invalid SNS message")
		return
	}
	logger.Info("sns message verified", "type", msg.Type, "topic", msg.TopicArn, "message_id", msg.MessageID)

	switch msg.Type {
	case TypeSubscriptionConfirmation:
		h.confirm(w, r, msg)
	case TypeUnsubscribeConfirmation:
		httputil.OK(w, map[string]string{"status": "unsubscribe_acknowledged"})
	case TypeNotification:
		results, err := h.Process(r.Context(), msg.Message)
		if errors.Is(err, ErrEventStorage) {
			// 500 makes SNS redeliver the notification.
			httputil.InternalError(w, err)
			return
		}
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		httputil.OK(w, map[string]interface{}{"status": "processed", "results": results})
	default:
		httputil.BadRequest(w, ErrUnknownMessageType.Error())
	}
}

// confirm visits the SubscribeURL, which must point at SNS like the
// certificate URL does.
func (h *Handler) confirm(w http.ResponseWriter, r *http.Request, msg *Message) {
	if msg.SubscribeURL == "" || !ValidCertURL(msg.SubscribeURL) {
		httputil.BadRequest(w, ErrMissingSubscribeURL.Error())
		return
	}
	if _, err := h.fetcher.Get(r.Context(), msg.SubscribeURL, maxConfirmBytes); err != nil {
		logger.Error("sns subscription confirm failed", "topic", msg.TopicArn, "error", err.Error())
		httputil.Error(w, http.StatusInternalServerError, "failed to confirm subscription")
		return
	}
	logger.Info("sns subscription confirmed", "topic", msg.TopicArn)
	httputil.OK(w, map[string]string{"status": "subscription_confirmed"})
}

type recipient struct {
	EmailAddress   string `json:"emailAddress"`
	DiagnosticCode string `json:"diagnosticCode,omitempty"`
}

// sesNotification covers both identity notifications (notificationType)
// and configuration set event publishing (eventType).
type sesNotification struct {
	NotificationType string `json:"notificationType"`
	EventType        string `json:"eventType"`
	Bounce           *struct {
		BounceType        string      `json:"bounceType"`
		BounceSubType     string      `json:"bounceSubType"`
		BouncedRecipients []recipient `json:"bouncedRecipients"`
	} `json:"bounce,omitempty"`
	Complaint *struct {
		ComplainedRecipients  []recipient `json:"complainedRecipients"`
		ComplaintFeedbackType string      `json:"complaintFeedbackType,omitempty"`
	} `json:"complaint,omitempty"`
	Delivery *struct {
		Recipients           []string `json:"recipients"`
		ProcessingTimeMillis int      `json:"processingTimeMillis"`
	} `json:"delivery,omitempty"`
	Mail struct {
		MessageID   string   `json:"messageId"`
		Destination []string `json:"destination"`
	} `json:"mail"`
}

func (n *sesNotification) kind() string {
	if n.NotificationType != "" {
		return n.NotificationType
	}
	return n.EventType
}

// MapBounceType converts an SES bounce type.
func MapBounceType(sesType string) domain.BounceType {
	switch sesType {
	case "Permanent":
		return domain.BounceHard
	case "Transient":
		return domain.BounceSoft
	}
	return domain.BounceUndetermined
}

// Process applies one SES notification to the affected leads. Refusals such
// as an unknown lead are reported in the recipient's Outcome. A storage
// failure stops processing and is returned wrapped in ErrEventStorage.
func (h *Handler) Process(ctx context.Context, raw string) ([]Outcome, error) {
	var n sesNotification
	if err := json.Unmarshal([]byte(raw), &n); err != nil {
		return nil, ErrInvalidNotification
	}
	results := []Outcome{}

	switch n.kind() {
	case "Bounce":
		if n.Bounce == nil {
			return nil, ErrInvalidNotification
		}
		bt := MapBounceType(n.Bounce.BounceType)
		logger.Info("ses bounce received",
			"bounce_type", n.Bounce.BounceType,
			"sub_type", n.Bounce.BounceSubType,
			"recipient_count", len(n.Bounce.BouncedRecipients),
			"message_id", n.Mail.MessageID,
		)
		for _, rcpt := range n.Bounce.BouncedRecipients {
			reason := rcpt.DiagnosticCode
			if reason == "" {
				reason = n.Bounce.BounceSubType
			}
			res, err := h.events.HandleBounce(ctx, rcpt.EmailAddress, bt, reason)
			if err != nil {
				return results, storageFailure("bounce", rcpt.EmailAddress, err)
			}
			results = append(results, outcome(rcpt.EmailAddress, res))
		}
	case "Complaint":
		if n.Complaint == nil {
			return nil, ErrInvalidNotification
		}
		logger.Info("ses complaint received",
			"recipient_count", len(n.Complaint.ComplainedRecipients),
			"feedback_type", n.Complaint.ComplaintFeedbackType,
			"message_id", n.Mail.MessageID,
		)
		for _, rcpt := range n.Complaint.ComplainedRecipients {
			res, err := h.events.HandleComplaint(ctx, rcpt.EmailAddress)
			if err != nil {
				return results, storageFailure("complaint", rcpt.EmailAddress, err)
			}
			results = append(results, outcome(rcpt.EmailAddress, res))
		}
	case "Delivery":
		var rcpts []string
		if n.Delivery != nil {
			rcpts = n.Delivery.Recipients
		}
		logger.Debug("ses delivery", "recipient_count", len(rcpts), "message_id", n.Mail.MessageID)
		for _, email := range rcpts {
			results = append(results, Outcome{Email: email, Action: outcomeDelivered, Success: true})
		}
	default:
		logger.Warn("ses notification ignored", "type", n.kind())
	}
	return results, nil
}

func outcome(email string, res sequence.Result) Outcome {
	return Outcome{Email: email, Action: res.Action, Success: res.Success}
}

func storageFailure(kind, email string, err error) error {
	logger.Error("ses event handling failed", "kind", kind, "email", email, "error", err.Error())
	return fmt.Errorf("%w: %s for %s: %w", ErrEventStorage, kind, logger.RedactEmail(email), err)
}
