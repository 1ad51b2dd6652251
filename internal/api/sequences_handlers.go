package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/databender/leadengine/internal/domain"
	"github.com/databender/leadengine/internal/pkg/httputil"
	"github.com/databender/leadengine/internal/service/sequence"
)

// Admin sequence actions.
const (
	seqActionPause  = "pause"
	seqActionResume = "resume"
	seqActionReply  = "reply"
	seqActionBounce = "bounce"
	seqActionCheck  = "check"
)

type sequenceSummary struct {
	Email        string                `json:"email"`
	FirstName    string                `json:"firstName"`
	LastName     string                `json:"lastName"`
	Company      string                `json:"company,omitempty"`
	SequenceType domain.SequenceType   `json:"sequenceType"`
	Status       domain.SequenceStatus `json:"status"`
	PauseReason  string                `json:"pauseReason,omitempty"`
	CurrentDay   int                   `json:"currentDay"`
	EnrolledAt   time.Time             `json:"enrolledAt"`
	BounceType   domain.BounceType     `json:"bounceType,omitempty"`
	BounceCount  int                   `json:"bounceCount,omitempty"`
	RepliedAt    *time.Time            `json:"repliedAt,omitempty"`
}

// GetSequences lists active sequences, or with ?email= returns one lead's
// sequence and enrollment eligibility.
//
//	GET /api/admin/sequences[?email=]
func (h *Handlers) GetSequences(w http.ResponseWriter, r *http.Request) {
	if email := r.URL.Query().Get("email"); email != "" {
		h.sequenceStatus(w, r, email)
		return
	}

	leads, err := h.sequences.ListActive(r.Context())
	if err != nil {
		respondSafeError(w, http.StatusInternalServerError, err, "Failed to list sequences")
		return
	}
	out := make([]sequenceSummary, 0, len(leads))
	for i := range leads {
		l := &leads[i]
		s := sequenceSummary{Email: l.Email, FirstName: l.FirstName, LastName: l.LastName, Company: l.Company}
		if seq := l.EmailSequence; seq != nil {
			s.SequenceType = seq.SequenceType
			s.Status = seq.Status
			s.PauseReason = seq.PauseReason
			s.CurrentDay = seq.CurrentDay
			s.EnrolledAt = seq.EnrolledAt
			s.BounceType = seq.BounceType
			s.BounceCount = seq.BounceCount
			s.RepliedAt = seq.RepliedAt
		}
		out = append(out, s)
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"total":     len(out),
		"sequences": out,
	})
}

func (h *Handlers) sequenceStatus(w http.ResponseWriter, r *http.Request, email string) {
	l, err := h.sequences.Status(r.Context(), email)
	if errors.Is(err, sequence.ErrLeadNotFound) {
		respondError(w, http.StatusNotFound, "Lead not found")
		return
	}
	if err != nil {
		respondSafeError(w, http.StatusInternalServerError, err, "Failed to fetch sequence")
		return
	}
	e := sequence.CheckEligibility(l)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"email":           l.Email,
		"firstName":       l.FirstName,
		"lastName":        l.LastName,
		"company":         l.Company,
		"sequence":        l.EmailSequence,
		"canEnroll":       e.CanEnroll,
		"canEnrollReason": e.Reason,
	})
}

type sequenceActionRequest struct {
	Action     string            `json:"action" validate:"required,oneof=pause resume reply bounce check"`
	Email      string            `json:"email" validate:"required,email"`
	Reason     string            `json:"reason,omitempty" validate:"max=500"`
	BounceType domain.BounceType `json:"bounceType,omitempty" validate:"omitempty,oneof=hard soft undetermined"`
}

// SequenceAction applies a manual sequence transition. Business refusals
// answer 200 with success false and a reason.
//
//	POST /api/admin/sequences
func (h *Handlers) SequenceAction(w http.ResponseWriter, r *http.Request) {
	var req sequenceActionRequest
	if !httputil.DecodeAndValidate(w, r, &req) {
		return
	}
	ctx := r.Context()
	resp := map[string]interface{}{"action": req.Action, "email": req.Email}

	var (
		res sequence.Result
		err error
	)
	switch req.Action {
	case seqActionPause:
		reason := req.Reason
		if reason == "" {
			reason = domain.PauseManual
		}
		res, err = h.sequences.Pause(ctx, req.Email, reason)
		resp["reason"] = reason
	case seqActionResume:
		res, err = h.sequences.Resume(ctx, req.Email)
	case seqActionReply:
		res, err = h.sequences.HandleReply(ctx, req.Email)
	case seqActionBounce:
		bt := req.BounceType
		if bt == "" {
			bt = domain.BounceSoft
		}
		res, err = h.sequences.HandleBounce(ctx, req.Email, bt, req.Reason)
		resp["bounceType"] = bt
	case seqActionCheck:
		h.checkEnrollment(w, r, req.Email, resp)
		return
	}
	if err != nil {
		respondSafeError(w, http.StatusInternalServerError, err, "Failed to process sequence action")
		return
	}

	resp["success"] = res.Success
	resp["result"] = res.Action
	if res.Reason != "" {
		resp["reason"] = res.Reason
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handlers) checkEnrollment(w http.ResponseWriter, r *http.Request, email string, resp map[string]interface{}) {
	l, err := h.sequences.Status(r.Context(), email)
	if err != nil && !errors.Is(err, sequence.ErrLeadNotFound) {
		respondSafeError(w, http.StatusInternalServerError, err, "Failed to check enrollment")
		return
	}
	e := sequence.CheckEligibility(l)
	resp["success"] = true
	resp["canEnroll"] = e.CanEnroll
	resp["reason"] = e.Reason
	resp["currentSequence"] = nil
	if l != nil && l.EmailSequence != nil {
		resp["currentSequence"] = l.EmailSequence
	}
	respondJSON(w, http.StatusOK, resp)
}
