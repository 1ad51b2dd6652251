package api

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/databender/leadengine/internal/domain"
	"github.com/databender/leadengine/internal/pkg/httputil"
	"github.com/databender/leadengine/internal/scoring"
	"github.com/databender/leadengine/internal/service/lead"
	"github.com/databender/leadengine/internal/storage"
	"github.com/databender/leadengine/internal/tracking"
)

const defaultNoteAuthor = "Admin"

// respondLeadError maps lead service errors onto HTTP statuses.
func respondLeadError(w http.ResponseWriter, err error, publicMsg string) {
	switch {
	case errors.Is(err, lead.ErrLeadNotFound):
		respondError(w, http.StatusNotFound, "Lead not found")
	case errors.Is(err, lead.ErrInvalidStatus),
		errors.Is(err, lead.ErrInvalidTier),
		errors.Is(err, lead.ErrInvalidChannel),
		errors.Is(err, lead.ErrEmptyNote),
		errors.Is(err, lead.ErrNoChanges),
		errors.Is(err, lead.ErrMissingField):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrInvalidCursor):
		respondError(w, http.StatusBadRequest, "Invalid cursor")
	default:
		respondSafeError(w, http.StatusInternalServerError, err, publicMsg)
	}
}

// CaptureLead stores a website form submission.
//
//	POST /api/leads
func (h *Handlers) CaptureLead(w http.ResponseWriter, r *http.Request) {
	var in lead.CaptureInput
	if !httputil.DecodeAndValidate(w, r, &in) {
		return
	}
	in.ClientIP = tracking.RealIP(r)

	res, err := h.leads.Capture(r.Context(), in)
	if err != nil {
		respondSafeError(w, http.StatusInternalServerError, err, "Failed to save lead")
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	respondJSON(w, status, map[string]interface{}{
		"success":  true,
		"leadId":   res.Lead.LeadID,
		"created":  res.Created,
		"enrolled": res.Enrolled,
		"sequence": res.Sequence,
	})
}

// LeadWebhook applies an action from an outreach automation tool. The
// caller authenticates with the shared key in the x-api-key header.
//
//	POST /api/leads/webhook
func (h *Handlers) LeadWebhook(w http.ResponseWriter, r *http.Request) {
	if h.webhookKey == "" {
		respondError(w, http.StatusServiceUnavailable, "Webhook not configured")
		return
	}
	key := r.Header.Get("x-api-key")
	if subtle.ConstantTimeCompare([]byte(key), []byte(h.webhookKey)) != 1 {
		httputil.Unauthorized(w)
		return
	}

	var req lead.WebhookRequest
	if !httputil.DecodeAndValidate(w, r, &req) {
		return
	}
	res, err := h.leads.ApplyWebhook(r.Context(), req)
	if err != nil {
		respondLeadError(w, err, "Failed to process webhook")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"action":  req.Action,
		"lead":    res,
	})
}

// ListLeads returns one page of leads, newest first.
//
//	GET /api/admin/leads?status=&tier=&industry=&formType=&minScore=&search=
//	    &contactStatus=&excludeChannels=linkedin,email&startDate=&endDate=
//	    &limit=&cursor=
func (h *Handlers) ListLeads(w http.ResponseWriter, r *http.Request) {
	f, ok := parseListFilter(w, r)
	if !ok {
		return
	}
	res, err := h.leads.List(r.Context(), f)
	if err != nil {
		respondLeadError(w, err, "Failed to list leads")
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// parseListFilter reads the lead list query. It writes a 400 and returns
// false on malformed values.
func parseListFilter(w http.ResponseWriter, r *http.Request) (lead.ListFilter, bool) {
	q := r.URL.Query()
	f := lead.ListFilter{
		Status:        domain.LeadStatus(q.Get("status")),
		Tier:          domain.LeadTier(q.Get("tier")),
		Industry:      q.Get("industry"),
		FormType:      domain.FormType(q.Get("formType")),
		Search:        q.Get("search"),
		ContactStatus: q.Get("contactStatus"),
		Cursor:        firstParam(q.Get("cursor"), q.Get("lastKey")),
	}

	dr, ok := parseDateRange(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid date range")
		return f, false
	}
	f.From, f.To = dr.StartDate, dr.EndDate

	if v := q.Get("minScore"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "minScore must be a non-negative integer")
			return f, false
		}
		f.MinScore = n
	}
	if v := firstParam(q.Get("limit"), q.Get("pageSize")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return f, false
		}
		f.Limit = n
	}
	switch f.ContactStatus {
	case "", lead.ContactStatusAll, lead.ContactStatusContacted, lead.ContactStatusNotContacted:
	default:
		respondError(w, http.StatusBadRequest, "Invalid contactStatus")
		return f, false
	}
	if v := q.Get("excludeChannels"); v != "" {
		for _, c := range strings.Split(v, ",") {
			ch := domain.ContactChannel(strings.TrimSpace(c))
			if !ch.Valid() {
				respondError(w, http.StatusBadRequest, fmt.Sprintf("Invalid channel %q", c))
				return f, false
			}
			f.ExcludeChannels = append(f.ExcludeChannels, ch)
		}
	}
	return f, true
}

// leadDetail is a lead with its score recomputed as of now.
type leadDetail struct {
	*domain.Lead
	ScoreBreakdown scoring.Breakdown `json:"scoreBreakdown"`
}

// GetLead returns one lead and how its score breaks down today.
//
//	GET /api/admin/leads/{id}
func (h *Handlers) GetLead(w http.ResponseWriter, r *http.Request) {
	l, err := h.leads.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondLeadError(w, err, "Failed to fetch lead")
		return
	}
	respondJSON(w, http.StatusOK, leadDetail{Lead: l, ScoreBreakdown: h.leads.ScoreBreakdown(l)})
}

// UpdateLead changes CRM fields on a lead.
//
//	PATCH /api/admin/leads/{id}
func (h *Handlers) UpdateLead(w http.ResponseWriter, r *http.Request) {
	var in lead.UpdateInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	l, err := h.leads.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		respondLeadError(w, err, "Failed to update lead")
		return
	}
	respondJSON(w, http.StatusOK, l)
}

type noteRequest struct {
	Content string `json:"content" validate:"required,max=5000"`
	Author  string `json:"author,omitempty" validate:"max=100"`
}

// AddLeadNote appends a note to a lead.
//
//	POST /api/admin/leads/{id}/notes
func (h *Handlers) AddLeadNote(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if !httputil.DecodeAndValidate(w, r, &req) {
		return
	}
	author := req.Author
	if author == "" {
		author = defaultNoteAuthor
	}
	note, err := h.leads.AddNote(r.Context(), chi.URLParam(r, "id"), req.Content, author)
	if err != nil {
		respondLeadError(w, err, "Failed to add note")
		return
	}
	respondJSON(w, http.StatusCreated, note)
}

// RecordLeadContact logs an outreach attempt.
//
//	POST /api/admin/leads/{id}/contacts
func (h *Handlers) RecordLeadContact(w http.ResponseWriter, r *http.Request) {
	var in lead.ContactInput
	if !httputil.DecodeAndValidate(w, r, &in) {
		return
	}
	rec, err := h.leads.RecordContact(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		respondLeadError(w, err, "Failed to record contact")
		return
	}
	respondJSON(w, http.StatusCreated, rec)
}

// ExportLeads downloads every lead matching the list filters as CSV.
//
//	GET /api/admin/leads/export
func (h *Handlers) ExportLeads(w http.ResponseWriter, r *http.Request) {
	f, ok := parseListFilter(w, r)
	if !ok {
		return
	}
	res, err := h.leads.Export(r.Context(), f)
	if err != nil {
		respondLeadError(w, err, "Failed to export leads")
		return
	}
	name := fmt.Sprintf("leads-%s.csv", h.now().UTC().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("X-Export-Count", strconv.Itoa(res.Count))
	if res.ArchiveKey != "" {
		w.Header().Set("X-Archive-Key", res.ArchiveKey)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.CSV)
}

// GetLeadStats tallies leads created in the date range.
//
//	GET /api/admin/leads/stats?startDate=&endDate=
func (h *Handlers) GetLeadStats(w http.ResponseWriter, r *http.Request) {
	dr, ok := parseDateRange(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid date range")
		return
	}
	st, err := h.leads.Stats(r.Context(), dr.StartDate, dr.EndDate)
	if err != nil {
		respondLeadError(w, err, "Failed to fetch lead stats")
		return
	}
	respondJSON(w, http.StatusOK, st)
}
