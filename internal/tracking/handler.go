package tracking

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/databender/leadengine/internal/pkg/httputil"
	"github.com/databender/leadengine/internal/pkg/logger"
	"github.com/databender/leadengine/internal/service/sequence"
)

// HitRecorder stores email opens and clicks against the lead.
type HitRecorder interface {
	RecordOpen(ctx context.Context, data sequence.TrackingData) error
	RecordClick(ctx context.Context, data sequence.TrackingData) error
}

// IDDecoder verifies a signed tracking ID. *sequence.Tracker satisfies it.
type IDDecoder interface {
	Decode(id string) (sequence.TrackingData, error)
}

// TokenVerifier checks an unsubscribe token and returns its email.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// Unsubscriber moves a lead's sequence to unsubscribed.
type Unsubscriber interface {
	Unsubscribe(ctx context.Context, email string) (sequence.Result, error)
}

// Handler serves the public tracking endpoints: visitor events, email
// opens and clicks, and unsubscribe links.
type Handler struct {
	events  *EventService
	ids     IDDecoder
	hits    HitRecorder
	tokens  TokenVerifier
	unsub   Unsubscriber
	siteURL string
}

// NewHandler wires the tracking endpoints.
func NewHandler(events *EventService, ids IDDecoder, hits HitRecorder, tokens TokenVerifier, unsub Unsubscriber, siteURL string) *Handler {
	return &Handler{events: events, ids: ids, hits: hits, tokens: tokens, unsub: unsub, siteURL: siteURL}
}

// Routes mounts the email tracking and unsubscribe endpoints. The visitor
// event endpoint is mounted by the API server behind a rate limit.
func (h *Handler) Routes(r chi.Router) {
	r.Get(sequence.OpenPath+"{id}", h.HandleOpen)
	r.Get(sequence.ClickPath+"{id}", h.HandleClick)
	r.Get("/api/unsubscribe", h.HandleUnsubscribe)
	r.Post("/api/unsubscribe", h.HandleUnsubscribe)
}

// HandleTrack records a visitor event.
func (h *Handler) HandleTrack(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if !httputil.DecodeAndValidate(w, r, &req) {
		return
	}
	res, err := h.events.Track(r.Context(), req, RequestMeta{
		UserAgent: r.UserAgent(),
		IP:        RealIP(r),
		Country:   r.Header.Get("CloudFront-Viewer-Country"),
	})
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, res)
}

// HandleOpen always serves the pixel; a bad ID is only logged.
func (h *Handler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	data, err := h.ids.Decode(chi.URLParam(r, "id"))
	if err == nil {
		if err := h.hits.RecordOpen(r.Context(), data); err != nil {
			logger.Warn("record open failed", "lead_id", data.LeadID, "error", err.Error())
		}
	}
	servePixel(w)
}

// HandleClick records the click and redirects to the destination. Only IDs
// signed by this service are followed.
func (h *Handler) HandleClick(w http.ResponseWriter, r *http.Request) {
	data, err := h.ids.Decode(chi.URLParam(r, "id"))
	if err != nil {
		logger.Warn("rejected click tracking id", "error", err.Error())
	}
	if err != nil || !safeDestination(data.DestinationURL) {
		http.Error(w, "bad link", http.StatusBadRequest)
		return
	}
	if err := h.hits.RecordClick(r.Context(), data); err != nil {
		logger.Warn("record click failed", "lead_id", data.LeadID, "error", err.Error())
	}
	http.Redirect(w, r, data.DestinationURL, http.StatusFound)
}

func safeDestination(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "https" || u.Scheme == "http"
}

// HandleUnsubscribe verifies the token and unsubscribes the lead, answering
// with a small HTML page.
func (h *Handler) HandleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		h.page(w, http.StatusBadRequest, "Invalid Request",
			"Missing unsubscribe token. Please use the link from your email.", false)
		return
	}

	email, err := h.tokens.Verify(token)
	switch {
	case errors.Is(err, sequence.ErrTokenExpired):
		h.page(w, http.StatusBadRequest, "Link Expired",
			"This unsubscribe link has expired. Please contact support if you need assistance.", false)
		return
	case err != nil:
		h.page(w, http.StatusBadRequest, "Invalid Link",
			"This unsubscribe link is invalid or has expired. Please contact support if you need assistance.", false)
		return
	}

	res, err := h.unsub.Unsubscribe(r.Context(), email)
	if err != nil {
		logger.Error("unsubscribe failed", "email", email, "error", err.Error())
		h.page(w, http.StatusInternalServerError, "Something Went Wrong",
			"We encountered an issue processing your request. Please try again later or contact support.", false)
		return
	}
	if !res.Success {
		h.page(w, http.StatusOK, "Unsubscribe Processed",
			"Your unsubscribe request has been processed. If you continue to receive emails, please contact support.", true)
		return
	}
	logger.Info("lead unsubscribed", "email", email)
	h.page(w, http.StatusOK, "Successfully Unsubscribed",
		"You have been unsubscribed from our email sequence. You will no longer receive automated follow-up emails from us.", true)
}

var pageTmpl = template.Must(template.New("unsubscribe").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{.Title}} - Databender</title>
<style>
body{font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,Arial,sans-serif;background:#f8f9fa;display:flex;align-items:center;justify-content:center;min-height:100vh;margin:0;padding:20px}
.box{max-width:480px;background:#fff;border-radius:12px;padding:48px 40px;text-align:center;box-shadow:0 4px 6px rgba(0,0,0,.05)}
.icon{font-size:32px;margin-bottom:24px}.ok{color:#059669}.err{color:#dc2626}
h1{font-size:24px;color:#1a1a1a;margin-bottom:16px}p{font-size:16px;color:#4b5563;line-height:1.6}
a{color:#2563eb}
</style>
</head>
<body>
<div class="box">
<div class="icon {{if .Success}}ok{{else}}err{{end}}">{{if .Success}}&#10003;{{else}}!{{end}}</div>
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
<p><a href="{{.SiteURL}}">Return to Databender</a></p>
</div>
</body>
</html>
`))

func (h *Handler) page(w http.ResponseWriter, status int, title, message string, success bool) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	err := pageTmpl.Execute(w, map[string]interface{}{
		"Title":   title,
		"Message": message,
		"Success": success,
		"SiteURL": h.siteURL,
	})
	if err != nil {
		logger.Error("render unsubscribe page", "error", err.Error())
	}
}

func servePixel(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	_, _ = w.Write(sequence.TransparentGIF)
}

// RealIP returns the first X-Forwarded-For hop, then X-Real-Ip, then the
// connection address without its port.
func RealIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	addr := r.RemoteAddr
	if i := strings.LastIndex(addr, ":"); i > 0 && !strings.HasSuffix(addr, "]") {
		addr = addr[:i]
	}
	return strings.Trim(addr, "[]")
}
