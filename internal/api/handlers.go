package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/databender/leadengine/internal/pkg/httputil"
	"github.com/databender/leadengine/internal/reports"
	"github.com/databender/leadengine/internal/service/lead"
	"github.com/databender/leadengine/internal/service/sequence"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	leads      *lead.Service
	sequences  *sequence.Service
	reports    *reports.Service
	webhookKey string
	now        func() time.Time
}

// NewHandlers creates a new Handlers instance
func NewHandlers(deps Deps) *Handlers {
	return &Handlers{
		leads:      deps.Leads,
		sequences:  deps.Sequences,
		reports:    deps.Reports,
		webhookKey: deps.WebhookAPIKey,
		now:        time.Now,
	}
}

// Response helpers

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	httputil.JSON(w, status, data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	httputil.Error(w, status, message)
}

// DateRange is an optional created-at window from query parameters. Zero
// ends are unbounded.
type DateRange struct {
	StartDate time.Time
	EndDate   time.Time
}

// parseDateRange reads startDate/endDate (or dateFrom/dateTo) as dates or
// RFC 3339 timestamps. A bare end date covers that whole day.
func parseDateRange(r *http.Request) (DateRange, bool) {
	q := r.URL.Query()
	start := firstParam(q.Get("startDate"), q.Get("dateFrom"))
	end := firstParam(q.Get("endDate"), q.Get("dateTo"))

	var dr DateRange
	if start != "" {
		t, _, err := parseDate(start)
		if err != nil {
			return dr, false
		}
		dr.StartDate = t
	}
	if end != "" {
		t, dateOnly, err := parseDate(end)
		if err != nil {
			return dr, false
		}
		if dateOnly {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		dr.EndDate = t
	}
	return dr, true
}

func parseDate(s string) (time.Time, bool, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	return t, false, err
}

func firstParam(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// parseDays reads the days query parameter; absent or invalid means 0 so the
// report service applies its default.
func parseDays(r *http.Request) int {
	days, err := strconv.Atoi(r.URL.Query().Get("days"))
	if err != nil {
		return 0
	}
	return days
}

// HealthCheck is the fallback health endpoint used when no HealthChecker is
// configured.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": h.now().UTC(),
	})
}
