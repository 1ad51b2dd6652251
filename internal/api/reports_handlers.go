package api

import (
	"net/http"
	"time"
)

// GetDashboard returns the sales overview.
//
//	GET /api/admin/dashboard?days=7
func (h *Handlers) GetDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.reports.Dashboard(r.Context(), parseDays(r))
	if err != nil {
		respondSafeError(w, http.StatusInternalServerError, err, "Failed to fetch dashboard data")
		return
	}
	respondJSON(w, http.StatusOK, d)
}

// GetAttribution returns page attribution for converted visitors.
//
//	GET /api/admin/analytics/attribution?days=30
func (h *Handlers) GetAttribution(w http.ResponseWriter, r *http.Request) {
	rep, period, err := h.reports.Attribution(r.Context(), parseDays(r))
	if err != nil {
		respondSafeError(w, http.StatusInternalServerError, err, "Failed to fetch attribution data")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"period":      period,
		"attribution": rep,
	})
}

// GetCohorts returns the weekly lead cohorts.
//
//	GET /api/admin/analytics/cohorts
func (h *Handlers) GetCohorts(w http.ResponseWriter, r *http.Request) {
	rep, err := h.reports.Cohorts(r.Context())
	if err != nil {
		respondSafeError(w, http.StatusInternalServerError, err, "Failed to fetch cohort data")
		return
	}
	respondJSON(w, http.StatusOK, rep)
}

// GetSources returns traffic source quality.
//
//	GET /api/admin/analytics/sources?days=30
func (h *Handlers) GetSources(w http.ResponseWriter, r *http.Request) {
	rep, period, err := h.reports.Sources(r.Context(), parseDays(r))
	if err != nil {
		respondSafeError(w, http.StatusInternalServerError, err, "Failed to fetch source data")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"period":  period,
		"sources": rep,
	})
}

// GetDailySummary returns one day's traffic summary, yesterday by default.
//
//	GET /api/admin/analytics/summary?date=2026-03-09
func (h *Handlers) GetDailySummary(w http.ResponseWriter, r *http.Request) {
	day := h.now().UTC().AddDate(0, 0, -1)
	if v := r.URL.Query().Get("date"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		day = t
	}
	sum, err := h.reports.DailySummary(r.Context(), day)
	if err != nil {
		respondSafeError(w, http.StatusInternalServerError, err, "Failed to fetch summary")
		return
	}
	respondJSON(w, http.StatusOK, sum)
}
