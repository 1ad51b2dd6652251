package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/databender/leadengine/internal/ratelimit"
	"github.com/databender/leadengine/internal/tracking"
)

var defaultOrigins = []string{"http://localhost:3000", "http://localhost:5173"}

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers, deps Deps, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	if len(allowedOrigins) == 0 {
		allowedOrigins = defaultOrigins
	}
	// Credentials are allowed for the admin session cookie.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Api-Key"},
		ExposedHeaders:   []string{"Retry-After", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	limit := func(bucket string) func(http.Handler) http.Handler {
		if deps.Limiter == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return deps.Limiter.Middleware(bucket, tracking.RealIP)
	}

	if deps.Health != nil {
		r.Get("/health", deps.Health.HandleHealth)
		r.Get("/health/live", deps.Health.HandleLiveness)
		r.Get("/health/ready", deps.Health.HandleReadiness)
	} else {
		r.Get("/health", h.HealthCheck)
	}

	// Public site endpoints
	r.With(limit(ratelimit.BucketForm)).Post("/api/leads", h.CaptureLead)
	r.With(limit(ratelimit.BucketWebhook)).Post("/api/leads/webhook", h.LeadWebhook)
	if deps.Tracking != nil {
		r.Post("/api/track", deps.Tracking.HandleTrack)
		deps.Tracking.Routes(r)
	}
	if deps.SESEvents != nil {
		r.With(limit(ratelimit.BucketWebhook)).Post("/api/webhooks/ses-events", deps.SESEvents.HandleSESEvents)
	}

	r.Route("/api/admin", func(r chi.Router) {
		r.With(limit(ratelimit.BucketLogin)).Post("/login", deps.Auth.HandleLogin)
		r.Post("/logout", deps.Auth.HandleLogout)
		r.Get("/session", deps.Auth.HandleSession)

		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireAdmin)
			r.Use(limit(ratelimit.BucketAPI))

			r.Get("/sequences", h.GetSequences)
			r.Post("/sequences", h.SequenceAction)

			r.Get("/dashboard", h.GetDashboard)
			r.Route("/analytics", func(r chi.Router) {
				r.Get("/attribution", h.GetAttribution)
				r.Get("/cohorts", h.GetCohorts)
				r.Get("/sources", h.GetSources)
				r.Get("/summary", h.GetDailySummary)
			})

			r.Route("/leads", func(r chi.Router) {
				r.Get("/", h.ListLeads)
				r.Get("/export", h.ExportLeads)
				r.Get("/stats", h.GetLeadStats)
				r.Get("/{id}", h.GetLead)
				r.Patch("/{id}", h.UpdateLead)
				r.Post("/{id}/notes", h.AddLeadNote)
				r.Post("/{id}/contacts", h.RecordLeadContact)
			})
		})
	})

	return r
}
