package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/databender/leadengine/internal/auth"
	"github.com/databender/leadengine/internal/config"
	"github.com/databender/leadengine/internal/ratelimit"
	"github.com/databender/leadengine/internal/reports"
	"github.com/databender/leadengine/internal/service/lead"
	"github.com/databender/leadengine/internal/service/sequence"
	"github.com/databender/leadengine/internal/sns"
	"github.com/databender/leadengine/internal/tracking"
)

// Deps are the services the HTTP layer routes to. Health and SESEvents may
// be nil; the matching routes are then not mounted.
type Deps struct {
	Auth          *auth.AuthManager
	Limiter       *ratelimit.Limiter
	Leads         *lead.Service
	Sequences     *sequence.Service
	Reports       *reports.Service
	Tracking      *tracking.Handler
	SESEvents     *sns.Handler
	Health        *HealthChecker
	WebhookAPIKey string
}

// Server represents the API server
type Server struct {
	config   config.ServerConfig
	handler  http.Handler
	handlers *Handlers
	server   *http.Server
	router   *chi.Mux
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, deps Deps) *Server {
	handlers := NewHandlers(deps)
	router := SetupRoutes(handlers, deps, cfg.AllowedOrigins)

	return &Server{
		config:   cfg,
		handler:  router,
		handlers: handlers,
		router:   router,
	}
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing
func (s *Server) Handler() http.Handler {
	return s.handler
}
