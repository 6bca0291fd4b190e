// Package api exposes the HTTP interface: webhook ingestion plus the
// subscribe/unsubscribe endpoints.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/racealert/race-alert/internal/alert"
	"github.com/racealert/race-alert/internal/config"
	"github.com/racealert/race-alert/internal/dispatcher"
	"github.com/racealert/race-alert/internal/email"
	"github.com/racealert/race-alert/internal/metrics"

	"go.uber.org/zap"
)

// Server wires HTTP handlers to the store, dispatcher and email sender.
type Server struct {
	router     chi.Router
	store      alert.Store
	dispatcher *dispatcher.Dispatcher
	sender     *email.Sender
	clock      alert.Clock
	cfg        config.Config
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	store alert.Store,
	dispatch *dispatcher.Dispatcher,
	sender *email.Sender,
	clock alert.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		store:      store,
		dispatcher: dispatch,
		sender:     sender,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}

	metrics.Init()

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))
	r.Use(metricsMiddleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/webhook", s.handleWebhook)
		r.Post("/subscribe", s.handleSubscribe)
		r.Post("/unsubscribe", s.handleUnsubscribe)
		r.Get("/unsubscribe", s.handleUnsubscribe)
		r.Get("/races", s.handleListRaces)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// Readiness depends on the store answering.
	if _, err := s.store.ListRaces(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleListRaces(w http.ResponseWriter, r *http.Request) {
	races, err := s.store.ListRaces(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list races failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"races": races})
}
