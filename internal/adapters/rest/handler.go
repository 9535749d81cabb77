// Package rest exposes run control and history over HTTP.
package rest

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ewilliams-labs/encore/internal/core/ports"
	"github.com/ewilliams-labs/encore/internal/logging"
	"github.com/ewilliams-labs/encore/internal/worker"
)

// JobSubmitter queues reconcile runs. *worker.Pool satisfies it.
type JobSubmitter interface {
	Submit(job worker.Job) bool
}

// Handler manages the HTTP interface for our application.
type Handler struct {
	jobs   JobSubmitter
	runs   ports.RunRepository
	router chi.Router
	log    zerolog.Logger

	submitLimit  int
	submitWindow time.Duration
}

// Option tunes a Handler.
type Option func(*Handler)

// WithSubmitRateLimit caps POST /runs per client IP. n <= 0 disables the cap.
func WithSubmitRateLimit(n int, window time.Duration) Option {
	return func(h *Handler) {
		h.submitLimit = n
		h.submitWindow = window
	}
}

// NewHandler initializes the HTTP adapter and sets up routes.
func NewHandler(jobs JobSubmitter, runs ports.RunRepository, opts ...Option) *Handler {
	h := &Handler{
		jobs:         jobs,
		runs:         runs,
		router:       chi.NewRouter(),
		log:          logging.With().Str("component", "http").Logger(),
		submitLimit:  30,
		submitWindow: time.Minute,
	}
	for _, opt := range opts {
		opt(h)
	}

	h.routes()

	return h
}

// ServeHTTP satisfies the http.Handler interface.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) routes() {
	h.router.Use(middleware.RequestID)
	h.router.Use(middleware.Recoverer)
	h.router.Use(h.requestLogger)

	h.router.Get("/health", h.HealthCheck)
	h.router.Handle("/metrics", promhttp.Handler())

	h.router.Route("/runs", func(r chi.Router) {
		if h.submitLimit > 0 {
			r.With(httprate.LimitByIP(h.submitLimit, h.submitWindow)).Post("/", h.SubmitRun)
		} else {
			r.Post("/", h.SubmitRun)
		}
		r.Get("/", h.ListRuns)
		r.Get("/{id}", h.GetRun)
	})
}

// HealthCheck is a simple endpoint to verify the API is running.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}
