package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/me/omicsx/internal/config"
	"github.com/me/omicsx/internal/cost"
	"github.com/me/omicsx/internal/logging"
	"github.com/me/omicsx/internal/metrics"
	"github.com/me/omicsx/internal/pricing"
	"github.com/me/omicsx/internal/runs"
	"github.com/me/omicsx/pkg/model"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Version is reported by the health endpoint.
var Version = "0.1.0"

// RunLister lists runs.
type RunLister interface {
	List(ctx context.Context, f runs.Filter) ([]model.RunSummary, error)
}

// Backend is what the server reads from.
type Backend struct {
	Fetcher cost.Fetcher
	Runs    RunLister
	// Pricing returns the pricing source for one request. A fresh source per
	// request keeps any memoized catalog from outliving the request.
	Pricing func() pricing.Source
}

// Server is the read-only run cost report API.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	config    config.Config
	backend   Backend
	startTime time.Time
}

// New creates a new Server with all routes registered.
func New(cfg config.Config, backend Backend, logger *slog.Logger) *Server {
	metrics.Init()
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logging.Component(logger, "server"),
		config:    cfg,
		backend:   backend,
		startTime: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.handleDiscovery)
		r.Get("/health", s.handleHealth)

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.handleListRuns)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetRun)
				r.Get("/cost", s.handleRunCost)
			})
		})
	})
}
