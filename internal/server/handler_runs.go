package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/me/omicsx/internal/cost"
	"github.com/me/omicsx/internal/metrics"
	"github.com/me/omicsx/internal/runs"
	"github.com/me/omicsx/pkg/model"
)

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	q := r.URL.Query()
	f := runs.Filter{
		Name:   q.Get("name"),
		Status: model.RunStatus(strings.ToUpper(q.Get("status"))),
	}
	list, err := s.backend.Runs.List(r.Context(), f)
	if err != nil {
		respondError(w, reqID, err)
		return
	}
	if list == nil {
		list = []model.RunSummary{}
	}
	respondOK(w, reqID, list)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	exec, err := s.backend.Fetcher.Fetch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, reqID, err)
		return
	}
	respondOK(w, reqID, exec)
}

func (s *Server) handleRunCost(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	var opts cost.Options
	if v := r.URL.Query().Get("min_storage_gib"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, reqID, model.NewValidationError("min_storage_gib must be a non-negative integer, got %q", v))
			return
		}
		opts.MinimumStorageGiB = &n
	}

	reporter := &cost.Reporter{
		Fetcher:           s.backend.Fetcher,
		Pricing:           s.backend.Pricing(),
		Region:            s.config.Region,
		Service:           s.config.Pricing.Service,
		PricingFile:       s.config.Pricing.File,
		MinimumStorageGiB: s.config.MinimumStorageGiB,
		Logger:            s.logger,
	}

	start := time.Now()
	report, err := reporter.Run(r.Context(), id, opts)
	metrics.ObserveCostReport(err, time.Since(start))
	if err != nil {
		respondError(w, reqID, err)
		return
	}
	respondOK(w, reqID, report)
}
