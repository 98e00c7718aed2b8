package cost

import (
	"context"
	"log/slog"

	"github.com/me/omicsx/internal/logging"
	"github.com/me/omicsx/internal/pricing"
	"github.com/me/omicsx/pkg/model"
)

// Fetcher retrieves one run with all of its tasks.
type Fetcher interface {
	Fetch(ctx context.Context, id string) (*model.Execution, error)
}

// Reporter produces the cost of one run: fetch telemetry, load prices and
// compute. It keeps nothing between calls.
type Reporter struct {
	Fetcher Fetcher
	Pricing pricing.Source

	Region            string
	Service           string
	PricingFile       string // local offer document; empty fetches from the endpoint
	MinimumStorageGiB int

	Logger *slog.Logger
}

// Report is a computed breakdown and the run it was computed from.
type Report struct {
	Execution *model.Execution     `json:"execution"`
	Breakdown *model.CostBreakdown `json:"cost"`
}

// Options override the reporter defaults for one call.
type Options struct {
	MinimumStorageGiB *int
	PricingFile       string
}

// Run computes the cost of run id.
func (r *Reporter) Run(ctx context.Context, id string, opts Options) (*Report, error) {
	logger := logging.OrDiscard(r.Logger)
	if id == "" {
		return nil, model.NewValidationError("run id is required")
	}

	exec, err := r.Fetcher.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}

	file := r.PricingFile
	if opts.PricingFile != "" {
		file = opts.PricingFile
	}
	catalog, err := r.Pricing.Load(ctx, r.Region, r.Service, file)
	if err != nil {
		return nil, err
	}

	floor := r.MinimumStorageGiB
	if opts.MinimumStorageGiB != nil {
		floor = *opts.MinimumStorageGiB
	}
	breakdown, err := Compute(exec, catalog, floor)
	if err != nil {
		return nil, err
	}
	logger.Info("run cost computed", "run_id", id, "tasks", len(breakdown.Tasks),
		"total", breakdown.GrandTotal, "final", breakdown.Final)
	return &Report{Execution: exec, Breakdown: breakdown}, nil
}
