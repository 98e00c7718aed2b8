package cli

import (
	"context"
	"errors"
	"net/url"
	"strconv"

	"github.com/me/omicsx/internal/cost"
	"github.com/me/omicsx/internal/report"
	"github.com/me/omicsx/internal/telemetry"
	"github.com/me/omicsx/pkg/model"
	"github.com/spf13/cobra"
)

var errIncompleteReport = errors.New("incomplete cost report")

const (
	outputTable = "table"
	outputJSON  = "json"
)

func checkOutput(format string) error {
	switch format {
	case outputTable, outputJSON:
		return nil
	}
	return model.NewValidationError("--output must be %s or %s, got %q", outputTable, outputJSON, format)
}

func newRunCostCmd() *cobra.Command {
	var (
		runID       string
		pricingFile string
		minStorage  int
		output      string
	)

	cmd := &cobra.Command{
		Use:   "run-cost",
		Short: "Report the compute and storage cost of a run",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkOutput(output); err != nil {
				return err
			}
			opts := cost.Options{PricingFile: pricingFile}
			if cmd.Flags().Changed("min-storage-gib") {
				if minStorage < 0 {
					return model.NewValidationError("--min-storage-gib must be >= 0, got %d", minStorage)
				}
				opts.MinimumStorageGiB = &minStorage
			}

			var (
				rep *cost.Report
				err error
			)
			if flagServer != "" {
				rep, err = remoteCost(cmd.Context(), runID, opts)
			} else {
				rep, err = localCost(cmd.Context(), runID, opts)
			}
			if err != nil {
				return err
			}

			w := report.New(cmd.OutOrStdout())
			if output == outputJSON {
				return w.JSON(report.NewCostDocument(rep.Execution, rep.Breakdown))
			}
			w.Cost(rep.Execution, rep.Breakdown)
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run-id", "", "Run id (required)")
	cmd.Flags().StringVar(&pricingFile, "pricing-file", "", "Local pricing offer document instead of the pricing endpoint")
	cmd.Flags().IntVar(&minStorage, "min-storage-gib", cost.DefaultMinimumStorageGiB, "Minimum billed run storage in GiB")
	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "Output format (table, json)")
	cmd.MarkFlagRequired("run-id")

	return cmd
}

func localCost(ctx context.Context, runID string, opts cost.Options) (*cost.Report, error) {
	c, err := awsClients(ctx)
	if err != nil {
		return nil, err
	}
	reporter := &cost.Reporter{
		Fetcher:           telemetry.NewFetcher(c.Omics, cfg.MaxTasks, logger),
		Pricing:           pricingSource(),
		Region:            cfg.Region,
		Service:           cfg.Pricing.Service,
		PricingFile:       cfg.Pricing.File,
		MinimumStorageGiB: cfg.MinimumStorageGiB,
		Logger:            logger,
	}
	return reporter.Run(ctx, runID, opts)
}

// remoteCost asks the report server. The server prices from its own
// catalog, so a local pricing file cannot be honoured.
func remoteCost(ctx context.Context, runID string, opts cost.Options) (*cost.Report, error) {
	if opts.PricingFile != "" {
		return nil, model.NewValidationError("--pricing-file cannot be combined with --server")
	}
	if runID == "" {
		return nil, model.NewValidationError("run id is required")
	}
	q := url.Values{}
	if opts.MinimumStorageGiB != nil {
		q.Set("min_storage_gib", strconv.Itoa(*opts.MinimumStorageGiB))
	}
	var rep cost.Report
	client := NewClient(flagServer, cfg.HTTPTimeout, logger)
	if err := client.Get(ctx, "/api/v1/runs/"+url.PathEscape(runID)+"/cost", q, &rep); err != nil {
		return nil, err
	}
	if rep.Execution == nil || rep.Breakdown == nil {
		return nil, model.NewBackendError("report server", errIncompleteReport)
	}
	return &rep, nil
}
