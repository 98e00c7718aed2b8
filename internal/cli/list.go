package cli

import (
	"context"
	"net/url"
	"strings"

	"github.com/me/omicsx/internal/report"
	"github.com/me/omicsx/internal/runs"
	"github.com/me/omicsx/internal/workflows"
	"github.com/me/omicsx/pkg/model"
	"github.com/spf13/cobra"
)

func newListRunsCmd() *cobra.Command {
	var (
		status string
		name   string
		output string
	)

	cmd := &cobra.Command{
		Use:   "list-runs",
		Short: "List runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkOutput(output); err != nil {
				return err
			}
			f := runs.Filter{Name: name, Status: model.RunStatus(strings.ToUpper(status))}

			var (
				list []model.RunSummary
				err  error
			)
			if flagServer != "" {
				list, err = remoteRuns(cmd.Context(), f)
			} else {
				var c *Clients
				if c, err = awsClients(cmd.Context()); err == nil {
					list, err = runs.New(c.Omics, c.STS, logger).List(cmd.Context(), f)
				}
			}
			if err != nil {
				return err
			}

			w := report.New(cmd.OutOrStdout())
			if output == outputJSON {
				if list == nil {
					list = []model.RunSummary{}
				}
				return w.JSON(list)
			}
			w.Runs(list)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Only runs with this status (e.g. COMPLETED)")
	cmd.Flags().StringVar(&name, "name", "", "Only runs with this name")
	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "Output format (table, json)")

	return cmd
}

func remoteRuns(ctx context.Context, f runs.Filter) ([]model.RunSummary, error) {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if f.Name != "" {
		q.Set("name", f.Name)
	}
	var list []model.RunSummary
	if err := NewClient(flagServer, cfg.HTTPTimeout, logger).Get(ctx, "/api/v1/runs/", q, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func newListWorkflowsCmd() *cobra.Command {
	var (
		name   string
		output string
	)

	cmd := &cobra.Command{
		Use:   "list-workflows",
		Short: "List private workflows, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkOutput(output); err != nil {
				return err
			}
			c, err := awsClients(cmd.Context())
			if err != nil {
				return err
			}
			list, err := workflows.New(c.Omics, c.Uploader, logger).List(cmd.Context(), name)
			if err != nil {
				return err
			}

			w := report.New(cmd.OutOrStdout())
			if output == outputJSON {
				if list == nil {
					list = []model.WorkflowSummary{}
				}
				return w.JSON(list)
			}
			w.Workflows(list)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Only workflows with this name")
	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "Output format (table, json)")

	return cmd
}
