package cli

import (
	"fmt"

	"github.com/me/omicsx/internal/report"
	"github.com/me/omicsx/internal/workflows"
	"github.com/spf13/cobra"
)

func newCreateWorkflowCmd() *cobra.Command {
	var (
		req    workflows.CreateRequest
		output string
	)

	cmd := &cobra.Command{
		Use:   "create-workflow",
		Short: "Package a Nextflow workflow directory and register it as a private workflow",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkOutput(output); err != nil {
				return err
			}
			c, err := awsClients(cmd.Context())
			if err != nil {
				return err
			}

			wf, err := workflows.New(c.Omics, c.Uploader, logger).Create(cmd.Context(), req)
			if err != nil {
				return err
			}

			if output == outputJSON {
				return report.New(cmd.OutOrStdout()).JSON(wf)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Workflow %s (%s) is %s\n", wf.ID, wf.Name, wf.Status)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Dir, "nf-workflow", "", "Nextflow workflow directory (required)")
	cmd.Flags().StringVar(&req.Name, "name", "", "Workflow name (required)")
	cmd.Flags().StringVar(&req.Description, "description", "", "Workflow description (default: the name)")
	cmd.Flags().StringVar(&req.Main, "main", workflows.DefaultMain, "Main workflow file within the bundle")
	cmd.Flags().StringVar(&req.StagingURI, "staging-uri", "", "s3://bucket/prefix for definitions too large to send inline")
	cmd.Flags().StringArrayVar(&req.Ignore, "ignore", nil, "Extra gitignore-style pattern to leave out of the bundle (repeatable)")
	cmd.Flags().BoolVar(&req.NoWait, "no-wait", false, "Return without waiting for the workflow to become active")
	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "Output format (table, json)")
	cmd.MarkFlagRequired("nf-workflow")
	cmd.MarkFlagRequired("name")

	return cmd
}
