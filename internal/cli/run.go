package cli

import (
	"fmt"

	"github.com/me/omicsx/internal/report"
	"github.com/me/omicsx/internal/runs"
	"github.com/spf13/cobra"
)

func newStartRunCmd() *cobra.Command {
	var (
		req        runs.StartRequest
		paramsFile string
		tags       []string
		output     string
	)

	cmd := &cobra.Command{
		Use:   "start-run",
		Short: "Start a run of a registered workflow",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkOutput(output); err != nil {
				return err
			}
			var err error
			if req.Parameters, err = runs.LoadParameters(paramsFile); err != nil {
				return err
			}
			if req.Tags, err = runs.ParseTags(tags); err != nil {
				return err
			}

			c, err := awsClients(cmd.Context())
			if err != nil {
				return err
			}
			started, err := runs.New(c.Omics, c.STS, logger).Start(cmd.Context(), req)
			if err != nil {
				return err
			}

			if output == outputJSON {
				return report.New(cmd.OutOrStdout()).JSON(started)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run ID:  %s\n", started.ID)
			fmt.Fprintf(out, "ARN:     %s\n", started.ARN)
			fmt.Fprintf(out, "Status:  %s\n", started.Status)
			fmt.Fprintf(out, "Role:    %s\n", started.Role)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.WorkflowID, "workflow-id", "", "Workflow id (required)")
	cmd.Flags().StringVar(&req.Name, "name", "", "Run name (required)")
	cmd.Flags().StringVar(&req.OutputURI, "output-uri", "", "s3:// location for run outputs (required)")
	cmd.Flags().StringVar(&paramsFile, "parameters", "", "JSON or YAML file of run parameters")
	cmd.Flags().StringVar(&req.RoleARN, "role-arn", "", "Service role (default: the account's "+runs.DefaultRoleName+")")
	cmd.Flags().IntVar(&req.StorageCapacity, "storage-capacity", runs.DefaultStorageCapacity, "Run storage in GiB")
	cmd.Flags().StringArrayVar(&tags, "tag", nil, "Run tag as key=value (repeatable)")
	cmd.Flags().StringVar(&req.RunGroupID, "run-group-id", "", "Run group to start the run in")
	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "Output format (table, json)")
	cmd.MarkFlagRequired("workflow-id")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("output-uri")

	return cmd
}
