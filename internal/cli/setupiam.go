package cli

import (
	"fmt"

	"github.com/me/omicsx/internal/awsclient"
	"github.com/me/omicsx/internal/iam"
	"github.com/spf13/cobra"
)

func newSetupIAMCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup-iam",
		Short: "Create the service role and policies runs need, if missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := awsClients(ctx)
			if err != nil {
				return err
			}
			id, err := awsclient.CallerIdentity(ctx, c.STS)
			if err != nil {
				return err
			}
			roleARN, err := iam.NewProvisioner(c.IAM, logger).Provision(ctx, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Role: %s\n", roleARN)
			return nil
		},
	}
}
