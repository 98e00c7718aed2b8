package cli

import (
	"fmt"

	"github.com/me/omicsx/internal/server"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the omicsx version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "omicsx %s\n", server.Version)
			return nil
		},
	}
}
