package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/me/omicsx/internal/config"
	"github.com/me/omicsx/internal/logging"
	"github.com/spf13/cobra"
)

var (
	flagRegion    string
	flagProfile   string
	flagConfig    string
	flagServer    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	cfg    config.Config
	logger *slog.Logger
)

// defaultServer returns the report server URL from OMICSX_SERVER, or "" to
// call AWS directly.
func defaultServer() string {
	return os.Getenv("OMICSX_SERVER")
}

// NewRootCmd creates the root cobra command for the omicsx CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "omicsx",
		Short: "omicsx: onboard Nextflow workflows to AWS HealthOmics and cost their runs",
		Long: "omicsx packages and registers Nextflow workflows with AWS HealthOmics, mirrors their\n" +
			"container images into private ECR repositories, starts runs and reports what a run cost.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(); err != nil {
				return err
			}
			level, format := cfg.LogLevel, cfg.LogFormat
			if flagLogLevel != "" {
				level = flagLogLevel
			}
			if flagLogFormat != "" {
				format = flagLogFormat
			}
			if flagDebug {
				level = "debug"
			}
			logger = logging.NewLoggerWithWriter(logging.ParseLevel(level), format, cmd.ErrOrStderr())
			resetClients()
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flagRegion, "region", "", "AWS region (overrides config and AWS_REGION)")
	root.PersistentFlags().StringVar(&flagProfile, "profile", "", "AWS shared config profile")
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default ~/.omicsx/config.yaml)")
	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "Report server URL for run-cost and list-runs (or OMICSX_SERVER env)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "Log format (text, json)")

	root.AddCommand(
		newRunCostCmd(),
		newListRunsCmd(),
		newListWorkflowsCmd(),
		newCreateWorkflowCmd(),
		newCreateECRReposCmd(),
		newSetupIAMCmd(),
		newStartRunCmd(),
		newVersionCmd(),
	)

	return root
}

// loadConfig resolves cfg from the config file, the environment and the
// persistent flags, in increasing priority.
func loadConfig() error {
	path, optional := flagConfig, false
	if path == "" {
		path, optional = config.DefaultPath(), true
	}
	loaded, err := config.Load(path, optional)
	if err != nil {
		return err
	}
	if flagRegion != "" {
		loaded.Region = flagRegion
	}
	if flagProfile != "" {
		loaded.Profile = flagProfile
	}
	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	cfg = loaded
	return nil
}
