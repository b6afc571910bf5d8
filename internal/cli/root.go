package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flakewatch/flakewatch/pkg/logger"
)

// Set by goreleaser infra at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "flakewatch",
	Short: "Infer CI flakiness from redundant re-runs on merged pull/merge requests",
	Long: `flakewatch scans merged pull/merge requests on GitHub and GitLab,
counts redundant CI re-executions per commit, maintains a rolling
historical dataset and pushes the results as a monitoring time series.

One invocation scans one platform; scheduling is external.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.Init()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("flakewatch %s (commit %s, built %s)\n", version, commit, date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the configuration file")
	rootCmd.AddCommand(githubCmd)
	rootCmd.AddCommand(gitlabCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the CLI. The context bounds the whole run; an external
// scheduler timeout or an interrupt cancels in-flight fetches.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
