package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conveyorci/conveyor/pkg/orchestrator"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool

	cliVersion = "dev"
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	cliVersion = version
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "conveyor",
		Short: "Conveyor - Pipeline Orchestration Engine",
		Long: `Conveyor sequences your project's maintenance pipeline: sync, analyze,
repair, test, and deploy, as orchestration modes over a dependency-aware
task engine.

Modes:
  full         sync, configure, analyze, repair, fix, test, comment (+deploy when enabled)
  development  sync, analyze, repair, test, comment
  ci           analyze, repair, test (failing tests abort the run)
  deployment   test, then deploy (tests are an explicit precondition)
  components   configure and sync components (+database sync when enabled)

Each step is configurable per project via conveyor.yaml.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// One subcommand per orchestration mode, plus inspection commands.
	for _, mode := range orchestrator.Modes() {
		rootCmd.AddCommand(newModeCommand(mode))
	}
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newGraphCommand())

	return rootCmd
}
