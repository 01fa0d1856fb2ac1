package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeOf(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "orchestrator",
	Short: "orchestrator - core engine for a multi-agent code-generation supervisor",
	Long: `orchestrator drives the PR lifecycle state machine, file-lease
manager, dependency and conflict scheduler, and coordination-mode manager
for a fleet of code-generation agents working against a shared git
repository.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"orchestrator version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
}

// exitCodeOf maps a command error to the exit codes named in §6: 0
// success, 1 fatal startup failure, 2 already running, 3 graceful
// shutdown cancelled by timeout.
func exitCodeOf(err error) int {
	switch {
	case err == nil:
		return 0
	case isAlreadyRunning(err):
		return 2
	case isShutdownTimeout(err):
		return 3
	default:
		return 1
	}
}
