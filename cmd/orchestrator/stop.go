package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Signal a running orchestrator process to shut down gracefully",
	RunE:  runStop,
}

func init() {
	stopCmd.Flags().String("pid-file", "", "Path to the running process's pid file")
	stopCmd.Flags().Duration("wait", 30*time.Second, "How long to wait for the process to exit")
}

func runStop(cmd *cobra.Command, args []string) error {
	pidFile, _ := cmd.Flags().GetString("pid-file")
	wait, _ := cmd.Flags().GetDuration("wait")
	if pidFile == "" {
		return fmt.Errorf("orchestrator: --pid-file is required")
	}

	pid, err := readPIDFile(pidFile)
	if err != nil {
		return fmt.Errorf("orchestrator: could not read pid file: %w", err)
	}
	if !processAlive(pid) {
		fmt.Println("orchestrator is not running")
		return nil
	}

	if err := sendTerm(pid); err != nil {
		return err
	}

	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			fmt.Println("orchestrator stopped")
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}

	return errShutdownTimeout
}
