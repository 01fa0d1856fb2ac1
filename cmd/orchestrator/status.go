package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/orchestrator/internal/coldstore"
	"github.com/cuemby/orchestrator/internal/config"
	"github.com/cuemby/orchestrator/internal/coordination"
	"github.com/cuemby/orchestrator/internal/depgraph"
	"github.com/cuemby/orchestrator/internal/hotstore"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print engine status: mode, agent count, total and available PRs",
	Long: `status probes the hot store and reads the task list directly; it does
not contact a running engine. The coordination mode shown is inferred from
whether the hot store connects and answers a ping. Last sync times are not
reported.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().String("work-dir", ".", "Working directory (cold-store repo root)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	workDir, _ := cmd.Flags().GetString("work-dir")
	cfgPath, _ := rootCmd.PersistentFlags().GetString("config")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("orchestrator: config load failed: %w", err)
	}
	if workDir != "" {
		cfg.ColdStore.RepoPath = workDir
	}

	cold, err := coldstore.New(cfg.ColdStore)
	if err != nil {
		return fmt.Errorf("orchestrator: cold store init failed: %w", err)
	}

	prs, err := cold.ReconstructState()
	if err != nil {
		return fmt.Errorf("orchestrator: failed to load task list: %w", err)
	}

	graph := depgraph.New()
	nodes := make([]*depgraph.Node, 0, len(prs))
	for id, pr := range prs {
		nodes = append(nodes, &depgraph.Node{
			ID:           id,
			ColdState:    pr.ColdState,
			Dependencies: pr.Dependencies,
		})
	}
	if err := graph.BuildFromTaskList(nodes); err != nil {
		fmt.Printf("Dependency graph: ERROR (%v)\n", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Redis.ConnectTimeout)
	defer cancel()

	client := hotstore.New(cfg.Redis)
	mode := coordination.Isolated
	agentCount := 0
	connectErr := client.Connect(ctx)
	if connectErr == nil {
		defer client.Close()
		if _, pingErr := client.Ping(ctx); pingErr == nil {
			mode = coordination.Distributed
		} else {
			mode = coordination.Degraded
		}
		if ids, err := client.Keys(ctx, "agent:*"); err == nil {
			agentCount = countAgentKeys(ids)
		}
	}

	fmt.Println("Orchestrator status")
	fmt.Println("====================")
	fmt.Printf("Coordination mode:  %s\n", mode)
	fmt.Printf("Hot store:          %s\n", connState(connectErr))
	fmt.Printf("Registered agents:  %d\n", agentCount)
	fmt.Printf("Total PRs:          %d\n", len(prs))
	fmt.Printf("Available PRs:      %d\n", len(graph.GetAvailable()))
	fmt.Printf("Last checked:       %s\n", time.Now().Format(time.RFC3339))

	return nil
}

func connState(err error) string {
	if err != nil {
		return "unreachable"
	}
	return "connected"
}

func countAgentKeys(keys []string) int {
	seen := make(map[string]struct{})
	for _, k := range keys {
		// skip per-agent sub-keys such as agent:<id>:heartbeat
		if strings.Contains(strings.TrimPrefix(k, "agent:"), ":") {
			continue
		}
		seen[k] = struct{}{}
	}
	return len(seen)
}
