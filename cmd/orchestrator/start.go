package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/orchestrator/internal/config"
	"github.com/cuemby/orchestrator/internal/log"
	"github.com/cuemby/orchestrator/internal/metrics"
	"github.com/cuemby/orchestrator/internal/supervisor"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the orchestration engine",
	Long: `start brings up the hot-store client, health monitor, coordination
manager, lease manager, sync coordinator, and agent registry in
dependency order, then blocks until stopped (§5).`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().String("work-dir", ".", "Working directory (cold-store repo root)")
	startCmd.Flags().String("pid-file", "", "Path to write the process id to")
	startCmd.Flags().String("log-file", "", "Path to a log file (stdout if unset)")
	startCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address to serve /metrics and /healthz on")
}

func runStart(cmd *cobra.Command, args []string) error {
	workDir, _ := cmd.Flags().GetString("work-dir")
	pidFile, _ := cmd.Flags().GetString("pid-file")
	logFile, _ := cmd.Flags().GetString("log-file")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	cfgPath, _ := rootCmd.PersistentFlags().GetString("config")

	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("orchestrator: open log file failed: %w", err)
		}
		defer f.Close()
		reinitLogging(f)
	}

	logger := log.WithComponent("cli")

	if err := writePIDFile(pidFile); err != nil {
		return err
	}
	defer removePIDFile(pidFile)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("orchestrator: config load failed: %w", err)
	}
	if workDir != "" {
		cfg.ColdStore.RepoPath = workDir
	}

	sup, err := supervisor.New(cfg)
	if err != nil {
		return fmt.Errorf("orchestrator: supervisor init failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Redis.ConnectTimeout)
	defer cancel()
	if err := sup.Start(ctx); err != nil {
		return fmt.Errorf("orchestrator: start failed: %w", err)
	}

	metrics.RegisterComponent("hotstore", true, "connected")
	metrics.RegisterComponent("coldstore", true, "loaded")

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", metrics.HealthHandler())
	mux.HandleFunc("/readyz", metrics.ReadyHandler())
	mux.HandleFunc("/livez", metrics.LivenessHandler())
	srv := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()
	logger.Info().Str("addr", metricsAddr).Msg("metrics endpoint listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		sup.Stop()
		_ = srv.Shutdown(shutdownCtx)
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("shutdown complete")
		return nil
	case <-shutdownCtx.Done():
		return errShutdownTimeout
	}
}
