// Package supervisor wires every engine component into a single
// lifecycle: a fixed start order establishes dependencies before the
// components that need them come up, and stop tears down in the
// reverse order (§5 "Startup/shutdown sequencing").
package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/orchestrator/internal/assignment"
	"github.com/cuemby/orchestrator/internal/coldstore"
	"github.com/cuemby/orchestrator/internal/conflict"
	"github.com/cuemby/orchestrator/internal/config"
	"github.com/cuemby/orchestrator/internal/coordination"
	"github.com/cuemby/orchestrator/internal/depgraph"
	"github.com/cuemby/orchestrator/internal/eventbus"
	"github.com/cuemby/orchestrator/internal/health"
	"github.com/cuemby/orchestrator/internal/hotstate"
	"github.com/cuemby/orchestrator/internal/hotstore"
	"github.com/cuemby/orchestrator/internal/lease"
	"github.com/cuemby/orchestrator/internal/log"
	"github.com/cuemby/orchestrator/internal/pairedfiles"
	"github.com/cuemby/orchestrator/internal/reconcile"
	"github.com/cuemby/orchestrator/internal/registry"
	"github.com/cuemby/orchestrator/internal/scheduler"
	"github.com/cuemby/orchestrator/internal/statemachine"
	"github.com/cuemby/orchestrator/internal/sync"
	"github.com/rs/zerolog"
)

// Supervisor owns every long-lived engine component and enforces the
// dependency-respecting start/stop order: client, health, coordination
// mode, state machine, lease manager, sync coordinator, agent registry,
// scheduler.
type Supervisor struct {
	cfg    *config.Config
	logger zerolog.Logger

	Bus         *eventbus.Bus
	HotStore    *hotstore.Client
	Health      *health.Monitor
	Coordinator *coordination.Manager
	StateMachine *statemachine.StateMachine
	Lease       *lease.Manager
	ColdStore   *coldstore.Store
	HotState    *hotstate.Store
	Reconciler  *reconcile.Reconciler
	Sync        *sync.Coordinator
	Registry    *registry.Registry
	Scheduler   *scheduler.Scheduler
	Assignment  *assignment.Manager
	DepGraph    *depgraph.Graph

	startedAt time.Time
	bgCancel  context.CancelFunc
}

// New constructs every component without starting any goroutines or
// network connections. Call Start to bring the supervisor up.
func New(cfg *config.Config) (*Supervisor, error) {
	bus := eventbus.NewBus()

	cold, err := coldstore.New(cfg.ColdStore)
	if err != nil {
		return nil, fmt.Errorf("supervisor: cold store init failed: %w", err)
	}

	client := hotstore.New(cfg.Redis)
	healthMon := health.New(cfg.Health, client, bus)
	expander := pairedfiles.New(cfg.PairedLocking)
	leaseMgr := lease.New(cfg.Lease, client, expander, bus)
	snapshotter := coordination.NewFileSnapshotter(cfg.ColdStore.RepoPath,
		func(ctx context.Context) (map[string]string, error) {
			return map[string]string{}, nil
		},
		func(ctx context.Context, state map[string]string) error {
			return nil
		},
	)
	coordMgr := coordination.New(cfg.Coordination, client, healthMon, bus, snapshotter)
	sm := statemachine.New(bus, cold)
	hotState := hotstate.New(client)
	recon := reconcile.New(cold, hotState)
	syncCoord := sync.New(cold, hotState, recon, bus, cfg.Sync.DisplaySyncInterval)
	reg := registry.New(client, hotState, leaseMgr, bus, cfg.Heartbeat.Timeout)
	detector := conflict.New()
	sched := scheduler.New(cfg.Scheduler, detector)
	assignMgr := assignment.New(cfg.Assignment)
	graph := depgraph.New()

	return &Supervisor{
		cfg:          cfg,
		logger:       log.WithComponent("supervisor"),
		Bus:          bus,
		HotStore:     client,
		Health:       healthMon,
		Coordinator:  coordMgr,
		StateMachine: sm,
		Lease:        leaseMgr,
		ColdStore:    cold,
		HotState:     hotState,
		Reconciler:   recon,
		Sync:         syncCoord,
		Registry:     reg,
		Scheduler:    sched,
		Assignment:   assignMgr,
		DepGraph:     graph,
	}, nil
}

// Start brings up the engine in dependency order: the bus and hot-store
// connection first, then health monitoring, coordination mode detection,
// the (stateless) state machine, the lease manager, the sync coordinator
// (which runs crash recovery before its timers start), the agent
// registry's heartbeat monitor, and finally the scheduler, which needs
// nothing running but is brought up last as the entry point agents call
// into (§5).
//
// ctx bounds only the startup sequence itself (the initial Connect and
// HydrateAtStartup calls). The background loops started here (the sync
// coordinator's timers and the registry's heartbeat monitor) run for the
// life of the process against a separate context owned by the supervisor
// and cancelled from Stop, so they don't inherit ctx's startup deadline.
func (s *Supervisor) Start(ctx context.Context) error {
	s.Bus.Start()

	if err := s.HotStore.Connect(ctx); err != nil {
		return fmt.Errorf("supervisor: hot store connect failed: %w", err)
	}
	s.logger.Info().Msg("hot store connected")

	s.Health.Start()
	s.logger.Info().Msg("health monitor started")

	s.Coordinator.Start()
	s.logger.Info().Msg("coordination manager started")

	// state machine is stateless; nothing to start

	s.logger.Info().Msg("lease manager ready")

	if err := s.Sync.HydrateAtStartup(ctx); err != nil {
		return fmt.Errorf("supervisor: startup hydration failed: %w", err)
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	s.bgCancel = bgCancel

	s.Sync.Start(bgCtx)
	s.logger.Info().Msg("sync coordinator started")

	s.Registry.Start(bgCtx, s.cfg.Heartbeat.Interval)
	s.logger.Info().Msg("agent registry started")

	s.logger.Info().Msg("scheduler ready")

	s.startedAt = time.Now()
	return nil
}

// Stop tears down components in the reverse of start order.
func (s *Supervisor) Stop() {
	if s.bgCancel != nil {
		s.bgCancel()
	}

	s.Registry.Stop()
	s.logger.Info().Msg("agent registry stopped")

	s.Sync.Stop()
	s.logger.Info().Msg("sync coordinator stopped")

	s.Coordinator.Stop()
	s.logger.Info().Msg("coordination manager stopped")

	s.Health.Stop()
	s.logger.Info().Msg("health monitor stopped")

	if err := s.HotStore.Close(); err != nil {
		s.logger.Error().Err(err).Msg("hot store close failed")
	}

	s.Bus.Stop()
	s.logger.Info().Msg("supervisor stopped")
}

// Uptime reports how long the supervisor has been running.
func (s *Supervisor) Uptime() time.Duration {
	if s.startedAt.IsZero() {
		return 0
	}
	return time.Since(s.startedAt)
}
