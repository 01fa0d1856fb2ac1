// Package sync implements the cold/hot state-sync coordinator (component
// O): it hydrates the hot store from git at startup, flushes the
// hot-state display block into the task-list document on a timer, and
// reacts to state-transition events by refreshing the affected PR's
// cold-state cache immediately rather than waiting for the next flush.
package sync

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/orchestrator/internal/coldstore"
	"github.com/cuemby/orchestrator/internal/eventbus"
	"github.com/cuemby/orchestrator/internal/hotstate"
	"github.com/cuemby/orchestrator/internal/log"
	"github.com/cuemby/orchestrator/internal/metrics"
	"github.com/cuemby/orchestrator/internal/reconcile"
	"github.com/cuemby/orchestrator/internal/types"
	"github.com/rs/zerolog"
)

// Counters is a point-in-time snapshot of the coordinator's running
// totals, available to in-process callers; the status CLI does not read it.
type Counters struct {
	DisplaySyncs    int64
	EventSyncs      int64
	Reconciliations int64
	Errors          int64
	LastDisplaySync time.Time
	LastReconcile   time.Time
}

// Coordinator owns the periodic display-sync timer and the event-driven
// refresh path between the hot and cold stores (§4.15, §9 "Sync
// coordinator").
type Coordinator struct {
	cold   *coldstore.Store
	hot    *hotstate.Store
	recon  *reconcile.Reconciler
	bus    *eventbus.Bus
	logger zerolog.Logger

	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}

	mu       sync.Mutex
	counters Counters
}

// New creates a sync coordinator. interval is the cadence of the
// periodic display-sync flush (config: sync.displaySyncInterval).
func New(cold *coldstore.Store, hot *hotstate.Store, recon *reconcile.Reconciler, bus *eventbus.Bus, interval time.Duration) *Coordinator {
	return &Coordinator{
		cold:     cold,
		hot:      hot,
		recon:    recon,
		bus:      bus,
		logger:   log.WithComponent("sync"),
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// HydrateAtStartup runs crash recovery through the reconciler, which
// rehydrates the hot store's cold-state cache from git, and records the
// reconciliation in the counters (§9 "startup hydration").
func (c *Coordinator) HydrateAtStartup(ctx context.Context) error {
	if err := c.recon.ReconcileAfterCrash(ctx); err != nil {
		return fmt.Errorf("sync: startup reconciliation failed: %w", err)
	}

	c.mu.Lock()
	c.counters.Reconciliations++
	c.counters.LastReconcile = time.Now()
	c.mu.Unlock()

	c.logger.Info().Msg("hot store hydrated from cold store")
	return nil
}

// Start launches the display-sync timer and the event-driven sync
// listener as background goroutines.
func (c *Coordinator) Start(ctx context.Context) {
	sub := c.bus.Subscribe()
	go c.runEventLoop(ctx, sub)
	go c.runTimerLoop(ctx)
}

// Stop halts both loops and waits for them to exit.
func (c *Coordinator) Stop() {
	close(c.stopCh)
	<-c.doneCh
	<-c.doneCh
}

func (c *Coordinator) runTimerLoop(ctx context.Context) {
	defer func() { c.doneCh <- struct{}{} }()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.logger.Info().Dur("interval", c.interval).Msg("display-sync timer started")

	for {
		select {
		case <-ticker.C:
			if err := c.flushDisplay(ctx); err != nil {
				c.logger.Error().Err(err).Msg("periodic display sync failed")
				c.mu.Lock()
				c.counters.Errors++
				c.mu.Unlock()
			}
		case <-c.stopCh:
			return
		}
	}
}

func (c *Coordinator) runEventLoop(ctx context.Context, sub eventbus.Subscriber) {
	defer func() {
		c.bus.Unsubscribe(sub)
		c.doneCh <- struct{}{}
	}()

	for {
		select {
		case event, ok := <-sub:
			if !ok {
				return
			}
			c.handleEvent(ctx, event)
		case <-c.stopCh:
			return
		}
	}
}

func (c *Coordinator) handleEvent(ctx context.Context, event *eventbus.Event) {
	if event.Type != eventbus.EventStateTransitioned {
		return
	}

	transition, ok := event.Payload.(*types.Transition)
	if !ok {
		return
	}

	if !types.IsCold(transition.To) {
		return
	}

	if err := c.hot.UpdateColdStateCache(ctx, transition.PRID, types.ColdState(transition.To)); err != nil {
		c.logger.Error().Err(err).Str("pr_id", transition.PRID).Msg("event-driven cache refresh failed")
		c.mu.Lock()
		c.counters.Errors++
		c.mu.Unlock()
		return
	}

	c.mu.Lock()
	c.counters.EventSyncs++
	c.mu.Unlock()
}

// flushDisplay renders the current hot states into the display block and
// commits it, guarded by coldstore's own recent-commit window so a
// milestone commit always wins the race (§4.12).
func (c *Coordinator) flushDisplay(ctx context.Context) error {
	hotStates, err := c.hot.GetAllHotStates(ctx)
	if err != nil {
		return fmt.Errorf("sync: load hot states failed: %w", err)
	}

	committed, err := c.cold.CommitDisplaySync(func(_ *coldstore.Document) string {
		return renderDisplay(hotStates)
	})
	if err != nil {
		return err
	}

	if committed {
		metrics.DisplaySyncsTotal.Inc()
		c.mu.Lock()
		c.counters.DisplaySyncs++
		c.counters.LastDisplaySync = time.Now()
		c.mu.Unlock()
	}
	return nil
}

// renderDisplay produces the markdown table written into the hot-state
// display block: one row per PR currently holding a hot state, sorted by
// PR id for a stable diff.
func renderDisplay(states map[string]types.HotState) string {
	if len(states) == 0 {
		return "No PRs currently in progress."
	}

	ids := make([]string, 0, len(states))
	for id := range states {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var sb strings.Builder
	sb.WriteString("| PR | Hot State |\n")
	sb.WriteString("|----|-----------|\n")
	for _, id := range ids {
		fmt.Fprintf(&sb, "| %s | %s |\n", id, states[id])
	}
	return sb.String()
}

// Counters returns a snapshot of the coordinator's running totals.
func (c *Coordinator) Counters() Counters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters
}
