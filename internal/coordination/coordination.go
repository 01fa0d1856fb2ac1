package coordination

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/orchestrator/internal/config"
	"github.com/cuemby/orchestrator/internal/eventbus"
	"github.com/cuemby/orchestrator/internal/health"
	"github.com/cuemby/orchestrator/internal/hotstore"
	"github.com/cuemby/orchestrator/internal/log"
	"github.com/cuemby/orchestrator/internal/metrics"
	"github.com/rs/zerolog"
)

// Mode is the three-valued coordination regime (§3).
type Mode string

const (
	Distributed Mode = "DISTRIBUTED"
	Degraded    Mode = "DEGRADED"
	Isolated    Mode = "ISOLATED"
)

// Transition is one recorded mode change.
type Transition struct {
	From      Mode
	To        Mode
	Timestamp time.Time
	Reason    string
}

const historyCap = 100

// IsolatedSnapshotter persists/rehydrates hot-store state to a local
// file-backed handler when the engine falls back to ISOLATED (§4.11).
type IsolatedSnapshotter interface {
	Snapshot(ctx context.Context) error
	Rehydrate(ctx context.Context) error
	NotifyFile(message string) error
}

// Manager decides the current coordination regime and executes edge
// actions between regimes (component K).
type Manager struct {
	cfg    config.CoordinationConfig
	client *hotstore.Client
	health *health.Monitor
	bus    *eventbus.Bus
	snap   IsolatedSnapshotter
	logger zerolog.Logger

	mu                        sync.Mutex
	mode                      Mode
	history                   []Transition
	lastTransitionTime        time.Time
	consecutiveHealthFailures int
	consecutiveHealthySince   int

	stopCh chan struct{}
}

// New creates a coordination-mode manager starting in DISTRIBUTED.
func New(cfg config.CoordinationConfig, client *hotstore.Client, monitor *health.Monitor, bus *eventbus.Bus, snap IsolatedSnapshotter) *Manager {
	return &Manager{
		cfg:    cfg,
		client: client,
		health: monitor,
		bus:    bus,
		snap:   snap,
		logger: log.WithComponent("coordination"),
		mode:   Distributed,
		stopCh: make(chan struct{}),
	}
}

// Start begins the periodic mode-check timer.
func (m *Manager) Start() {
	go m.run()
}

// Stop stops the timer.
func (m *Manager) Stop() {
	close(m.stopCh)
}

func (m *Manager) run() {
	interval := m.cfg.ModeCheckInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.evaluate()
		case <-m.stopCh:
			return
		}
	}
}

// Mode returns the current coordination mode.
func (m *Manager) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// History returns the bounded transition log, oldest first.
func (m *Manager) History() []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Transition, len(m.history))
	copy(out, m.history)
	return out
}

// DetectMode probes current conditions and returns the mode they imply,
// without switching (§4.11).
func (m *Manager) DetectMode() Mode {
	if m.client.State() == hotstore.StateConnected && m.health.IsHealthy() {
		return Distributed
	}
	if m.client.State() == hotstore.StateConnected || m.client.State() == hotstore.StateReconnecting {
		return Degraded
	}
	return Isolated
}

func (m *Manager) evaluate() {
	detected := m.DetectMode()
	current := m.Mode()

	if detected == Distributed {
		m.consecutiveHealthySince++
	} else {
		m.consecutiveHealthySince = 0
	}
	if rank(detected) <= rank(current) {
		m.consecutiveHealthFailures = 0
	}

	if detected == current {
		return
	}

	// Demotion waits for HealthDegradationThreshold consecutive ticks that
	// detect a worse mode; promotion happens on the first tick that detects
	// DISTRIBUTED. ISOLATED is not promoted to DEGRADED automatically (§4.11).
	if rank(detected) > rank(current) {
		m.consecutiveHealthFailures++
		if m.consecutiveHealthFailures < m.cfg.HealthDegradationThreshold {
			return
		}
	}
	if rank(detected) < rank(current) && m.consecutiveHealthySince < 1 {
		return
	}

	if err := m.SwitchMode(context.Background(), detected, "automatic detection"); err != nil {
		m.logger.Error().Err(err).Msg("automatic mode switch failed")
	}
}

func rank(m Mode) int {
	switch m {
	case Distributed:
		return 0
	case Degraded:
		return 1
	case Isolated:
		return 2
	}
	return 0
}

// SwitchMode transitions to `to`, enforcing the cooldown and executing the
// edge action for the (from,to) pair (§4.11).
func (m *Manager) SwitchMode(ctx context.Context, to Mode, reason string) error {
	m.mu.Lock()
	from := m.mode
	if from == to {
		m.mu.Unlock()
		return nil
	}
	cooldown := m.cfg.TransitionCooldown
	if cooldown > 0 && time.Since(m.lastTransitionTime) < cooldown {
		m.mu.Unlock()
		return fmt.Errorf("coordination: transition cooldown active")
	}
	m.mu.Unlock()

	m.bus.Publish(&eventbus.Event{Type: eventbus.EventModeChanged, Message: "transitionStarted"})

	if err := m.executeEdgeAction(ctx, from, to); err != nil {
		m.bus.Publish(&eventbus.Event{Type: eventbus.EventModeChanged, Message: "transitionFailed"})
		return fmt.Errorf("coordination: edge action failed: %w", err)
	}

	m.mu.Lock()
	m.mode = to
	m.lastTransitionTime = time.Now()
	m.consecutiveHealthFailures = 0
	t := Transition{From: from, To: to, Timestamp: m.lastTransitionTime, Reason: reason}
	m.history = append(m.history, t)
	if len(m.history) > historyCap {
		m.history = m.history[len(m.history)-historyCap:]
	}
	m.mu.Unlock()

	metrics.ModeTransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
	metrics.CoordinationMode.WithLabelValues(string(to)).Set(1)
	metrics.CoordinationMode.WithLabelValues(string(from)).Set(0)

	m.logger.Info().Str("from", string(from)).Str("to", string(to)).Str("reason", reason).Msg("coordination mode changed")
	m.bus.Publish(&eventbus.Event{Type: eventbus.EventModeChanged, Message: "modeChanged", Payload: t})
	m.bus.Publish(&eventbus.Event{Type: eventbus.EventModeChanged, Message: "transitionComplete"})

	return nil
}

func (m *Manager) executeEdgeAction(ctx context.Context, from, to Mode) error {
	switch {
	case from == Distributed && to == Degraded:
		return m.notify(ctx, "SWITCH_TO_BRANCHES", to)
	case from == Degraded && to == Distributed:
		if err := m.notify(ctx, "MERGE_TO_MAIN", to); err != nil {
			return err
		}
		return nil
	case from == Degraded && to == Isolated:
		if err := m.snap.Snapshot(ctx); err != nil {
			return err
		}
		return m.notify(ctx, "WORK_ISOLATED", to)
	case from == Isolated && to == Degraded:
		if err := m.snap.Rehydrate(ctx); err != nil {
			return err
		}
		return m.notify(ctx, "RESUME", to)
	case from == Distributed && to == Isolated:
		if err := m.snap.Snapshot(ctx); err != nil {
			return err
		}
		return m.notify(ctx, "WORK_ISOLATED", to)
	case from == Isolated && to == Distributed:
		if err := m.snap.Rehydrate(ctx); err != nil {
			return err
		}
		return m.notify(ctx, "RESUME", to)
	}
	return nil
}

// notify publishes the mode-change action on the pub/sub channel when
// connected, falling back to the file-backed notifier otherwise. newMode
// is passed explicitly because notify runs before m.mode is updated to the
// target mode (§6's "newMode" field must reflect the transition's
// destination, not the pre-transition mode).
func (m *Manager) notify(ctx context.Context, action string, newMode Mode) error {
	if m.client.State() == hotstore.StateConnected {
		payload := fmt.Sprintf(`{"action":%q,"newMode":%q,"timestamp":%q}`, action, newMode, time.Now().Format(time.RFC3339))
		return m.client.Publish(ctx, "coordination:mode_change", payload)
	}
	return m.snap.NotifyFile(action)
}
