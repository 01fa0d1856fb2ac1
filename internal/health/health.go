package health

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/orchestrator/internal/config"
	"github.com/cuemby/orchestrator/internal/eventbus"
	"github.com/cuemby/orchestrator/internal/hotstore"
	"github.com/cuemby/orchestrator/internal/log"
	"github.com/cuemby/orchestrator/internal/metrics"
	"github.com/rs/zerolog"
)

// Classification is the latency-based health tier (§4.2).
type Classification string

const (
	Healthy   Classification = "healthy"
	Degraded  Classification = "degraded"
	Unhealthy Classification = "unhealthy"
)

// Result is the outcome of a single ping tick.
type Result struct {
	Classification Classification
	Latency        time.Duration
	CheckedAt      time.Time
	Err            error
}

// Status tracks consecutive-failure hysteresis: unhealthy only becomes
// official after FailureThreshold consecutive non-healthy ticks, and one
// healthy tick resets the streak (§4.2).
type Status struct {
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	LastCheck            time.Time
	LastResult           Result
	Official             Classification
}

func newStatus() *Status {
	return &Status{Official: Healthy}
}

func (s *Status) update(r Result, failureThreshold int) {
	s.LastCheck = r.CheckedAt
	s.LastResult = r

	if r.Classification == Healthy {
		s.ConsecutiveSuccesses++
		s.ConsecutiveFailures = 0
		s.Official = Healthy
		return
	}

	s.ConsecutiveFailures++
	s.ConsecutiveSuccesses = 0
	if s.ConsecutiveFailures >= failureThreshold {
		s.Official = Unhealthy
	} else if s.Official == Healthy {
		// Not yet over threshold: report a non-healthy reading as
		// degraded; unhealthy becomes official only at the threshold.
		s.Official = Degraded
	}
}

// Monitor runs a single periodic ping task against the hot store,
// classifying latency and firing events on the bus (§4.2).
type Monitor struct {
	cfg    config.HealthConfig
	client *hotstore.Client
	bus    *eventbus.Bus
	logger zerolog.Logger

	mu     sync.RWMutex
	status *Status

	stopCh chan struct{}
}

// New creates a health monitor for the given hot-store client.
func New(cfg config.HealthConfig, client *hotstore.Client, bus *eventbus.Bus) *Monitor {
	return &Monitor{
		cfg:    cfg,
		client: client,
		bus:    bus,
		logger: log.WithComponent("health"),
		status: newStatus(),
		stopCh: make(chan struct{}),
	}
}

// Start begins the periodic ping loop.
func (m *Monitor) Start() {
	go m.run()
}

// Stop stops the monitor.
func (m *Monitor) Stop() {
	close(m.stopCh)
}

func (m *Monitor) run() {
	interval := m.cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.tick()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Monitor) tick() {
	prevOfficial := m.Status().Official

	result := m.check()

	m.mu.Lock()
	m.status.update(result, m.failureThreshold())
	newOfficial := m.status.Official
	m.mu.Unlock()

	metrics.HotStoreLatency.Observe(result.Latency.Seconds())
	if newOfficial == Healthy {
		metrics.HotStoreHealthy.Set(1)
	} else {
		metrics.HotStoreHealthy.Set(0)
	}

	if newOfficial != prevOfficial {
		m.logger.Info().
			Str("from", string(prevOfficial)).
			Str("to", string(newOfficial)).
			Dur("latency", result.Latency).
			Msg("hot store health classification changed")

		m.bus.Publish(&eventbus.Event{
			Type:    eventbus.EventHealthChange,
			Message: string(newOfficial),
			Payload: result,
		})

		if prevOfficial != Healthy && newOfficial == Healthy {
			m.bus.Publish(&eventbus.Event{Type: eventbus.EventHealthChange, Message: "recovering"})
		}
	}

	if m.status.ConsecutiveFailures == m.failureThreshold() && m.cfg.AutoReconnect {
		m.logger.Warn().Msg("failure threshold reached, triggering reconnect")
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), m.cfg.Timeout)
			defer cancel()
			if err := m.client.Connect(ctx); err != nil {
				m.logger.Error().Err(err).Msg("reconnect attempt failed")
			}
		}()
	}
}

func (m *Monitor) failureThreshold() int {
	if m.cfg.FailureThreshold <= 0 {
		return 3
	}
	return m.cfg.FailureThreshold
}

func (m *Monitor) check() Result {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout())
	defer cancel()

	now := time.Now()

	if m.client.State() != hotstore.StateConnected {
		return Result{Classification: Unhealthy, CheckedAt: now, Err: hotstore.ErrNotConnected}
	}

	latency, err := m.client.Ping(ctx)
	if err != nil {
		return Result{Classification: Unhealthy, Latency: latency, CheckedAt: now, Err: err}
	}

	threshold := m.cfg.DegradedLatencyThreshold
	if threshold <= 0 {
		threshold = 200 * time.Millisecond
	}
	if latency > threshold {
		return Result{Classification: Degraded, Latency: latency, CheckedAt: now}
	}
	return Result{Classification: Healthy, Latency: latency, CheckedAt: now}
}

func (m *Monitor) timeout() time.Duration {
	if m.cfg.Timeout <= 0 {
		return 2 * time.Second
	}
	return m.cfg.Timeout
}

// Status returns a copy of the current status.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.status
}

// IsHealthy reports whether the official classification is Healthy.
func (m *Monitor) IsHealthy() bool {
	return m.Status().Official == Healthy
}
