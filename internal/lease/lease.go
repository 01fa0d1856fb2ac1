package lease

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/orchestrator/internal/config"
	"github.com/cuemby/orchestrator/internal/eventbus"
	"github.com/cuemby/orchestrator/internal/hotstore"
	"github.com/cuemby/orchestrator/internal/log"
	"github.com/cuemby/orchestrator/internal/metrics"
	"github.com/cuemby/orchestrator/internal/pairedfiles"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Conflict is one lease held by another agent that blocked an acquisition.
type Conflict struct {
	File         string
	HolderAgent  string
	AcquiredAt   time.Time
}

// Result is the outcome of acquire/release/renew (§4.6).
type Result struct {
	Success      bool
	LeasedFiles  []string
	Conflicts    []Conflict
	Expanded     bool
	Error        string
}

// Manager implements atomic multi-file acquire/release/renew with
// heartbeat-driven renewal and grace-period expiry (component F).
type Manager struct {
	cfg      config.LeaseConfig
	client   *hotstore.Client
	expander *pairedfiles.Expander
	bus      *eventbus.Bus
	logger   zerolog.Logger

	mu     sync.Mutex
	byAgent map[string]map[string]bool // agentId -> set of held paths

	timersMu sync.Mutex
	timers   map[string]*time.Timer
}

// New creates a lease manager.
func New(cfg config.LeaseConfig, client *hotstore.Client, expander *pairedfiles.Expander, bus *eventbus.Bus) *Manager {
	return &Manager{
		cfg:      cfg,
		client:   client,
		expander: expander,
		bus:      bus,
		logger:   log.WithComponent("lease"),
		byAgent:  make(map[string]map[string]bool),
		timers:   make(map[string]*time.Timer),
	}
}

type leasePayload struct {
	HolderAgent string    `json:"holderAgent"`
	PRID        string    `json:"prId"`
	AcquiredAt  time.Time `json:"acquiredAt"`
	TTL         int64     `json:"ttlMs"`
}

func fileKey(path string) string  { return "lease:file:" + path }
func agentKey(agent string) string { return "lease:agent:" + agent }
func prKey(pr string) string       { return "lease:pr:" + pr }

// Acquire attempts to atomically acquire leases on every file in the
// (possibly paired-file-expanded) set, per the protocol in §4.6.
func (m *Manager) Acquire(ctx context.Context, files []string, agentID, prID string, ttl time.Duration) Result {
	if len(files) > m.maxFiles() {
		return Result{Success: false, Error: fmt.Sprintf("requested %d files exceeds maxFilesPerRequest %d", len(files), m.maxFiles())}
	}
	if ttl <= 0 {
		ttl = m.cfg.DefaultTTL
	}

	expansion := m.expander.Expand(files, pairedfiles.Options{})
	expanded := len(expansion.All) != len(files)
	targets := expansion.All

	now := time.Now()

	// Pre-check.
	var conflicts []Conflict
	for _, f := range targets {
		payload, err := m.readLease(ctx, f)
		if err != nil {
			return Result{Success: false, Error: err.Error()}
		}
		if payload == nil {
			continue
		}
		if payload.HolderAgent == agentID {
			continue
		}
		expiry := payload.AcquiredAt.Add(time.Duration(payload.TTL) * time.Millisecond).Add(m.cfg.GracePeriod)
		if now.Before(expiry) {
			conflicts = append(conflicts, Conflict{File: f, HolderAgent: payload.HolderAgent, AcquiredAt: payload.AcquiredAt})
		}
	}

	if len(conflicts) > 0 {
		for _, c := range conflicts {
			metrics.LeaseConflictsTotal.Inc()
			m.bus.Publish(&eventbus.Event{Type: eventbus.EventLeaseConflict, Message: c.File, Payload: c})
		}
		return Result{Success: false, Conflicts: conflicts, Expanded: expanded}
	}

	timer := metrics.NewTimer()

	watchKeys := make([]string, len(targets))
	for i, f := range targets {
		watchKeys[i] = fileKey(f)
	}

	payload := leasePayload{HolderAgent: agentID, PRID: prID, AcquiredAt: now, TTL: ttl.Milliseconds()}
	data, err := json.Marshal(payload)
	if err != nil {
		return Result{Success: false, Error: err.Error()}
	}

	existing := make(map[string]bool)
	txRes, err := m.client.AtomicTx(ctx, watchKeys, 3, func(pipe redis.Pipeliner) error {
		for _, f := range targets {
			current, gerr := m.client.Get(ctx, fileKey(f))
			if gerr != nil {
				return gerr
			}
			if current != "" {
				var existingPayload leasePayload
				if json.Unmarshal([]byte(current), &existingPayload) == nil && existingPayload.HolderAgent != agentID {
					existing[f] = true
					continue
				}
			}
			pipe.Set(ctx, fileKey(f), data, ttl)
		}
		return nil
	})

	if err != nil && !txRes.Aborted {
		return Result{Success: false, Error: err.Error()}
	}

	if len(existing) > 0 || txRes.Aborted {
		var reConflicts []Conflict
		for f := range existing {
			p, _ := m.readLease(ctx, f)
			if p != nil {
				reConflicts = append(reConflicts, Conflict{File: f, HolderAgent: p.HolderAgent, AcquiredAt: p.AcquiredAt})
			}
		}
		return Result{Success: false, Conflicts: reConflicts, Expanded: expanded}
	}

	m.mu.Lock()
	if m.byAgent[agentID] == nil {
		m.byAgent[agentID] = make(map[string]bool)
	}
	for _, f := range targets {
		m.byAgent[agentID][f] = true
	}
	m.mu.Unlock()

	if m.cfg.TrackSets {
		_ = m.client.SAdd(ctx, agentKey(agentID), targets...)
		_ = m.client.Expire(ctx, agentKey(agentID), ttl)
		_ = m.client.SAdd(ctx, prKey(prID), targets...)
		_ = m.client.Expire(ctx, prKey(prID), ttl)
	}

	m.ensureHeartbeat(agentID)

	timer.ObserveDuration(metrics.LeaseAcquireDuration)
	metrics.LeasesHeld.Add(float64(len(targets)))

	m.bus.Publish(&eventbus.Event{
		Type:    eventbus.EventLeaseAcquired,
		Message: fmt.Sprintf("%s acquired %d files for %s", agentID, len(targets), prID),
		Payload: targets,
	})

	return Result{Success: true, LeasedFiles: targets, Expanded: expanded}
}

// Release releases the given files (or all locally-tracked files when nil)
// held by agentID. Releasing files you don't hold is always a silent no-op
// (§3 invariant iii).
func (m *Manager) Release(ctx context.Context, files []string, agentID string) Result {
	m.mu.Lock()
	held := m.byAgent[agentID]
	var candidates []string
	if files == nil {
		for f := range held {
			candidates = append(candidates, f)
		}
	} else {
		candidates = files
	}
	m.mu.Unlock()

	var released []string
	for _, f := range candidates {
		payload, err := m.readLease(ctx, f)
		if err != nil || payload == nil || payload.HolderAgent != agentID {
			continue
		}
		if err := m.client.Del(ctx, fileKey(f)); err != nil {
			continue
		}
		released = append(released, f)
	}

	m.mu.Lock()
	for _, f := range released {
		delete(m.byAgent[agentID], f)
	}
	remaining := len(m.byAgent[agentID])
	m.mu.Unlock()

	if m.cfg.TrackSets && len(released) > 0 {
		_ = m.client.SRem(ctx, agentKey(agentID), released...)
	}

	if remaining == 0 {
		m.stopHeartbeat(agentID)
	}

	metrics.LeasesHeld.Sub(float64(len(released)))

	if len(released) > 0 {
		m.bus.Publish(&eventbus.Event{Type: eventbus.EventLeaseReleased, Message: agentID, Payload: released})
	}

	return Result{Success: true, LeasedFiles: released}
}

// Renew refreshes TTL on every locally-held file for agentID, used as the
// heartbeat body (§4.6).
func (m *Manager) Renew(ctx context.Context, agentID string, ttl time.Duration) Result {
	if ttl <= 0 {
		ttl = m.cfg.DefaultTTL
	}

	m.mu.Lock()
	var files []string
	for f := range m.byAgent[agentID] {
		files = append(files, f)
	}
	m.mu.Unlock()

	var renewed []string
	now := time.Now()
	for _, f := range files {
		payload, err := m.readLease(ctx, f)
		if err != nil || payload == nil || payload.HolderAgent != agentID {
			continue
		}
		payload.AcquiredAt = now
		payload.TTL = ttl.Milliseconds()
		data, err := json.Marshal(payload)
		if err != nil {
			continue
		}
		if err := m.client.Set(ctx, fileKey(f), string(data), ttl); err != nil {
			m.bus.Publish(&eventbus.Event{Type: eventbus.EventHeartbeatFailed, Message: agentID})
			continue
		}
		renewed = append(renewed, f)
	}

	if len(renewed) > 0 {
		m.bus.Publish(&eventbus.Event{Type: eventbus.EventLeaseRenewed, Message: agentID, Payload: renewed})
	}

	return Result{Success: true, LeasedFiles: renewed}
}

// LeasesOfAgent returns the paths currently tracked as held by agentID.
func (m *Manager) LeasesOfAgent(agentID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for f := range m.byAgent[agentID] {
		out = append(out, f)
	}
	return out
}

func (m *Manager) readLease(ctx context.Context, path string) (*leasePayload, error) {
	raw, err := m.client.Get(ctx, fileKey(path))
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}
	var p leasePayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (m *Manager) maxFiles() int {
	if m.cfg.MaxFilesPerRequest <= 0 {
		return 50
	}
	return m.cfg.MaxFilesPerRequest
}

func (m *Manager) ensureHeartbeat(agentID string) {
	m.timersMu.Lock()
	defer m.timersMu.Unlock()
	if _, ok := m.timers[agentID]; ok {
		return
	}

	interval := m.cfg.HeartbeatInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	var schedule func()
	schedule = func() {
		t := time.AfterFunc(interval, func() {
			m.Renew(context.Background(), agentID, 0)
			m.timersMu.Lock()
			if _, ok := m.timers[agentID]; ok {
				m.timersMu.Unlock()
				schedule()
				return
			}
			m.timersMu.Unlock()
		})
		m.timersMu.Lock()
		m.timers[agentID] = t
		m.timersMu.Unlock()
	}
	schedule()
}

func (m *Manager) stopHeartbeat(agentID string) {
	m.timersMu.Lock()
	defer m.timersMu.Unlock()
	if t, ok := m.timers[agentID]; ok {
		t.Stop()
		delete(m.timers, agentID)
	}
}

// Scoped runs fn with leases acquired on files, guaranteeing release on
// every exit path including panics and context cancellation (§4.6
// "Scoped acquisition with guaranteed release").
func Scoped(ctx context.Context, m *Manager, files []string, agentID, prID string, ttl time.Duration, fn func() error) Result {
	acquireResult := m.Acquire(ctx, files, agentID, prID, ttl)
	if !acquireResult.Success {
		return acquireResult
	}
	defer m.Release(ctx, acquireResult.LeasedFiles, agentID)

	if err := fn(); err != nil {
		acquireResult.Error = err.Error()
		acquireResult.Success = false
	}
	return acquireResult
}
