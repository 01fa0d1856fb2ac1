// Package registry implements the agent registry and heartbeat monitor
// (component P): it tracks every registered agent's liveness, status,
// and current assignment in the hot store, and reclaims an agent's
// leases and hot-state assignment the moment its heartbeat goes stale.
package registry

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cuemby/orchestrator/internal/eventbus"
	"github.com/cuemby/orchestrator/internal/hotstate"
	"github.com/cuemby/orchestrator/internal/hotstore"
	"github.com/cuemby/orchestrator/internal/lease"
	"github.com/cuemby/orchestrator/internal/log"
	"github.com/cuemby/orchestrator/internal/metrics"
	"github.com/cuemby/orchestrator/internal/types"
	"github.com/rs/zerolog"
)

func agentKey(id string) string { return fmt.Sprintf("agent:%s", id) }

// Registry tracks registered agents in the hot store's agent:<id> hash
// and detects crashes by heartbeat timeout (§4.16, §6).
type Registry struct {
	client  *hotstore.Client
	hot     *hotstate.Store
	leases  *lease.Manager
	bus     *eventbus.Bus
	logger  zerolog.Logger
	timeout time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates an agent registry. timeout is the heartbeat staleness
// window (config: heartbeat.timeout) beyond which an agent is declared
// crashed.
func New(client *hotstore.Client, hot *hotstate.Store, leases *lease.Manager, bus *eventbus.Bus, timeout time.Duration) *Registry {
	return &Registry{
		client:  client,
		hot:     hot,
		leases:  leases,
		bus:     bus,
		logger:  log.WithComponent("registry"),
		timeout: timeout,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Register writes a fresh agent record with status idle (§4.16).
func (r *Registry) Register(ctx context.Context, id string, role types.AgentRole, pid int) error {
	now := time.Now()
	fields := map[string]string{
		"id":            id,
		"role":          string(role),
		"status":        string(types.AgentIdle),
		"pid":           strconv.Itoa(pid),
		"started_at":    now.Format(time.RFC3339),
		"last_heartbeat": now.Format(time.RFC3339),
	}
	if err := r.client.HSet(ctx, agentKey(id), fields); err != nil {
		return fmt.Errorf("registry: register agent %s failed: %w", id, err)
	}
	return nil
}

// Deregister removes an agent's record after a clean shutdown.
func (r *Registry) Deregister(ctx context.Context, id string) error {
	return r.client.Del(ctx, agentKey(id))
}

// Heartbeat refreshes last_heartbeat and, when provided, the agent's
// status and assigned PR.
func (r *Registry) Heartbeat(ctx context.Context, id string, status types.AgentStatus, assignedPR string) error {
	fields := map[string]string{
		"last_heartbeat": time.Now().Format(time.RFC3339),
	}
	if status != "" {
		fields["status"] = string(status)
	}
	if assignedPR != "" {
		fields["assignedPR"] = assignedPR
	}
	if err := r.client.HSet(ctx, agentKey(id), fields); err != nil {
		return fmt.Errorf("registry: heartbeat for %s failed: %w", id, err)
	}
	return nil
}

// Get loads an agent's current record, reporting whether it exists.
func (r *Registry) Get(ctx context.Context, id string) (*types.Agent, bool, error) {
	fields, err := r.client.HGetAll(ctx, agentKey(id))
	if err != nil {
		return nil, false, fmt.Errorf("registry: load agent %s failed: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, false, nil
	}
	return parseAgent(id, fields), true, nil
}

// List loads every registered agent by scanning the agent:<id> keyspace
// (heartbeat sub-keys are excluded).
func (r *Registry) List(ctx context.Context) ([]types.Agent, error) {
	keys, err := r.client.Keys(ctx, "agent:*")
	if err != nil {
		return nil, fmt.Errorf("registry: scan agents failed: %w", err)
	}

	var agents []types.Agent
	for _, key := range keys {
		id := key[len("agent:"):]
		if id == "" {
			continue
		}
		fields, err := r.client.HGetAll(ctx, key)
		if err != nil || len(fields) == 0 {
			continue
		}
		agents = append(agents, *parseAgent(id, fields))
	}
	return agents, nil
}

func parseAgent(id string, fields map[string]string) *types.Agent {
	agent := &types.Agent{
		ID:         id,
		Role:       types.AgentRole(fields["role"]),
		Status:     types.AgentStatus(fields["status"]),
		AssignedPR: fields["assignedPR"],
	}
	if pid, err := strconv.Atoi(fields["pid"]); err == nil {
		agent.PID = pid
	}
	if t, err := time.Parse(time.RFC3339, fields["last_heartbeat"]); err == nil {
		agent.LastHeartbeat = t
	}
	if t, err := time.Parse(time.RFC3339, fields["started_at"]); err == nil {
		agent.StartedAt = t
	}
	return agent
}

// Start launches the crash-detection loop as a background goroutine,
// ticking on the heartbeat interval.
func (r *Registry) Start(ctx context.Context, interval time.Duration) {
	go r.run(ctx, interval)
}

// Stop halts the crash-detection loop and waits for it to exit.
func (r *Registry) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *Registry) run(ctx context.Context, interval time.Duration) {
	defer func() { r.doneCh <- struct{}{} }()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info().Dur("interval", interval).Msg("agent heartbeat monitor started")

	for {
		select {
		case <-ticker.C:
			r.checkForCrashedAgents(ctx)
		case <-r.stopCh:
			return
		}
	}
}

// checkForCrashedAgents scans all agents, reclaims leases and hot state
// for any whose heartbeat has exceeded the timeout, and marks them
// crashed (§4.16).
func (r *Registry) checkForCrashedAgents(ctx context.Context) {
	agents, err := r.List(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to list agents for crash detection")
		return
	}

	now := time.Now()
	counts := map[types.AgentStatus]int{}

	for _, agent := range agents {
		if agent.Status == types.AgentCrashed {
			counts[types.AgentCrashed]++
			continue
		}

		if now.Sub(agent.LastHeartbeat) <= r.timeout {
			counts[agent.Status]++
			continue
		}

		r.reclaim(ctx, agent)
		counts[types.AgentCrashed]++
	}

	for status, n := range counts {
		metrics.AgentsTotal.WithLabelValues(string(status)).Set(float64(n))
	}
}

func (r *Registry) reclaim(ctx context.Context, agent types.Agent) {
	r.logger.Warn().Str("agent_id", agent.ID).Time("last_heartbeat", agent.LastHeartbeat).Msg("agent heartbeat expired, reclaiming")

	r.leases.Release(ctx, nil, agent.ID)

	if agent.AssignedPR != "" {
		if err := r.hot.ClearHotState(ctx, agent.AssignedPR); err != nil {
			r.logger.Error().Err(err).Str("pr_id", agent.AssignedPR).Msg("failed to clear hot state during crash reclaim")
		}
	}

	agent.Status = types.AgentCrashed
	if err := r.client.Del(ctx, agentKey(agent.ID)); err != nil {
		r.logger.Error().Err(err).Str("agent_id", agent.ID).Msg("failed to remove crashed agent record")
	}

	metrics.AgentCrashesTotal.Inc()
	r.bus.Publish(&eventbus.Event{Type: eventbus.EventAgentCrashed, Message: agent.ID, Payload: agent})
}
