// Package hotstate implements the hot-store operations named in §4.13
// (component M): writing/clearing a PR's ephemeral hot state, caching its
// cold state for fast reads, hydrating the cache from the cold store at
// startup, and sweeping orphaned or heartbeat-expired entries.
package hotstate

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/orchestrator/internal/hotstore"
	"github.com/cuemby/orchestrator/internal/log"
	"github.com/cuemby/orchestrator/internal/types"
	"github.com/rs/zerolog"
)

const hotStateTTL = 5 * time.Minute

// Store wraps the hot-store client with the PR-keyspace operations from
// §6: pr:<id>:hot_state, pr:<id>:agent, pr:<id>:hot_state_timestamp (all
// TTL 5m), pr:<id>:cold_state (no TTL, reconstructible cache), and
// pr:<id>:dependencies.
type Store struct {
	client *hotstore.Client
	logger zerolog.Logger
}

// New creates a hot-state store over the given hot-store client.
func New(client *hotstore.Client) *Store {
	return &Store{client: client, logger: log.WithComponent("hotstate")}
}

func hotStateKey(prID string) string { return fmt.Sprintf("pr:%s:hot_state", prID) }
func agentFieldKey(prID string) string { return fmt.Sprintf("pr:%s:agent", prID) }
func hotTimestampKey(prID string) string { return fmt.Sprintf("pr:%s:hot_state_timestamp", prID) }
func coldStateKey(prID string) string  { return fmt.Sprintf("pr:%s:cold_state", prID) }
func dependenciesKey(prID string) string { return fmt.Sprintf("pr:%s:dependencies", prID) }
func agentKey(agentID string) string   { return fmt.Sprintf("agent:%s", agentID) }
func agentHeartbeatKey(agentID string) string { return fmt.Sprintf("agent:%s:heartbeat", agentID) }

// WriteHotState sets the three hot-state keys for a PR, each with the
// standard 5-minute TTL (§4.13).
func (s *Store) WriteHotState(ctx context.Context, prID string, state types.HotState, agentID string) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	if err := s.client.Set(ctx, hotStateKey(prID), string(state), hotStateTTL); err != nil {
		return fmt.Errorf("hotstate: write hot_state failed: %w", err)
	}
	if err := s.client.Set(ctx, agentFieldKey(prID), agentID, hotStateTTL); err != nil {
		return fmt.Errorf("hotstate: write agent failed: %w", err)
	}
	if err := s.client.Set(ctx, hotTimestampKey(prID), now, hotStateTTL); err != nil {
		return fmt.Errorf("hotstate: write timestamp failed: %w", err)
	}
	return nil
}

// ClearHotState deletes the three hot-state keys for a PR.
func (s *Store) ClearHotState(ctx context.Context, prID string) error {
	return s.client.Del(ctx, hotStateKey(prID), agentFieldKey(prID), hotTimestampKey(prID))
}

// UpdateColdStateCache sets the reconstructible cold-state cache entry,
// with no TTL since it can always be rebuilt from the cold store (§4.13).
func (s *Store) UpdateColdStateCache(ctx context.Context, prID string, state types.ColdState) error {
	return s.client.Set(ctx, coldStateKey(prID), string(state), 0)
}

// ColdStateCache reads back the cached cold state for a PR, reporting
// whether the cache entry exists at all.
func (s *Store) ColdStateCache(ctx context.Context, prID string) (types.ColdState, bool, error) {
	val, err := s.client.Get(ctx, coldStateKey(prID))
	if err != nil {
		return "", false, fmt.Errorf("hotstate: read cold_state cache failed: %w", err)
	}
	if val == "" {
		return "", false, nil
	}
	return types.ColdState(val), true, nil
}

// AllColdStateCacheIDs scans pr:*:cold_state and returns every cached PR
// id, used by reconciliation to find orphaned cache entries.
func (s *Store) AllColdStateCacheIDs(ctx context.Context) ([]string, error) {
	keys, err := s.client.Scan(ctx, "pr:*:cold_state")
	if err != nil {
		return nil, fmt.Errorf("hotstate: scan cold_state cache failed: %w", err)
	}
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if id := extractPRID(key, ":cold_state"); id != "" {
			out = append(out, id)
		}
	}
	return out, nil
}

// GetAllHotStates scans pr:*:hot_state and returns the current hot state
// per PR id (§4.13).
func (s *Store) GetAllHotStates(ctx context.Context) (map[string]types.HotState, error) {
	keys, err := s.client.Scan(ctx, "pr:*:hot_state")
	if err != nil {
		return nil, fmt.Errorf("hotstate: scan hot states failed: %w", err)
	}

	out := make(map[string]types.HotState, len(keys))
	for _, key := range keys {
		prID := extractPRID(key, ":hot_state")
		if prID == "" {
			continue
		}
		val, err := s.client.Get(ctx, key)
		if err != nil || val == "" {
			continue
		}
		out[prID] = types.HotState(val)
	}
	return out, nil
}

// HydrateFromTaskList writes the cold-state cache and dependency set for
// every PR in list (§4.13, consumed by the sync coordinator at startup).
func (s *Store) HydrateFromTaskList(ctx context.Context, list map[string]types.PR) error {
	for id, pr := range list {
		if err := s.UpdateColdStateCache(ctx, id, pr.ColdState); err != nil {
			return err
		}
		if len(pr.Dependencies) > 0 {
			if err := s.client.SAdd(ctx, dependenciesKey(id), pr.Dependencies...); err != nil {
				return fmt.Errorf("hotstate: hydrate dependencies for %s failed: %w", id, err)
			}
		}
	}
	return nil
}

// ClearOrphanedStates deletes every pr:* key for an id not present in
// validIDs (§4.13).
func (s *Store) ClearOrphanedStates(ctx context.Context, validIDs map[string]bool) (int, error) {
	keys, err := s.client.Scan(ctx, "pr:*")
	if err != nil {
		return 0, fmt.Errorf("hotstate: scan pr keys failed: %w", err)
	}

	var toDelete []string
	for _, key := range keys {
		id := extractPRIDAny(key)
		if id == "" || validIDs[id] {
			continue
		}
		toDelete = append(toDelete, key)
	}
	if len(toDelete) == 0 {
		return 0, nil
	}
	if err := s.client.Del(ctx, toDelete...); err != nil {
		return 0, fmt.Errorf("hotstate: delete orphaned keys failed: %w", err)
	}
	s.logger.Info().Int("count", len(toDelete)).Msg("cleared orphaned hot-store entries")
	return len(toDelete), nil
}

// ClearExpiredHeartbeats scans agent:*:heartbeat, removes entries older
// than 5 minutes, and clears the hot state of whichever PR that agent was
// assigned to (§4.13).
func (s *Store) ClearExpiredHeartbeats(ctx context.Context) (int, error) {
	keys, err := s.client.Scan(ctx, "agent:*:heartbeat")
	if err != nil {
		return 0, fmt.Errorf("hotstate: scan heartbeats failed: %w", err)
	}

	now := time.Now()
	cleared := 0
	for _, key := range keys {
		raw, err := s.client.Get(ctx, key)
		if err != nil || raw == "" {
			continue
		}
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		if now.Sub(time.UnixMilli(ms)) <= hotStateTTL {
			continue
		}

		agentID := extractAgentID(key)
		if agentID == "" {
			continue
		}

		fields, err := s.client.HGetAll(ctx, agentKey(agentID))
		if err == nil {
			if assigned := fields["assignedPR"]; assigned != "" {
				_ = s.ClearHotState(ctx, assigned)
			}
		}

		if err := s.client.Del(ctx, key); err != nil {
			continue
		}
		cleared++
	}
	return cleared, nil
}

func extractPRID(key, suffix string) string {
	if !strings.HasPrefix(key, "pr:") || !strings.HasSuffix(key, suffix) {
		return ""
	}
	return strings.TrimSuffix(strings.TrimPrefix(key, "pr:"), suffix)
}

func extractPRIDAny(key string) string {
	rest := strings.TrimPrefix(key, "pr:")
	if rest == key {
		return ""
	}
	if idx := strings.Index(rest, ":"); idx >= 0 {
		return rest[:idx]
	}
	return rest
}

func extractAgentID(key string) string {
	if !strings.HasPrefix(key, "agent:") || !strings.HasSuffix(key, ":heartbeat") {
		return ""
	}
	return strings.TrimSuffix(strings.TrimPrefix(key, "agent:"), ":heartbeat")
}
