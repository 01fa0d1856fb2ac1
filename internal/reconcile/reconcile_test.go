package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cuemby/orchestrator/internal/coldstore"
	"github.com/cuemby/orchestrator/internal/config"
	"github.com/cuemby/orchestrator/internal/hotstate"
	"github.com/cuemby/orchestrator/internal/hotstore"
	"github.com/cuemby/orchestrator/internal/types"
	"github.com/stretchr/testify/require"
)

const taskListBody = `# Task List

---
pr_id: PR-1
title: one
cold_state: ready
priority: p1
complexity:
  score: 1
  estimated_minutes: 10
  suggested_model: small
  rationale: trivial
dependencies: []
---

---
pr_id: PR-2
title: two
cold_state: completed
priority: p2
complexity:
  score: 2
  estimated_minutes: 20
  suggested_model: small
  rationale: trivial
dependencies: []
---
`

func newTestStores(t *testing.T) (*coldstore.Store, *hotstate.Store, *hotstore.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := hotstore.New(config.RedisConfig{
		URL:            "redis://" + mr.Addr(),
		ConnectTimeout: 2 * time.Second,
		Retry:          config.RetryConfig{MaxAttempts: 1, InitialDelay: 10 * time.Millisecond},
	})
	require.NoError(t, client.Connect(context.Background()))
	t.Cleanup(func() { _ = client.Close() })

	dir := t.TempDir()
	taskListPath := "task-list.md"
	require.NoError(t, os.WriteFile(filepath.Join(dir, taskListPath), []byte(taskListBody), 0o644))

	cold, err := coldstore.New(config.ColdStoreConfig{
		RepoPath:     dir,
		TaskListPath: taskListPath,
		AuthorName:   "test",
		AuthorEmail:  "test@local",
	})
	require.NoError(t, err)

	hot := hotstate.New(client)
	return cold, hot, client
}

func TestDetectConflicts_MissingColdCache(t *testing.T) {
	cold, hot, _ := newTestStores(t)
	r := New(cold, hot)
	ctx := context.Background()

	conflicts, err := r.DetectConflicts(ctx)
	require.NoError(t, err)

	var found bool
	for _, c := range conflicts {
		if c.Kind == KindMissingColdCache && c.PRID == "PR-1" {
			found = true
		}
	}
	require.True(t, found, "expected missing_cold_cache conflict for PR-1, got %+v", conflicts)
}

func TestDetectConflicts_ColdCacheMismatch(t *testing.T) {
	cold, hot, _ := newTestStores(t)
	r := New(cold, hot)
	ctx := context.Background()

	require.NoError(t, hot.UpdateColdStateCache(ctx, "PR-1", types.ColdBlocked))

	conflicts, err := r.DetectConflicts(ctx)
	require.NoError(t, err)

	var found bool
	for _, c := range conflicts {
		if c.Kind == KindColdCacheMismatch && c.PRID == "PR-1" {
			found = true
		}
	}
	require.True(t, found)
}

func TestDetectConflicts_HotOnTerminal(t *testing.T) {
	cold, hot, _ := newTestStores(t)
	r := New(cold, hot)
	ctx := context.Background()

	require.NoError(t, hot.UpdateColdStateCache(ctx, "PR-2", types.ColdCompleted))
	require.NoError(t, hot.WriteHotState(ctx, "PR-2", types.HotInProgress, "agent-1"))

	conflicts, err := r.DetectConflicts(ctx)
	require.NoError(t, err)

	var found bool
	for _, c := range conflicts {
		if c.Kind == KindHotOnTerminal && c.PRID == "PR-2" {
			found = true
		}
	}
	require.True(t, found)
}

func TestDetectConflicts_Orphan(t *testing.T) {
	cold, hot, _ := newTestStores(t)
	r := New(cold, hot)
	ctx := context.Background()

	require.NoError(t, hot.WriteHotState(ctx, "PR-ghost", types.HotInvestigating, "agent-1"))

	conflicts, err := r.DetectConflicts(ctx)
	require.NoError(t, err)

	var found bool
	for _, c := range conflicts {
		if c.Kind == KindOrphan && c.PRID == "PR-ghost" {
			found = true
		}
	}
	require.True(t, found)
}

func TestResolve_ClearsHotOnTerminal(t *testing.T) {
	cold, hot, _ := newTestStores(t)
	r := New(cold, hot)
	ctx := context.Background()

	require.NoError(t, hot.UpdateColdStateCache(ctx, "PR-2", types.ColdCompleted))
	require.NoError(t, hot.WriteHotState(ctx, "PR-2", types.HotInProgress, "agent-1"))

	conflicts, err := r.DetectConflicts(ctx)
	require.NoError(t, err)
	require.NoError(t, r.Resolve(ctx, conflicts))

	states, err := hot.GetAllHotStates(ctx)
	require.NoError(t, err)
	_, stillPresent := states["PR-2"]
	require.False(t, stillPresent)
}

func TestReconcileAfterCrash_ClearsHotAndHydratesCache(t *testing.T) {
	cold, hot, _ := newTestStores(t)
	r := New(cold, hot)
	ctx := context.Background()

	require.NoError(t, hot.WriteHotState(ctx, "PR-1", types.HotPlanning, "agent-1"))

	require.NoError(t, r.ReconcileAfterCrash(ctx))

	states, err := hot.GetAllHotStates(ctx)
	require.NoError(t, err)
	require.Empty(t, states)

	cached, ok, err := hot.ColdStateCache(ctx, "PR-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, types.ColdReady, cached)

	reconciliations, _ := r.Counters()
	require.Equal(t, int64(1), reconciliations)
}

func TestValidateConsistency_InvalidWhenConflictsExist(t *testing.T) {
	cold, hot, _ := newTestStores(t)
	r := New(cold, hot)
	ctx := context.Background()

	result, err := r.ValidateConsistency(ctx)
	require.NoError(t, err)
	require.False(t, result.Valid)
	require.NotEmpty(t, result.Conflicts)
}
