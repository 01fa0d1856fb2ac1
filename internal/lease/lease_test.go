package lease

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cuemby/orchestrator/internal/config"
	"github.com/cuemby/orchestrator/internal/eventbus"
	"github.com/cuemby/orchestrator/internal/hotstore"
	"github.com/cuemby/orchestrator/internal/pairedfiles"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, *eventbus.Bus) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := hotstore.New(config.RedisConfig{
		URL:            fmt.Sprintf("redis://%s/0", mr.Addr()),
		ConnectTimeout: 2 * time.Second,
		Retry:          config.RetryConfig{MaxAttempts: 1, InitialDelay: 10 * time.Millisecond},
	})
	require.NoError(t, client.Connect(context.Background()))
	t.Cleanup(func() { _ = client.Close() })

	bus := eventbus.NewBus()
	bus.Start()
	t.Cleanup(bus.Stop)

	expander := pairedfiles.New(config.PairedLockingConfig{Enabled: false, CheckExists: false})
	mgr := New(config.LeaseConfig{
		DefaultTTL:         5 * time.Minute,
		HeartbeatInterval:  time.Hour,
		GracePeriod:        time.Second,
		TrackSets:          true,
		MaxFilesPerRequest: 50,
	}, client, expander, bus)

	return mgr, bus
}

// TestAcquire_ExclusiveHolder covers spec §8 scenario 2: agent B conflicts
// with agent A, then succeeds after A releases.
func TestAcquire_ExclusiveHolder(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	resA := mgr.Acquire(ctx, []string{"src/a.ts", "src/b.ts"}, "A", "PR-1", 0)
	require.True(t, resA.Success)
	assert.ElementsMatch(t, []string{"src/a.ts", "src/b.ts"}, resA.LeasedFiles)

	resB := mgr.Acquire(ctx, []string{"src/b.ts"}, "B", "PR-2", 0)
	require.False(t, resB.Success)
	require.Len(t, resB.Conflicts, 1)
	assert.Equal(t, "src/b.ts", resB.Conflicts[0].File)
	assert.Equal(t, "A", resB.Conflicts[0].HolderAgent)

	releaseRes := mgr.Release(ctx, nil, "A")
	require.True(t, releaseRes.Success)
	assert.ElementsMatch(t, []string{"src/a.ts", "src/b.ts"}, releaseRes.LeasedFiles)

	resB2 := mgr.Acquire(ctx, []string{"src/b.ts"}, "B", "PR-2", 0)
	require.True(t, resB2.Success)
	assert.Equal(t, []string{"src/b.ts"}, resB2.LeasedFiles)
}

// TestRelease_IdempotentOnEmpty covers §8: release(F,a); release(F,a) is
// equivalent to a single release, and the second reports empty.
func TestRelease_IdempotentOnEmpty(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	res := mgr.Acquire(ctx, []string{"src/x.ts"}, "A", "PR-1", 0)
	require.True(t, res.Success)

	first := mgr.Release(ctx, []string{"src/x.ts"}, "A")
	require.True(t, first.Success)
	assert.Equal(t, []string{"src/x.ts"}, first.LeasedFiles)

	second := mgr.Release(ctx, []string{"src/x.ts"}, "A")
	require.True(t, second.Success)
	assert.Empty(t, second.LeasedFiles)
}

func TestRelease_OtherHolderIsNoOp(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	require.True(t, mgr.Acquire(ctx, []string{"src/x.ts"}, "A", "PR-1", 0).Success)

	res := mgr.Release(ctx, []string{"src/x.ts"}, "B")
	require.True(t, res.Success)
	assert.Empty(t, res.LeasedFiles)

	// A still holds it.
	conflict := mgr.Acquire(ctx, []string{"src/x.ts"}, "B", "PR-2", 0)
	assert.False(t, conflict.Success)
}

func TestAcquire_MaxFilesPerRequest(t *testing.T) {
	mgr, _ := newTestManager(t)
	mgr.cfg.MaxFilesPerRequest = 1

	res := mgr.Acquire(context.Background(), []string{"a", "b"}, "A", "PR-1", 0)
	require.False(t, res.Success)
	assert.Contains(t, res.Error, "maxFilesPerRequest")
}

func TestRenew_UpdatesHeartbeatForOwnedFiles(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	require.True(t, mgr.Acquire(ctx, []string{"src/x.ts"}, "A", "PR-1", time.Minute).Success)

	res := mgr.Renew(ctx, "A", time.Hour)
	require.True(t, res.Success)
	assert.Equal(t, []string{"src/x.ts"}, res.LeasedFiles)
}

func TestScoped_ReleasesOnSuccessAndError(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	res := Scoped(ctx, mgr, []string{"src/y.ts"}, "A", "PR-1", 0, func() error { return nil })
	require.True(t, res.Success)
	assert.Empty(t, mgr.LeasesOfAgent("A"))

	res2 := Scoped(ctx, mgr, []string{"src/y.ts"}, "A", "PR-1", 0, func() error {
		return fmt.Errorf("boom")
	})
	assert.False(t, res2.Success)
	assert.Empty(t, mgr.LeasesOfAgent("A"))
}
