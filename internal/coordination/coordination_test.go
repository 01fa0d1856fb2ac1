package coordination

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cuemby/orchestrator/internal/config"
	"github.com/cuemby/orchestrator/internal/eventbus"
	"github.com/cuemby/orchestrator/internal/health"
	"github.com/cuemby/orchestrator/internal/hotstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSnapshotter struct {
	snapshotCalls  int
	rehydrateCalls int
	notified       []string
	failSnapshot   bool
}

func (f *fakeSnapshotter) Snapshot(ctx context.Context) error {
	f.snapshotCalls++
	if f.failSnapshot {
		return fmt.Errorf("snapshot failed")
	}
	return nil
}

func (f *fakeSnapshotter) Rehydrate(ctx context.Context) error {
	f.rehydrateCalls++
	return nil
}

func (f *fakeSnapshotter) NotifyFile(message string) error {
	f.notified = append(f.notified, message)
	return nil
}

func newTestManager(t *testing.T, cfg config.CoordinationConfig) (*Manager, *hotstore.Client, *fakeSnapshotter) {
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

	monitor := health.New(config.HealthConfig{}, client, eventbus.NewBus())
	bus := eventbus.NewBus()
	bus.Start()
	t.Cleanup(bus.Stop)

	snap := &fakeSnapshotter{}
	mgr := New(cfg, client, monitor, bus, snap)
	return mgr, client, snap
}

func TestDetectMode_ConnectedAndHealthyIsDistributed(t *testing.T) {
	mgr, _, _ := newTestManager(t, config.CoordinationConfig{})
	assert.Equal(t, Distributed, mgr.DetectMode())
}

func TestDetectMode_DisconnectedIsIsolated(t *testing.T) {
	mgr, client, _ := newTestManager(t, config.CoordinationConfig{})
	require.NoError(t, client.Close())
	assert.Equal(t, Isolated, mgr.DetectMode())
}

func TestSwitchMode_NoopOnSameMode(t *testing.T) {
	mgr, _, snap := newTestManager(t, config.CoordinationConfig{})
	require.NoError(t, mgr.SwitchMode(context.Background(), Distributed, "noop"))
	assert.Equal(t, Distributed, mgr.Mode())
	assert.Zero(t, snap.snapshotCalls)
}

func TestSwitchMode_DistributedToIsolatedSnapshotsAndNotifies(t *testing.T) {
	mgr, client, snap := newTestManager(t, config.CoordinationConfig{})
	require.NoError(t, client.Close())

	require.NoError(t, mgr.SwitchMode(context.Background(), Isolated, "manual"))
	assert.Equal(t, Isolated, mgr.Mode())
	assert.Equal(t, 1, snap.snapshotCalls)
	assert.Contains(t, snap.notified, "WORK_ISOLATED")

	history := mgr.History()
	require.Len(t, history, 1)
	assert.Equal(t, Distributed, history[0].From)
	assert.Equal(t, Isolated, history[0].To)
}

func TestSwitchMode_FailedEdgeActionLeavesModeUnchanged(t *testing.T) {
	mgr, _, snap := newTestManager(t, config.CoordinationConfig{})
	snap.failSnapshot = true

	err := mgr.SwitchMode(context.Background(), Isolated, "manual")
	assert.Error(t, err)
	assert.Equal(t, Distributed, mgr.Mode())
	assert.Empty(t, mgr.History())
}

func TestSwitchMode_CooldownBlocksRapidTransitions(t *testing.T) {
	mgr, _, _ := newTestManager(t, config.CoordinationConfig{TransitionCooldown: time.Hour})

	require.NoError(t, mgr.SwitchMode(context.Background(), Isolated, "first"))
	err := mgr.SwitchMode(context.Background(), Degraded, "second")
	assert.Error(t, err)
	assert.Equal(t, Isolated, mgr.Mode())
}

func TestSwitchMode_IsolatedToDistributedRehydrates(t *testing.T) {
	mgr, client, snap := newTestManager(t, config.CoordinationConfig{})
	require.NoError(t, client.Close())
	require.NoError(t, mgr.SwitchMode(context.Background(), Isolated, "go isolated"))

	require.NoError(t, mgr.SwitchMode(context.Background(), Distributed, "come back"))
	assert.Equal(t, 1, snap.rehydrateCalls)
	assert.Contains(t, snap.notified, "RESUME")
}
