package hotstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cuemby/orchestrator/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConnected(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	c := New(config.RedisConfig{
		URL:            fmt.Sprintf("redis://%s/0", mr.Addr()),
		ConnectTimeout: 2 * time.Second,
		Retry:          config.RetryConfig{MaxAttempts: 1, InitialDelay: 10 * time.Millisecond},
	})
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestConnect_TransitionsToConnected(t *testing.T) {
	c, _ := newConnected(t)
	assert.Equal(t, StateConnected, c.State())
	assert.Equal(t, int64(1), c.ConnectAttempts())
}

func TestConnect_InvalidURLEntersErrorState(t *testing.T) {
	c := New(config.RedisConfig{URL: "not-a-url", ConnectTimeout: time.Second})
	err := c.Connect(context.Background())
	assert.Error(t, err)
	assert.Equal(t, StateError, c.State())
}

func TestConnect_ExhaustsRetriesThenErrors(t *testing.T) {
	c := New(config.RedisConfig{
		URL:            "redis://127.0.0.1:1/0",
		ConnectTimeout: 50 * time.Millisecond,
		Retry:          config.RetryConfig{MaxAttempts: 2, InitialDelay: 5 * time.Millisecond, Factor: 2},
	})
	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectionRefused)
	assert.Equal(t, StateError, c.State())
	assert.Equal(t, int64(2), c.ConnectAttempts())
}

func TestOperations_FailWhenNotConnected(t *testing.T) {
	c := New(config.RedisConfig{})
	_, err := c.Get(context.Background(), "key")
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = c.Ping(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSetGetDel_RoundTrip(t *testing.T) {
	c, _ := newConnected(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", 0))
	v, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	exists, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, c.Del(ctx, "k"))
	v, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestGet_MissingKeyReturnsEmptyNoError(t *testing.T) {
	c, _ := newConnected(t)
	v, err := c.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestSetAndSMembers(t *testing.T) {
	c, _ := newConnected(t)
	ctx := context.Background()

	require.NoError(t, c.SAdd(ctx, "agents", "a", "b"))
	members, err := c.SMembers(ctx, "agents")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, members)

	require.NoError(t, c.SRem(ctx, "agents", "a"))
	members, err = c.SMembers(ctx, "agents")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, members)
}

func TestStateChangeListeners_ReceiveTransitions(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	c := New(config.RedisConfig{
		URL:            fmt.Sprintf("redis://%s/0", mr.Addr()),
		ConnectTimeout: 2 * time.Second,
		Retry:          config.RetryConfig{MaxAttempts: 1, InitialDelay: 10 * time.Millisecond},
	})
	ch := c.OnStateChange()

	require.NoError(t, c.Connect(context.Background()))

	var saw []ConnState
	for i := 0; i < 2; i++ {
		select {
		case change := <-ch:
			saw = append(saw, change.To)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for state change")
		}
	}
	assert.Contains(t, saw, StateConnecting)
	assert.Contains(t, saw, StateConnected)
}

func TestAtomicTx_AbortsOnWatchConflict(t *testing.T) {
	c, mr := newConnected(t)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "watched", "0", 0))

	result, err := c.AtomicTx(ctx, []string{"watched"}, 1, func(pipe redis.Pipeliner) error {
		// Simulate a concurrent writer touching the watched key mid-transaction.
		mr.Set("watched", "99")
		pipe.Set(ctx, "watched", "1", 0)
		return nil
	})

	assert.True(t, result.Aborted)
	assert.ErrorIs(t, err, ErrAborted)
}

func TestAtomicTx_CommitsWhenUncontested(t *testing.T) {
	c, _ := newConnected(t)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "watched", "0", 0))

	result, err := c.AtomicTx(ctx, []string{"watched"}, 1, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, "watched", "1", 0)
		return nil
	})
	require.NoError(t, err)
	assert.False(t, result.Aborted)

	v, err := c.Get(ctx, "watched")
	require.NoError(t, err)
	assert.Equal(t, "1", v)
}

func TestPublish_FailsWhenNotConnected(t *testing.T) {
	c := New(config.RedisConfig{})
	err := c.Publish(context.Background(), "chan", "msg")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestClose_TransitionsToClosed(t *testing.T) {
	c, _ := newConnected(t)
	require.NoError(t, c.Close())
	assert.Equal(t, StateClosed, c.State())
}
