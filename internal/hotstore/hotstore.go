package hotstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/orchestrator/internal/config"
	"github.com/cuemby/orchestrator/internal/log"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ConnState is the hot-store client's connection lifecycle (§4.1).
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateReconnecting ConnState = "reconnecting"
	StateError        ConnState = "error"
	StateClosing      ConnState = "closing"
	StateClosed       ConnState = "closed"
)

var (
	// ErrConnectionRefused mirrors the engine's connection_refused error kind.
	ErrConnectionRefused = errors.New("hotstore: connection refused")
	// ErrNotConnected mirrors operation_on_unconnected_client.
	ErrNotConnected = errors.New("hotstore: operation on unconnected client")
	// ErrAborted mirrors watch_conflict / TransactionAborted (§7).
	ErrAborted = errors.New("hotstore: transaction aborted")
)

// StateChange is fired whenever the connection lifecycle moves.
type StateChange struct {
	From ConnState
	To   ConnState
	At   time.Time
}

// Client wraps a primary, publisher, and subscriber redis connection so
// publish traffic never blocks command traffic (§4.1). Reconnect uses
// exponential backoff bounded by maxAttempts, after which the client
// settles into StateError.
type Client struct {
	cfg    config.RedisConfig
	logger zerolog.Logger

	mu      sync.RWMutex
	state   ConnState
	primary *redis.Client
	pub     *redis.Client
	sub     *redis.Client

	listenersMu sync.RWMutex
	listeners   []chan StateChange

	connectAttempts int64
}

// New creates a client without connecting. Call Connect to establish the
// primary/publisher/subscriber connections.
func New(cfg config.RedisConfig) *Client {
	return &Client{
		cfg:    cfg,
		logger: log.WithComponent("hotstore"),
		state:  StateDisconnected,
	}
}

// State returns the current connection lifecycle state.
func (c *Client) State() ConnState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// OnStateChange registers a channel that receives every lifecycle
// transition. The channel is buffered; slow consumers miss intermediate
// states rather than blocking the client.
func (c *Client) OnStateChange() <-chan StateChange {
	ch := make(chan StateChange, 16)
	c.listenersMu.Lock()
	c.listeners = append(c.listeners, ch)
	c.listenersMu.Unlock()
	return ch
}

func (c *Client) setState(s ConnState) {
	c.mu.Lock()
	from := c.state
	c.state = s
	c.mu.Unlock()

	if from == s {
		return
	}

	change := StateChange{From: from, To: s, At: time.Now()}
	c.listenersMu.RLock()
	defer c.listenersMu.RUnlock()
	for _, ch := range c.listeners {
		select {
		case ch <- change:
		default:
		}
	}
}

// Connect establishes the primary, publisher, and subscriber connections
// with exponential backoff, entering StateError after the retry budget is
// exhausted.
func (c *Client) Connect(ctx context.Context) error {
	c.setState(StateConnecting)

	opts, err := redis.ParseURL(c.cfg.URL)
	if err != nil {
		c.setState(StateError)
		return fmt.Errorf("hotstore: invalid redis url: %w", err)
	}
	if c.cfg.ConnectTimeout > 0 {
		opts.DialTimeout = c.cfg.ConnectTimeout
	}

	delay := c.cfg.Retry.InitialDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	maxAttempts := c.cfg.Retry.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		atomic.AddInt64(&c.connectAttempts, 1)

		primary := redis.NewClient(opts)
		pub := redis.NewClient(opts)
		sub := redis.NewClient(opts)

		pingCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
		err := primary.Ping(pingCtx).Err()
		cancel()

		if err == nil {
			c.mu.Lock()
			c.primary, c.pub, c.sub = primary, pub, sub
			c.mu.Unlock()
			c.setState(StateConnected)
			c.logger.Info().Int("attempt", attempt).Msg("hot store connected")
			return nil
		}

		_ = primary.Close()
		_ = pub.Close()
		_ = sub.Close()
		lastErr = err

		c.logger.Warn().Err(err).Int("attempt", attempt).Msg("hot store connect failed")
		if attempt < maxAttempts {
			c.setState(StateReconnecting)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				c.setState(StateError)
				return ctx.Err()
			}
			delay = scaleDelay(delay, c.cfg.Retry.Factor, c.cfg.Retry.MaxDelay)
		}
	}

	c.setState(StateError)
	return fmt.Errorf("%w: %v", ErrConnectionRefused, lastErr)
}

func scaleDelay(cur time.Duration, factor float64, max time.Duration) time.Duration {
	if factor <= 1 {
		factor = 2
	}
	next := time.Duration(math.Round(float64(cur) * factor))
	if max > 0 && next > max {
		return max
	}
	return next
}

// Close shuts down all three connections.
func (c *Client) Close() error {
	c.setState(StateClosing)
	defer c.setState(StateClosed)

	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for _, cl := range []*redis.Client{c.primary, c.pub, c.sub} {
		if cl == nil {
			continue
		}
		if err := cl.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("hotstore: close errors: %v", errs)
	}
	return nil
}

func (c *Client) requireConnected() (*redis.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != StateConnected || c.primary == nil {
		return nil, ErrNotConnected
	}
	return c.primary, nil
}

// Ping issues a PING and returns the round-trip latency, used by the
// health monitor (B).
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	cl, err := c.requireConnected()
	if err != nil {
		return 0, err
	}
	start := time.Now()
	if err := cl.Ping(ctx).Err(); err != nil {
		return time.Since(start), err
	}
	return time.Since(start), nil
}

// --- key/value ---

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	cl, err := c.requireConnected()
	if err != nil {
		return "", err
	}
	v, err := cl.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	cl, err := c.requireConnected()
	if err != nil {
		return err
	}
	return cl.Set(ctx, key, value, ttl).Err()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	cl, err := c.requireConnected()
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return cl.Del(ctx, keys...).Err()
}

func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) error {
	cl, err := c.requireConnected()
	if err != nil {
		return err
	}
	return cl.Expire(ctx, key, ttl).Err()
}

func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	cl, err := c.requireConnected()
	if err != nil {
		return false, err
	}
	n, err := cl.Exists(ctx, key).Result()
	return n > 0, err
}

// --- hash ---

func (c *Client) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	cl, err := c.requireConnected()
	if err != nil {
		return nil, err
	}
	return cl.HGetAll(ctx, key).Result()
}

func (c *Client) HSet(ctx context.Context, key string, fields map[string]string) error {
	cl, err := c.requireConnected()
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return cl.HSet(ctx, key, args...).Err()
}

func (c *Client) HDel(ctx context.Context, key string, fields ...string) error {
	cl, err := c.requireConnected()
	if err != nil {
		return err
	}
	return cl.HDel(ctx, key, fields...).Err()
}

// --- sets ---

func (c *Client) SAdd(ctx context.Context, key string, members ...string) error {
	cl, err := c.requireConnected()
	if err != nil {
		return err
	}
	if len(members) == 0 {
		return nil
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return cl.SAdd(ctx, key, args...).Err()
}

func (c *Client) SRem(ctx context.Context, key string, members ...string) error {
	cl, err := c.requireConnected()
	if err != nil {
		return err
	}
	if len(members) == 0 {
		return nil
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return cl.SRem(ctx, key, args...).Err()
}

func (c *Client) SMembers(ctx context.Context, key string) ([]string, error) {
	cl, err := c.requireConnected()
	if err != nil {
		return nil, err
	}
	return cl.SMembers(ctx, key).Result()
}

// --- sorted sets ---

func (c *Client) ZAdd(ctx context.Context, key string, score float64, member string) error {
	cl, err := c.requireConnected()
	if err != nil {
		return err
	}
	return cl.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
}

func (c *Client) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	cl, err := c.requireConnected()
	if err != nil {
		return nil, err
	}
	return cl.ZRange(ctx, key, start, stop).Result()
}

// --- scan ---

// Scan returns every key matching pattern via a cursor-based SCAN, never
// KEYS (reserved for startup-only use per §6).
func (c *Client) Scan(ctx context.Context, pattern string) ([]string, error) {
	cl, err := c.requireConnected()
	if err != nil {
		return nil, err
	}
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := cl.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

// Keys performs an unscoped KEYS scan. Reserved for startup-only use per §6.
func (c *Client) Keys(ctx context.Context, pattern string) ([]string, error) {
	cl, err := c.requireConnected()
	if err != nil {
		return nil, err
	}
	return cl.Keys(ctx, pattern).Result()
}

// --- pub/sub ---

// Publish sends a message on a channel using the dedicated publisher
// connection.
func (c *Client) Publish(ctx context.Context, channel, message string) error {
	c.mu.RLock()
	pub := c.pub
	state := c.state
	c.mu.RUnlock()
	if state != StateConnected || pub == nil {
		return ErrNotConnected
	}
	return pub.Publish(ctx, channel, message).Err()
}

// Subscribe subscribes to exact channel names on the dedicated subscriber
// connection.
func (c *Client) Subscribe(ctx context.Context, channels ...string) (*redis.PubSub, error) {
	c.mu.RLock()
	sub := c.sub
	state := c.state
	c.mu.RUnlock()
	if state != StateConnected || sub == nil {
		return nil, ErrNotConnected
	}
	return sub.Subscribe(ctx, channels...), nil
}

// PSubscribe subscribes to a glob pattern on the dedicated subscriber
// connection.
func (c *Client) PSubscribe(ctx context.Context, patterns ...string) (*redis.PubSub, error) {
	c.mu.RLock()
	sub := c.sub
	state := c.state
	c.mu.RUnlock()
	if state != StateConnected || sub == nil {
		return nil, ErrNotConnected
	}
	return sub.PSubscribe(ctx, patterns...), nil
}

// --- atomic transaction ---

// TxResult reports whether an atomic multi-set executed cleanly or was
// aborted by a concurrent writer touching a watched key.
type TxResult struct {
	Aborted bool
}

// AtomicTx runs watch -> build -> exec against the given watch keys,
// retrying on abort up to maxRetries with exponential backoff (§4.1,
// §9 "Atomic multi-set without server scripts"). build enqueues commands
// against the pipeline; it must be idempotent since it can run more than
// once across retries.
func (c *Client) AtomicTx(ctx context.Context, watchKeys []string, maxRetries int, build func(pipe redis.Pipeliner) error) (TxResult, error) {
	cl, err := c.requireConnected()
	if err != nil {
		return TxResult{}, err
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}

	delay := 10 * time.Millisecond
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := cl.Watch(ctx, func(tx *redis.Tx) error {
			_, txErr := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				return build(pipe)
			})
			return txErr
		}, watchKeys...)

		if err == nil {
			return TxResult{}, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			if attempt == maxRetries {
				return TxResult{Aborted: true}, ErrAborted
			}
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return TxResult{}, ctx.Err()
			}
			delay *= 2
			continue
		}
		return TxResult{}, err
	}

	return TxResult{Aborted: true}, ErrAborted
}

// ConnectAttempts reports how many connection attempts have been made,
// for diagnostics.
func (c *Client) ConnectAttempts() int64 {
	return atomic.LoadInt64(&c.connectAttempts)
}
