package redis

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	domainerror "github.com/platemate/platemate-server/internal/domain/error"
)

// Client is the narrow slice of the go-redis API the adapter uses. Both
// *redis.Client and *redis.ClusterClient satisfy it, and tests can stand in
// fakes built from the go-redis result constructors.
type Client interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	PTTL(ctx context.Context, key string) *redis.DurationCmd
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	Close() error
}

// DialFunc opens a new connection to the cache tier.
type DialFunc func(ctx context.Context) (Client, error)

// LifecycleEvent identifies a connection lifecycle transition.
type LifecycleEvent string

const (
	EventConnect LifecycleEvent = "connect"
	EventReady   LifecycleEvent = "ready"
	EventError   LifecycleEvent = "error"
	EventClose   LifecycleEvent = "close"
)

// LifecycleHook observes connection lifecycle transitions.
type LifecycleHook func(event LifecycleEvent, connID int, err error)

// PoolConfig holds connection pool tuning.
type PoolConfig struct {
	MinConns       int
	MaxConns       int
	AcquireTimeout time.Duration
	PollInterval   time.Duration
	IdleTimeout    time.Duration
	SweepInterval  time.Duration
	DialTimeout    time.Duration
	MaxDialElapsed time.Duration
}

// DefaultPoolConfig returns default pool configuration.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MinConns:       2,
		MaxConns:       10,
		AcquireTimeout: 5 * time.Second,
		PollInterval:   100 * time.Millisecond,
		IdleTimeout:    5 * time.Minute,
		SweepInterval:  time.Minute,
		DialTimeout:    5 * time.Second,
		MaxDialElapsed: 30 * time.Second,
	}
}

// Conn is a pooled connection handle.
type Conn struct {
	id       int
	client   Client
	lastUsed time.Time
	borrowed bool
}

// Client returns the underlying redis client.
func (c *Conn) Client() Client { return c.client }

// Pool manages a bounded set of cache-tier connections. It grows lazily up
// to MaxConns, queues acquirers who poll until their deadline, and sweeps
// idle connections back down to MinConns. In cluster mode there is a single
// shared handle, since the cluster client multiplexes internally.
type Pool struct {
	mu      sync.Mutex
	conns   []*Conn
	nextID  int
	closed  bool
	cluster *Conn

	cfg    PoolConfig
	dial   DialFunc
	hook   LifecycleHook
	logger zerolog.Logger

	stopSweep chan struct{}
	sweepDone chan struct{}
}

// NewPool creates a pool and eagerly establishes MinConns connections.
func NewPool(ctx context.Context, cfg PoolConfig, dial DialFunc, hook LifecycleHook, logger zerolog.Logger) (*Pool, error) {
	if cfg.MaxConns <= 0 {
		cfg = DefaultPoolConfig()
	}
	if cfg.MinConns > cfg.MaxConns {
		cfg.MinConns = cfg.MaxConns
	}

	p := &Pool{
		cfg:       cfg,
		dial:      dial,
		hook:      hook,
		logger:    logger.With().Str("component", "redis-pool").Logger(),
		stopSweep: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}

	for i := 0; i < cfg.MinConns; i++ {
		conn, err := p.connect(ctx)
		if err != nil {
			p.mu.Lock()
			p.closeAllLocked()
			p.mu.Unlock()
			return nil, err
		}
		p.conns = append(p.conns, conn)
	}

	go p.sweepLoop()

	return p, nil
}

// NewClusterPool wraps a cluster client in the pool interface. Acquire
// always yields the shared handle; there is no per-call pooling.
func NewClusterPool(client Client, hook LifecycleHook, logger zerolog.Logger) *Pool {
	p := &Pool{
		cfg:       DefaultPoolConfig(),
		hook:      hook,
		logger:    logger.With().Str("component", "redis-pool").Logger(),
		cluster:   &Conn{id: 0, client: client, lastUsed: time.Now()},
		stopSweep: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	close(p.sweepDone) // no sweeper in cluster mode
	return p
}

// Acquire returns a free connection, growing the pool if possible, or
// fails with ErrPoolTimeout once the configured deadline elapses.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	deadline := time.Now().Add(p.cfg.AcquireTimeout)
	start := time.Now()

	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, domainerror.ErrPoolClosed
		}
		if p.cluster != nil {
			p.mu.Unlock()
			poolAcquireSeconds.Observe(time.Since(start).Seconds())
			return p.cluster, nil
		}
		for _, conn := range p.conns {
			if !conn.borrowed {
				conn.borrowed = true
				p.updateGaugesLocked()
				p.mu.Unlock()
				poolAcquireSeconds.Observe(time.Since(start).Seconds())
				return conn, nil
			}
		}
		canGrow := len(p.conns) < p.cfg.MaxConns
		p.mu.Unlock()

		if canGrow {
			// The dial must not outlive this acquirer's deadline.
			dialCtx, cancel := context.WithDeadline(ctx, deadline)
			conn, err := p.connect(dialCtx)
			cancel()
			if err == nil {
				p.mu.Lock()
				switch {
				case p.closed:
					p.mu.Unlock()
					p.closeConn(conn)
					return nil, domainerror.ErrPoolClosed
				case len(p.conns) >= p.cfg.MaxConns:
					// A concurrent acquirer filled the last slot while we
					// were dialing; discard the surplus and go back to
					// polling for a release.
					p.mu.Unlock()
					p.closeConn(conn)
				default:
					conn.borrowed = true
					p.conns = append(p.conns, conn)
					p.updateGaugesLocked()
					p.mu.Unlock()
					poolAcquireSeconds.Observe(time.Since(start).Seconds())
					return conn, nil
				}
			} else {
				p.logger.Warn().Err(err).Msg("failed to grow pool")
			}
		}

		if time.Now().After(deadline) {
			return nil, domainerror.ErrPoolTimeout
		}

		select {
		case <-ctx.Done():
			return nil, domainerror.Wrap(domainerror.ErrPoolTimeout, ctx.Err())
		case <-time.After(p.cfg.PollInterval):
		}
	}
}

// Release returns a connection to the pool.
func (p *Pool) Release(conn *Conn) {
	if conn == nil || p.cluster != nil {
		return
	}
	p.mu.Lock()
	conn.borrowed = false
	conn.lastUsed = time.Now()
	p.updateGaugesLocked()
	p.mu.Unlock()
}

// Shutdown drains and closes all connections, rejecting further acquires.
// Borrowed connections get until ctx is done to be released.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	close(p.stopSweep)
	if p.cluster == nil {
		<-p.sweepDone
	}

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()
	for {
		p.mu.Lock()
		borrowed := 0
		for _, conn := range p.conns {
			if conn.borrowed {
				borrowed++
			}
		}
		if borrowed == 0 {
			p.closeAllLocked()
			p.mu.Unlock()
			return nil
		}
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			p.mu.Lock()
			p.closeAllLocked()
			p.mu.Unlock()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// PoolStats is a snapshot of pool occupancy.
type PoolStats struct {
	Total    int
	Borrowed int
	Idle     int
}

// Stats returns a snapshot of pool occupancy.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cluster != nil {
		return PoolStats{Total: 1}
	}
	st := PoolStats{Total: len(p.conns)}
	for _, conn := range p.conns {
		if conn.borrowed {
			st.Borrowed++
		}
	}
	st.Idle = st.Total - st.Borrowed
	return st
}

// connect dials with capped exponential backoff and pings before handing
// the connection out.
func (p *Pool) connect(ctx context.Context) (*Conn, error) {
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.mu.Unlock()

	p.emit(EventConnect, id, nil)

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 200 * time.Millisecond
	expo.MaxInterval = 5 * time.Second

	client, err := backoff.Retry(ctx, func() (Client, error) {
		dialCtx, cancel := context.WithTimeout(ctx, p.cfg.DialTimeout)
		defer cancel()

		c, err := p.dial(dialCtx)
		if err != nil {
			return nil, err
		}
		if err := c.Ping(dialCtx).Err(); err != nil {
			_ = c.Close()
			return nil, err
		}
		return c, nil
	}, backoff.WithBackOff(expo), backoff.WithMaxElapsedTime(p.cfg.MaxDialElapsed))
	if err != nil {
		p.emit(EventError, id, err)
		return nil, domainerror.Wrap(domainerror.ErrCacheUnavailable, err)
	}

	p.emit(EventReady, id, nil)
	return &Conn{id: id, client: client, lastUsed: time.Now()}, nil
}

func (p *Pool) closeConn(conn *Conn) {
	if err := conn.client.Close(); err != nil {
		p.emit(EventError, conn.id, err)
		return
	}
	p.emit(EventClose, conn.id, nil)
}

func (p *Pool) closeAllLocked() {
	for _, conn := range p.conns {
		p.closeConn(conn)
	}
	p.conns = nil
	if p.cluster != nil {
		p.closeConn(p.cluster)
		p.cluster = nil
	}
	p.updateGaugesLocked()
}

// sweepLoop closes connections idle past IdleTimeout, never dropping the
// pool below MinConns.
func (p *Pool) sweepLoop() {
	defer close(p.sweepDone)

	ticker := time.NewTicker(p.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopSweep:
			return
		case <-ticker.C:
			p.sweepIdle()
		}
	}
}

func (p *Pool) sweepIdle() {
	cutoff := time.Now().Add(-p.cfg.IdleTimeout)

	p.mu.Lock()
	var kept []*Conn
	var evicted []*Conn
	for _, conn := range p.conns {
		if !conn.borrowed && conn.lastUsed.Before(cutoff) && len(p.conns)-len(evicted) > p.cfg.MinConns {
			evicted = append(evicted, conn)
			continue
		}
		kept = append(kept, conn)
	}
	p.conns = kept
	p.updateGaugesLocked()
	p.mu.Unlock()

	for _, conn := range evicted {
		p.closeConn(conn)
	}
	if len(evicted) > 0 {
		p.logger.Debug().Int("evicted", len(evicted)).Msg("swept idle connections")
	}
}

func (p *Pool) emit(event LifecycleEvent, connID int, err error) {
	if p.hook != nil {
		p.hook(event, connID, err)
	}
	switch event {
	case EventError:
		p.logger.Warn().Err(err).Int("conn_id", connID).Str("event", string(event)).Msg("connection lifecycle")
	default:
		p.logger.Debug().Int("conn_id", connID).Str("event", string(event)).Msg("connection lifecycle")
	}
}

func (p *Pool) updateGaugesLocked() {
	borrowed := 0
	for _, conn := range p.conns {
		if conn.borrowed {
			borrowed++
		}
	}
	poolConnections.WithLabelValues("borrowed").Set(float64(borrowed))
	poolConnections.WithLabelValues("idle").Set(float64(len(p.conns) - borrowed))
}

// NewClientDialer returns a DialFunc for a standalone redis server.
func NewClientDialer(opts *redis.Options) DialFunc {
	return func(ctx context.Context) (Client, error) {
		return redis.NewClient(opts), nil
	}
}
