package redis

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/platemate/platemate-server/internal/port/outbound/cache"
)

const (
	maxKeyLength    = 512
	maxValueBytes   = 1 << 20 // 1MiB
	defaultCacheTTL = time.Hour
	recheckInterval = 5 * time.Second
	scanBatchSize   = 100
)

// Service implements cache.Store over the connection pool. Every operation
// degrades to miss/false instead of returning an error when the backing
// store is unavailable; availability is checked with a ping at construction
// and re-validated opportunistically after failures.
type Service struct {
	pool   *Pool
	logger zerolog.Logger
	ttl    time.Duration

	available atomic.Bool
	lastPing  atomic.Int64 // unix nanos of the last availability probe

	hits   atomic.Int64
	misses atomic.Int64
	errors atomic.Int64
}

// NewService creates a cache Service and probes the backing store once.
func NewService(ctx context.Context, pool *Pool, ttl time.Duration, logger zerolog.Logger) *Service {
	if ttl == 0 {
		ttl = defaultCacheTTL
	}
	s := &Service{
		pool:   pool,
		logger: logger.With().Str("component", "cache").Logger(),
		ttl:    ttl,
	}
	s.probe(ctx)
	return s
}

// Get unmarshals the cached value for key into dest. Returns false on
// miss, validation rejection, and any cache-tier failure.
func (s *Service) Get(ctx context.Context, key string, dest any) bool {
	if !validKey(key) {
		cacheOps.WithLabelValues("rejected").Inc()
		return false
	}
	if !s.Available(ctx) {
		s.misses.Add(1)
		cacheOps.WithLabelValues("miss").Inc()
		return false
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		s.fail(err)
		return false
	}
	defer s.pool.Release(conn)

	data, err := conn.Client().Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			s.misses.Add(1)
			cacheOps.WithLabelValues("miss").Inc()
			return false
		}
		s.fail(err)
		return false
	}

	if err := json.Unmarshal(data, dest); err != nil {
		// Corrupt entry: treat as miss and drop it so the next read-through
		// repopulates from the authoritative store.
		s.logger.Warn().Err(err).Str("key", key).Msg("dropping undecodable cache entry")
		_ = conn.Client().Del(ctx, key).Err()
		s.misses.Add(1)
		cacheOps.WithLabelValues("miss").Inc()
		return false
	}

	s.hits.Add(1)
	cacheOps.WithLabelValues("hit").Inc()
	return true
}

// Set stores value under key. Returns false when the key or value is
// rejected or the store is unavailable.
func (s *Service) Set(ctx context.Context, key string, value any, ttl time.Duration) bool {
	if !validKey(key) {
		cacheOps.WithLabelValues("rejected").Inc()
		return false
	}
	if !s.Available(ctx) {
		return false
	}

	data, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to marshal cache value")
		cacheOps.WithLabelValues("rejected").Inc()
		return false
	}
	if len(data) > maxValueBytes {
		cacheOps.WithLabelValues("rejected").Inc()
		return false
	}
	if ttl == 0 {
		ttl = s.ttl
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		s.fail(err)
		return false
	}
	defer s.pool.Release(conn)

	if err := conn.Client().Set(ctx, key, data, ttl).Err(); err != nil {
		s.fail(err)
		return false
	}
	return true
}

// Delete removes keys and returns how many were removed.
func (s *Service) Delete(ctx context.Context, keys ...string) int {
	valid := make([]string, 0, len(keys))
	for _, k := range keys {
		if validKey(k) {
			valid = append(valid, k)
		}
	}
	if len(valid) == 0 || !s.Available(ctx) {
		return 0
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		s.fail(err)
		return 0
	}
	defer s.pool.Release(conn)

	n, err := conn.Client().Del(ctx, valid...).Result()
	if err != nil {
		s.fail(err)
		return 0
	}
	return int(n)
}

// FlushPattern removes all keys matching the glob pattern. It walks the
// keyspace with cursor-based SCAN, never a blocking full-keyspace command.
func (s *Service) FlushPattern(ctx context.Context, pattern string) int {
	if pattern == "" || !s.Available(ctx) {
		return 0
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		s.fail(err)
		return 0
	}
	defer s.pool.Release(conn)

	removed := 0
	var cursor uint64
	for {
		keys, next, err := conn.Client().Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			s.fail(err)
			return removed
		}
		if len(keys) > 0 {
			n, err := conn.Client().Del(ctx, keys...).Result()
			if err != nil {
				s.fail(err)
				return removed
			}
			removed += int(n)
		}
		cursor = next
		if cursor == 0 {
			return removed
		}
	}
}

// GetOrSet implements cache-aside: on miss it invokes fallback, stores the
// result, and unmarshals it into dest. Fallback errors propagate uncaught.
func (s *Service) GetOrSet(ctx context.Context, key string, ttl time.Duration, fallback func(ctx context.Context) (any, error), dest any) error {
	if s.Get(ctx, key, dest) {
		return nil
	}

	value, err := fallback(ctx)
	if err != nil {
		return err
	}

	s.Set(ctx, key, value, ttl)

	// Round-trip through JSON so dest observes the same shape a later
	// cache hit would produce.
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// Available reports whether the backing store is reachable. While marked
// down it re-probes at most once per recheck interval.
func (s *Service) Available(ctx context.Context) bool {
	if s.available.Load() {
		return true
	}
	last := time.Unix(0, s.lastPing.Load())
	if time.Since(last) < recheckInterval {
		return false
	}
	return s.probe(ctx)
}

// Stats returns hit/miss/error counters.
func (s *Service) Stats() cache.Stats {
	return cache.Stats{
		Hits:   s.hits.Load(),
		Misses: s.misses.Load(),
		Errors: s.errors.Load(),
	}
}

func (s *Service) probe(ctx context.Context) bool {
	s.lastPing.Store(time.Now().UnixNano())

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		s.available.Store(false)
		return false
	}
	defer s.pool.Release(conn)

	if err := conn.Client().Ping(ctx).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("cache unavailable")
		s.available.Store(false)
		return false
	}
	if !s.available.Swap(true) {
		s.logger.Info().Msg("cache available")
	}
	return true
}

func (s *Service) fail(err error) {
	s.errors.Add(1)
	cacheOps.WithLabelValues("error").Inc()
	s.logger.Warn().Err(err).Msg("cache operation failed")
	s.available.Store(false)
	s.lastPing.Store(time.Now().UnixNano())
}

// validKey enforces the allow-listed charset and maximum length before any
// network call is made.
func validKey(key string) bool {
	if key == "" || len(key) > maxKeyLength {
		return false
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == ':' || c == '_' || c == '-' || c == '.':
		default:
			return false
		}
	}
	return true
}
