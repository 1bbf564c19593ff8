package cache

import (
	"context"
	"time"
)

// Store is the typed cache-aside interface backed by the distributed cache
// tier. Implementations must degrade rather than fail: when the backing
// store is unavailable every read reports a miss, every write reports
// false, and no error reaches the caller. The cache is an accelerator,
// never the arbiter of correctness.
type Store interface {
	// Get unmarshals the cached value for key into dest.
	// Returns false on miss, on validation rejection, and when degraded.
	Get(ctx context.Context, key string, dest any) bool

	// Set stores value under key with the given TTL (0 means the
	// implementation default). Returns false when rejected or degraded.
	Set(ctx context.Context, key string, value any, ttl time.Duration) bool

	// Delete removes the given keys and returns how many were removed.
	Delete(ctx context.Context, keys ...string) int

	// FlushPattern removes all keys matching the glob pattern using
	// cursor-based scanning and returns how many were removed.
	FlushPattern(ctx context.Context, pattern string) int

	// GetOrSet implements the cache-aside read path: on miss it invokes
	// fallback, stores the result under key, and unmarshals it into dest.
	// Fallback errors propagate to the caller unchanged.
	GetOrSet(ctx context.Context, key string, ttl time.Duration, fallback func(ctx context.Context) (any, error), dest any) error

	// Available reports whether the backing store is currently reachable.
	// Cheap; safe to call per request.
	Available(ctx context.Context) bool
}

// Stats holds hit/miss/error counters for health reporting.
type Stats struct {
	Hits   int64
	Misses int64
	Errors int64
}

// HitRate returns hits / (hits + misses), or 0 when no reads happened.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
