package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/platemate/platemate-server/internal/port/outbound/cache"
)

// rateCounter implements cache.RateCounter on the distributed cache.
type rateCounter struct {
	pool *Pool
}

// NewRateCounter creates a distributed fixed-window counter.
func NewRateCounter(pool *Pool) cache.RateCounter {
	return &rateCounter{pool: pool}
}

func (c *rateCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return 0, 0, err
	}
	defer c.pool.Release(conn)

	count, err := conn.Client().Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to increment counter: %w", err)
	}

	// First increment in a window owns setting its expiry.
	if count == 1 {
		if err := conn.Client().Expire(ctx, key, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("failed to set counter window: %w", err)
		}
		return count, window, nil
	}

	ttl, err := conn.Client().PTTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		// A counter without expiry would never reset; repair it.
		_ = conn.Client().Expire(ctx, key, window).Err()
		ttl = window
	}
	return count, ttl, nil
}
