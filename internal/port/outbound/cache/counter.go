package cache

import (
	"context"
	"time"
)

// RateCounter is a fixed-window counter. Incr bumps the counter for key,
// starting a window of the given length on first increment, and returns the
// count within the current window plus the time remaining until it resets.
// Unlike Store, failures surface as errors: the rate limiter uses them to
// select its fallback layer.
type RateCounter interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
}
