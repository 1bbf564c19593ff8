package ratelimit

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/platemate/platemate-server/internal/port/outbound/cache"
)

var checksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "platemate",
	Subsystem: "ratelimit",
	Name:      "checks_total",
	Help:      "Rate limit checks by layer and outcome.",
}, []string{"layer", "outcome"})

// Result is the outcome of a rate limit check. A disallowed request is a
// client-visible rejection, not a server error.
type Result struct {
	Allowed   bool
	Remaining int64
	ResetAt   time.Time
}

// HealthFunc reports whether the distributed layer should be used.
type HealthFunc func(ctx context.Context) bool

// Limiter is the dual-layer fixed-window rate limiter. Each check is
// evaluated by exactly one layer: the distributed counter when the cache is
// healthy, the in-process fallback otherwise (or when the distributed
// increment fails mid-call).
type Limiter struct {
	primary  cache.RateCounter
	fallback cache.RateCounter
	healthy  HealthFunc
	logger   zerolog.Logger
}

// NewLimiter creates a Limiter.
func NewLimiter(primary, fallback cache.RateCounter, healthy HealthFunc, logger zerolog.Logger) *Limiter {
	return &Limiter{
		primary:  primary,
		fallback: fallback,
		healthy:  healthy,
		logger:   logger.With().Str("component", "ratelimit").Logger(),
	}
}

// Check records a request against key and reports whether it is allowed
// under limit requests per window.
func (l *Limiter) Check(ctx context.Context, key string, limit int64, window time.Duration) Result {
	layer := "local"
	counter := l.fallback

	if l.healthy == nil || l.healthy(ctx) {
		count, ttl, err := l.primary.Incr(ctx, key, window)
		if err == nil {
			return l.decide("distributed", count, limit, ttl)
		}
		l.logger.Warn().Err(err).Str("key", key).Msg("distributed counter failed, using local fallback")
	}

	count, ttl, err := counter.Incr(ctx, key, window)
	if err != nil {
		// The local counter cannot fail; guard anyway and fail open, since
		// rejecting traffic on limiter breakage inverts its purpose.
		l.logger.Error().Err(err).Str("key", key).Msg("fallback counter failed")
		return Result{Allowed: true, Remaining: limit, ResetAt: time.Now().Add(window)}
	}
	return l.decide(layer, count, limit, ttl)
}

func (l *Limiter) decide(layer string, count, limit int64, ttl time.Duration) Result {
	allowed := count <= limit
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	outcome := "allowed"
	if !allowed {
		outcome = "rejected"
	}
	checksTotal.WithLabelValues(layer, outcome).Inc()

	return Result{
		Allowed:   allowed,
		Remaining: remaining,
		ResetAt:   time.Now().Add(ttl),
	}
}
