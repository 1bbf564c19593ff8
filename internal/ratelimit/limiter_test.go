package ratelimit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/platemate/platemate-server/internal/ratelimit"
)

// fakeCounter is an injectable cache.RateCounter for exercising the
// distributed layer without a cache tier.
type fakeCounter struct {
	count int64
	ttl   time.Duration
	err   error
	calls int
}

func (f *fakeCounter) Incr(_ context.Context, _ string, window time.Duration) (int64, time.Duration, error) {
	f.calls++
	if f.err != nil {
		return 0, 0, f.err
	}
	f.count++
	ttl := f.ttl
	if ttl == 0 {
		ttl = window
	}
	return f.count, ttl, nil
}

func TestLocalCounterFixedWindow(t *testing.T) {
	ctx := context.Background()
	counter := ratelimit.NewLocalCounter(time.Hour)

	t.Run("counts within a window", func(t *testing.T) {
		for want := int64(1); want <= 3; want++ {
			count, ttl, err := counter.Incr(ctx, "k1", time.Minute)
			if err != nil {
				t.Fatalf("Incr() error = %v", err)
			}
			if count != want {
				t.Errorf("count = %d, want %d", count, want)
			}
			if ttl <= 0 || ttl > time.Minute {
				t.Errorf("ttl = %v, want within (0, 1m]", ttl)
			}
		}
	})

	t.Run("expired window resets to one", func(t *testing.T) {
		if _, _, err := counter.Incr(ctx, "k2", time.Nanosecond); err != nil {
			t.Fatalf("Incr() error = %v", err)
		}
		time.Sleep(5 * time.Millisecond)

		count, _, err := counter.Incr(ctx, "k2", time.Minute)
		if err != nil {
			t.Fatalf("Incr() error = %v", err)
		}
		if count != 1 {
			t.Errorf("count = %d, want 1 after window expiry", count)
		}
	})

	t.Run("keys are independent", func(t *testing.T) {
		count, _, err := counter.Incr(ctx, "k3", time.Minute)
		if err != nil {
			t.Fatalf("Incr() error = %v", err)
		}
		if count != 1 {
			t.Errorf("count = %d, want 1", count)
		}
	})
}

func TestLocalCounterSweep(t *testing.T) {
	ctx := context.Background()
	counter := ratelimit.NewLocalCounter(10 * time.Millisecond)
	counter.Start()
	defer counter.Stop()

	if _, _, err := counter.Incr(ctx, "gone", time.Nanosecond); err != nil {
		t.Fatalf("Incr() error = %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for counter.Len() > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expired window not swept, Len = %d", counter.Len())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestLimiterWindowSemantics(t *testing.T) {
	ctx := context.Background()
	limiter := ratelimit.NewLimiter(&fakeCounter{err: errors.New("unused")}, ratelimit.NewLocalCounter(time.Hour),
		func(context.Context) bool { return false }, zerolog.Nop())

	const limit = 3
	window := 50 * time.Millisecond

	// limit calls pass, with decreasing remaining.
	for i := int64(1); i <= limit; i++ {
		res := limiter.Check(ctx, "user-1", limit, window)
		if !res.Allowed {
			t.Fatalf("call %d should be allowed", i)
		}
		if res.Remaining != limit-i {
			t.Errorf("call %d remaining = %d, want %d", i, res.Remaining, limit-i)
		}
	}

	// The (limit+1)th call inside the window is rejected.
	res := limiter.Check(ctx, "user-1", limit, window)
	if res.Allowed {
		t.Fatal("call over the limit should be rejected")
	}
	if res.Remaining != 0 {
		t.Errorf("remaining = %d, want 0", res.Remaining)
	}

	// A fresh window accepts again with remaining = limit-1.
	time.Sleep(window + 10*time.Millisecond)
	res = limiter.Check(ctx, "user-1", limit, window)
	if !res.Allowed {
		t.Fatal("call in a fresh window should be allowed")
	}
	if res.Remaining != limit-1 {
		t.Errorf("remaining = %d, want %d", res.Remaining, limit-1)
	}
}

func TestLimiterLayerSelection(t *testing.T) {
	ctx := context.Background()

	t.Run("healthy uses the distributed layer", func(t *testing.T) {
		primary := &fakeCounter{}
		limiter := ratelimit.NewLimiter(primary, ratelimit.NewLocalCounter(time.Hour),
			func(context.Context) bool { return true }, zerolog.Nop())

		res := limiter.Check(ctx, "k", 10, time.Minute)
		if !res.Allowed || primary.calls != 1 {
			t.Errorf("allowed=%v primary calls=%d, want distributed check", res.Allowed, primary.calls)
		}
	})

	t.Run("unhealthy skips the distributed layer", func(t *testing.T) {
		primary := &fakeCounter{}
		limiter := ratelimit.NewLimiter(primary, ratelimit.NewLocalCounter(time.Hour),
			func(context.Context) bool { return false }, zerolog.Nop())

		res := limiter.Check(ctx, "k", 10, time.Minute)
		if !res.Allowed {
			t.Error("fallback check should be allowed")
		}
		if primary.calls != 0 {
			t.Errorf("primary calls = %d, want 0", primary.calls)
		}
	})

	t.Run("mid-call failure falls back", func(t *testing.T) {
		primary := &fakeCounter{err: errors.New("conn reset")}
		local := ratelimit.NewLocalCounter(time.Hour)
		limiter := ratelimit.NewLimiter(primary, local,
			func(context.Context) bool { return true }, zerolog.Nop())

		res := limiter.Check(ctx, "k", 10, time.Minute)
		if !res.Allowed {
			t.Error("fallback check should be allowed")
		}
		if primary.calls != 1 {
			t.Errorf("primary calls = %d, want 1", primary.calls)
		}
		if local.Len() != 1 {
			t.Errorf("local windows = %d, want 1", local.Len())
		}
	})

	t.Run("each check hits exactly one layer", func(t *testing.T) {
		primary := &fakeCounter{}
		local := ratelimit.NewLocalCounter(time.Hour)
		limiter := ratelimit.NewLimiter(primary, local,
			func(context.Context) bool { return true }, zerolog.Nop())

		limiter.Check(ctx, "k", 10, time.Minute)
		if primary.calls != 1 || local.Len() != 0 {
			t.Errorf("primary=%d localWindows=%d, want the distributed layer only", primary.calls, local.Len())
		}
	})
}
