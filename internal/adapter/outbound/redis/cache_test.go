package redis_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	redisadapter "github.com/platemate/platemate-server/internal/adapter/outbound/redis"
)

type testValue struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newCacheFixture(t *testing.T) (*redisadapter.Service, *fakeClient) {
	t.Helper()
	ctx := context.Background()
	client := newFakeClient()
	dial, _ := dialCounter(client)

	pool, err := redisadapter.NewPool(ctx, testPoolConfig(), dial, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}
	t.Cleanup(func() { shutdownPool(t, pool) })

	return redisadapter.NewService(ctx, pool, time.Minute, zerolog.Nop()), client
}

func TestCacheSetGet(t *testing.T) {
	ctx := context.Background()
	svc, _ := newCacheFixture(t)

	if !svc.Set(ctx, "session:abc", testValue{Name: "x", Count: 3}, time.Minute) {
		t.Fatal("Set() = false, want true")
	}

	var got testValue
	if !svc.Get(ctx, "session:abc", &got) {
		t.Fatal("Get() = false, want hit")
	}
	if got.Name != "x" || got.Count != 3 {
		t.Errorf("got = %+v", got)
	}

	stats := svc.Stats()
	if stats.Hits != 1 || stats.Misses != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestCacheMiss(t *testing.T) {
	ctx := context.Background()
	svc, _ := newCacheFixture(t)

	var got testValue
	if svc.Get(ctx, "session:absent", &got) {
		t.Fatal("Get() on absent key = true, want miss")
	}
	if stats := svc.Stats(); stats.Misses != 1 {
		t.Errorf("misses = %d, want 1", stats.Misses)
	}
}

func TestCacheKeyValidation(t *testing.T) {
	ctx := context.Background()
	svc, client := newCacheFixture(t)

	invalid := []string{
		"",
		"has space",
		"has\nnewline",
		"curly{brace}",
		string(make([]byte, 600)),
	}
	for _, key := range invalid {
		if svc.Set(ctx, key, testValue{}, 0) {
			t.Errorf("Set(%q) = true, want rejection", key)
		}
		var got testValue
		if svc.Get(ctx, key, &got) {
			t.Errorf("Get(%q) = true, want rejection", key)
		}
	}
	if len(client.data) != 0 {
		t.Error("rejected keys must never reach the backing store")
	}

	// The documented key charset passes.
	if !svc.Set(ctx, "user:42:sessions_v1.0-x", testValue{}, 0) {
		t.Error("valid key rejected")
	}
}

func TestCacheCorruptEntryDropped(t *testing.T) {
	ctx := context.Background()
	svc, client := newCacheFixture(t)
	client.data["session:bad"] = "{not json"

	var got testValue
	if svc.Get(ctx, "session:bad", &got) {
		t.Fatal("Get() on corrupt entry = true, want miss")
	}
	if _, ok := client.data["session:bad"]; ok {
		t.Error("corrupt entry should be deleted on read")
	}
}

func TestCacheDelete(t *testing.T) {
	ctx := context.Background()
	svc, _ := newCacheFixture(t)

	svc.Set(ctx, "a:1", testValue{}, 0)
	svc.Set(ctx, "a:2", testValue{}, 0)

	if n := svc.Delete(ctx, "a:1", "a:2", "a:3"); n != 2 {
		t.Errorf("Delete() = %d, want 2", n)
	}
	var got testValue
	if svc.Get(ctx, "a:1", &got) {
		t.Error("deleted key should miss")
	}

	// Filtering invalid keys must not touch the caller's slice.
	keys := []string{"bad key", "a:2", "a:3"}
	svc.Delete(ctx, keys...)
	if keys[0] != "bad key" || keys[1] != "a:2" || keys[2] != "a:3" {
		t.Errorf("caller's keys mutated: %v", keys)
	}
}

func TestCacheFlushPattern(t *testing.T) {
	ctx := context.Background()
	svc, _ := newCacheFixture(t)

	svc.Set(ctx, "session:1", testValue{}, 0)
	svc.Set(ctx, "session:2", testValue{}, 0)
	svc.Set(ctx, "user:1", testValue{}, 0)

	if n := svc.FlushPattern(ctx, "session:*"); n != 2 {
		t.Errorf("FlushPattern() = %d, want 2", n)
	}
	var got testValue
	if !svc.Get(ctx, "user:1", &got) {
		t.Error("non-matching key should survive the flush")
	}
}

func TestCacheGetOrSet(t *testing.T) {
	ctx := context.Background()
	svc, _ := newCacheFixture(t)

	calls := 0
	fallback := func(context.Context) (any, error) {
		calls++
		return testValue{Name: "loaded", Count: 1}, nil
	}

	var got testValue
	if err := svc.GetOrSet(ctx, "item:1", time.Minute, fallback, &got); err != nil {
		t.Fatalf("GetOrSet() error = %v", err)
	}
	if got.Name != "loaded" {
		t.Errorf("got = %+v", got)
	}

	// Second read is served from cache.
	got = testValue{}
	if err := svc.GetOrSet(ctx, "item:1", time.Minute, fallback, &got); err != nil {
		t.Fatalf("GetOrSet() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("fallback calls = %d, want 1", calls)
	}
	if got.Name != "loaded" {
		t.Errorf("got = %+v", got)
	}
}

func TestCacheGetOrSetFallbackError(t *testing.T) {
	ctx := context.Background()
	svc, _ := newCacheFixture(t)

	wantErr := errors.New("store down")
	var got testValue
	err := svc.GetOrSet(ctx, "item:1", time.Minute, func(context.Context) (any, error) {
		return nil, wantErr
	}, &got)
	if !errors.Is(err, wantErr) {
		t.Fatalf("error = %v, want the fallback error", err)
	}
}

func TestCacheDegradesOnFailure(t *testing.T) {
	ctx := context.Background()
	svc, client := newCacheFixture(t)

	if !svc.Available(ctx) {
		t.Fatal("cache should start available")
	}

	// An operation failure marks the store down; subsequent calls degrade
	// to miss/false without erroring.
	client.opErr = errors.New("connection reset")
	var got testValue
	if svc.Get(ctx, "session:x", &got) {
		t.Error("failing Get must report a miss")
	}
	if svc.Available(ctx) {
		t.Error("store should be marked unavailable after a failure")
	}
	if svc.Set(ctx, "session:x", testValue{}, 0) {
		t.Error("Set while degraded must report false")
	}
	if stats := svc.Stats(); stats.Errors == 0 {
		t.Error("failure should be counted")
	}
}

func TestCacheStartsDegradedWhenUnreachable(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	client.pingErr = errors.New("connection refused")
	dial, _ := dialCounter(client)

	cfg := testPoolConfig()
	cfg.MinConns = 0
	pool, err := redisadapter.NewPool(ctx, cfg, dial, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}
	t.Cleanup(func() { shutdownPool(t, pool) })

	svc := redisadapter.NewService(ctx, pool, time.Minute, zerolog.Nop())
	if svc.Available(ctx) {
		t.Error("cache should start degraded when the tier is unreachable")
	}

	var got testValue
	if svc.Get(ctx, "session:x", &got) {
		t.Error("Get while degraded must miss")
	}
}

func TestRateCounterIncr(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	dial, _ := dialCounter(client)

	pool, err := redisadapter.NewPool(ctx, testPoolConfig(), dial, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}
	t.Cleanup(func() { shutdownPool(t, pool) })

	counter := redisadapter.NewRateCounter(pool)

	count, ttl, err := counter.Incr(ctx, "rate:u1", time.Minute)
	if err != nil {
		t.Fatalf("Incr() error = %v", err)
	}
	if count != 1 || ttl != time.Minute {
		t.Errorf("count=%d ttl=%v, want 1 and the full window", count, ttl)
	}
	if client.ttls["rate:u1"] != time.Minute {
		t.Error("first increment should set the window expiry")
	}

	count, ttl, err = counter.Incr(ctx, "rate:u1", time.Minute)
	if err != nil {
		t.Fatalf("Incr() error = %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
	if ttl <= 0 {
		t.Errorf("ttl = %v, want remaining window", ttl)
	}

	// A counter that lost its expiry gets repaired.
	delete(client.ttls, "rate:u1")
	if _, ttl, err = counter.Incr(ctx, "rate:u1", time.Minute); err != nil {
		t.Fatalf("Incr() error = %v", err)
	}
	if ttl != time.Minute || client.ttls["rate:u1"] != time.Minute {
		t.Error("missing expiry should be repaired")
	}

	client.opErr = errors.New("moved")
	if _, _, err := counter.Incr(ctx, "rate:u1", time.Minute); err == nil {
		t.Error("backend failure must surface so the limiter can fall back")
	}
}
