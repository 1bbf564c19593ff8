package mocks

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// CacheStore is a mock implementation of cache.Store backed by a map of
// JSON-encoded values, so typed round-trips behave like the real service.
// Setting Degraded simulates an unreachable cache tier: every read misses
// and every write is rejected, matching the degradation contract.
type CacheStore struct {
	mu sync.RWMutex

	values   map[string][]byte
	Degraded bool

	Calls struct {
		Get          int
		Set          int
		Delete       int
		FlushPattern int
		GetOrSet     int
	}
}

// NewCacheStore creates a new mock CacheStore.
func NewCacheStore() *CacheStore {
	return &CacheStore{values: make(map[string][]byte)}
}

func (m *CacheStore) Get(ctx context.Context, key string, dest any) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.Calls.Get++

	if m.Degraded {
		return false
	}
	raw, ok := m.values[key]
	if !ok {
		return false
	}
	return json.Unmarshal(raw, dest) == nil
}

func (m *CacheStore) Set(ctx context.Context, key string, value any, ttl time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls.Set++

	if m.Degraded {
		return false
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return false
	}
	m.values[key] = raw
	return true
}

func (m *CacheStore) Delete(ctx context.Context, keys ...string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls.Delete++

	if m.Degraded {
		return 0
	}
	removed := 0
	for _, key := range keys {
		if _, ok := m.values[key]; ok {
			delete(m.values, key)
			removed++
		}
	}
	return removed
}

func (m *CacheStore) FlushPattern(ctx context.Context, pattern string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls.FlushPattern++

	if m.Degraded {
		return 0
	}
	// Only the trailing-star form is used by callers.
	prefix := pattern
	if n := len(pattern); n > 0 && pattern[n-1] == '*' {
		prefix = pattern[:n-1]
	}
	removed := 0
	for key := range m.values {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(m.values, key)
			removed++
		}
	}
	return removed
}

func (m *CacheStore) GetOrSet(ctx context.Context, key string, ttl time.Duration, fallback func(ctx context.Context) (any, error), dest any) error {
	m.Calls.GetOrSet++

	if m.Get(ctx, key, dest) {
		return nil
	}
	value, err := fallback(ctx)
	if err != nil {
		return err
	}
	m.Set(ctx, key, value, ttl)

	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

func (m *CacheStore) Available(ctx context.Context) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.Degraded
}

// Has reports whether a key is currently cached, for assertions.
func (m *CacheStore) Has(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.values[key]
	return ok
}

// Len returns the number of cached keys.
func (m *CacheStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}
