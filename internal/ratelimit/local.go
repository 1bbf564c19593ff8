package ratelimit

import (
	"context"
	"sync"
	"time"
)

const defaultSweepInterval = 30 * time.Second

// LocalCounter is the in-process fixed-window counter used when the
// distributed cache is unavailable. A background sweep removes expired
// windows so abandoned keys do not accumulate.
type LocalCounter struct {
	mu      sync.Mutex
	windows map[string]*window

	sweepInterval time.Duration
	stop          chan struct{}
	done          chan struct{}
	started       bool
}

type window struct {
	count   int64
	resetAt time.Time
}

// NewLocalCounter creates a LocalCounter. Call Start to run the sweeper.
func NewLocalCounter(sweepInterval time.Duration) *LocalCounter {
	if sweepInterval == 0 {
		sweepInterval = defaultSweepInterval
	}
	return &LocalCounter{
		windows:       make(map[string]*window),
		sweepInterval: sweepInterval,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Incr implements cache.RateCounter in process memory. It never fails.
func (c *LocalCounter) Incr(_ context.Context, key string, windowLen time.Duration) (int64, time.Duration, error) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.windows[key]
	if !ok || now.After(w.resetAt) {
		w = &window{resetAt: now.Add(windowLen)}
		c.windows[key] = w
	}
	w.count++
	return w.count, w.resetAt.Sub(now), nil
}

// Start launches the periodic sweep of expired windows.
func (c *LocalCounter) Start() {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-c.stop:
				return
			case <-ticker.C:
				c.sweep()
			}
		}
	}()
}

// Stop halts the sweeper. Safe to call once after Start.
func (c *LocalCounter) Stop() {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if !started {
		return
	}
	close(c.stop)
	<-c.done
}

func (c *LocalCounter) sweep() {
	now := time.Now()
	c.mu.Lock()
	for key, w := range c.windows {
		if now.After(w.resetAt) {
			delete(c.windows, key)
		}
	}
	c.mu.Unlock()
}

// Len reports the number of live windows. Used by tests and health checks.
func (c *LocalCounter) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.windows)
}
