package ratelimit

import (
	"context"
	"sync"
	"time"
)

var _ Counter = (*LocalCounter)(nil)

// LocalCounter is an in-process fixed-window counter for single-instance
// deployments and tests. Windows are anchored at the first hit, matching
// the redis backend's behavior.
type LocalCounter struct {
	mu      sync.Mutex
	windows map[string]*localWindow
	now     func() time.Time
}

type localWindow struct {
	count   int64
	resetAt time.Time
}

// NewLocalCounter builds an in-process counter.
func NewLocalCounter() *LocalCounter {
	return &LocalCounter{windows: make(map[string]*localWindow), now: time.Now}
}

// NewLocalCounterWithClock builds a counter with an injected time source.
func NewLocalCounterWithClock(now func() time.Time) *LocalCounter {
	c := NewLocalCounter()
	if now != nil {
		c.now = now
	}
	return c
}

func (c *LocalCounter) Incr(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	w, ok := c.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &localWindow{resetAt: now.Add(window)}
		c.windows[key] = w
	}
	w.count++
	return w.count, w.resetAt.Sub(now), nil
}
