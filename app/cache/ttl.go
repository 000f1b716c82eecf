package cache

import (
	"context"
	"sync"
	"time"
)

type RefreshFunc[T any] func(ctx context.Context, now time.Time) (T, time.Time, error)

type refreshCall[T any] struct {
	done  chan struct{}
	value T
	err   error
}

type TTLValue[T any] struct {
	refresh RefreshFunc[T]
	skew    time.Duration

	mu         sync.Mutex
	value      T
	expiresAt  time.Time
	loaded     bool
	generation uint64
	inflight   *refreshCall[T]
}

func NewTTLValue[T any](refresh RefreshFunc[T], skew time.Duration) *TTLValue[T] {
	if skew < 0 {
		skew = 0
	}
	return &TTLValue[T]{refresh: refresh, skew: skew}
}

func (c *TTLValue[T]) GetOrRefresh(ctx context.Context, now time.Time) (T, error) {
	c.mu.Lock()
	if c.loaded && now.Add(c.skew).Before(c.expiresAt) {
		value := c.value
		c.mu.Unlock()
		return value, nil
	}
	call := c.inflight
	if call == nil {
		call = &refreshCall[T]{done: make(chan struct{})}
		c.inflight = call
		go c.run(context.WithoutCancel(ctx), now, c.generation, call)
	}
	c.mu.Unlock()

	select {
	case <-call.done:
		return call.value, call.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (c *TTLValue[T]) run(ctx context.Context, now time.Time, generation uint64, call *refreshCall[T]) {
	value, expiresAt, err := c.refresh(ctx, now)

	c.mu.Lock()
	if err == nil && generation == c.generation {
		c.value = value
		c.expiresAt = expiresAt
		c.loaded = true
	}
	if c.inflight == call {
		c.inflight = nil
	}
	c.mu.Unlock()

	if err == nil {
		call.value = value
	}
	call.err = err
	close(call.done)
}

// Invalidate drops the value. A refresh already in flight still answers its
// waiters but is not stored.
func (c *TTLValue[T]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	c.value = zero
	c.expiresAt = time.Time{}
	c.loaded = false
	c.generation++
	c.inflight = nil
}
