// Package coalesce collapses bursts of writes into a single write of the
// latest value after a quiet window.
package coalesce

import (
	"context"
	"sync"
	"time"

	"github.com/loykin/apidesk/internal/common"
	"github.com/loykin/apidesk/internal/constants"
)

// PersistFunc durably writes one value.
type PersistFunc[T any] func(ctx context.Context, v T) error

// MergeFunc folds a newly scheduled value into the pending one.
type MergeFunc[T any] func(pending, next T) T

// Option configures a Coalescer.
type Option[T any] func(*Coalescer[T])

// WithWait sets the quiet window. Non-positive values keep the default.
func WithWait[T any](d time.Duration) Option[T] {
	return func(c *Coalescer[T]) {
		if d > 0 {
			c.wait = d
		}
	}
}

// WithLogger sets the logger used for background write failures.
func WithLogger[T any](l *common.Logger) Option[T] {
	return func(c *Coalescer[T]) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithContext sets the context passed to timer-driven writes.
func WithContext[T any](ctx context.Context) Option[T] {
	return func(c *Coalescer[T]) {
		if ctx != nil {
			c.ctx = ctx
		}
	}
}

// WithMerge replaces the default latest-wins policy for the pending value.
func WithMerge[T any](fn MergeFunc[T]) Option[T] {
	return func(c *Coalescer[T]) { c.merge = fn }
}

// Coalescer debounces writes of T. At most one persist call runs at a time and
// a timer-driven write always takes the newest pending value.
type Coalescer[T any] struct {
	persist PersistFunc[T]
	wait    time.Duration
	merge   MergeFunc[T]
	logger  *common.Logger
	ctx     context.Context

	// sem holds a token while a persist call is in flight.
	sem chan struct{}

	mu         sync.Mutex
	pending    T
	hasPending bool
	timer      *time.Timer
	gen        uint64
}

// New returns a Coalescer writing through fn.
func New[T any](fn PersistFunc[T], opts ...Option[T]) *Coalescer[T] {
	c := &Coalescer[T]{
		persist: fn,
		wait:    constants.DefaultCoalesceWait,
		logger:  common.GetLogger().WithComponent("coalesce"),
		ctx:     context.Background(),
		sem:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Schedule records v as the pending value and restarts the quiet window.
func (c *Coalescer[T]) Schedule(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hasPending && c.merge != nil {
		c.pending = c.merge(c.pending, v)
	} else {
		c.pending = v
	}
	c.hasPending = true
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
	}
	gen := c.gen
	c.timer = time.AfterFunc(c.wait, func() { c.fire(gen) })
}

func (c *Coalescer[T]) fire(gen uint64) {
	c.mu.Lock()
	stale := gen != c.gen || !c.hasPending
	c.mu.Unlock()
	if stale {
		return
	}

	c.sem <- struct{}{}
	defer func() { <-c.sem }()

	v, ok := c.take(gen)
	if !ok {
		return
	}
	if err := c.persist(c.ctx, v); err != nil {
		c.logger.Warn("coalesced write failed", "error", err)
	}
}

// take claims the pending value. gen of zero claims regardless of generation.
func (c *Coalescer[T]) take(gen uint64) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	if !c.hasPending || (gen != 0 && gen != c.gen) {
		return zero, false
	}
	v := c.pending
	c.pending = zero
	c.hasPending = false
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	return v, true
}

// Flush writes the pending value immediately, after waiting for any in-flight
// write. It returns the error of the write it performed, or ctx's error if ctx
// ends while waiting. With nothing pending it returns nil once no write is in flight.
func (c *Coalescer[T]) Flush(ctx context.Context) error {
	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-c.sem }()

	v, ok := c.take(0)
	if !ok {
		return nil
	}
	return c.persist(ctx, v)
}

// Cancel drops the pending value and timer. An in-flight write is not affected.
func (c *Coalescer[T]) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	c.pending = zero
	c.hasPending = false
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// Pending reports whether a value is waiting to be written.
func (c *Coalescer[T]) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasPending
}
