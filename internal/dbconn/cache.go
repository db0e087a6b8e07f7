// Package dbconn keeps one lazily-dialed database handle per process.
package dbconn

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// State describes where the cache is in its connection lifecycle.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateConnecting    State = "connecting"
	StateReady         State = "ready"
)

const defaultDialTimeout = 10 * time.Second

// DialFunc opens (and should verify) a new handle.
type DialFunc[T any] func(ctx context.Context) (T, error)

// CloseFunc releases a handle returned by DialFunc.
type CloseFunc[T any] func(ctx context.Context, handle T) error

// Cache memoizes a single handle. Concurrent first callers share one dial;
// a failed dial leaves the cache uninitialized so the next Acquire retries.
type Cache[T any] struct {
	name        string
	dial        DialFunc[T]
	close       CloseFunc[T]
	dialTimeout time.Duration
	logger      *slog.Logger

	group singleflight.Group

	mu         sync.RWMutex
	handle     T
	ready      bool
	connecting bool
}

// Option customizes a Cache.
type Option func(*options)

type options struct {
	dialTimeout time.Duration
	logger      *slog.Logger
}

// WithDialTimeout bounds each dial attempt.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) { o.dialTimeout = d }
}

// WithLogger attaches a logger for connect/disconnect events.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New returns an uninitialized cache.
func New[T any](name string, dial DialFunc[T], closeFn CloseFunc[T], opts ...Option) *Cache[T] {
	o := options{dialTimeout: defaultDialTimeout, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache[T]{
		name:        name,
		dial:        dial,
		close:       closeFn,
		dialTimeout: o.dialTimeout,
		logger:      o.logger.With(slog.String("store", name)),
	}
}

// Acquire returns the cached handle, dialing it on first use.
// The dial runs detached from ctx so one caller's cancellation does not fail the others;
// ctx only bounds how long this caller waits.
func (c *Cache[T]) Acquire(ctx context.Context) (T, error) {
	if handle, ok := c.cached(); ok {
		return handle, nil
	}

	ch := c.group.DoChan(c.name, func() (any, error) {
		if handle, ok := c.cached(); ok {
			return handle, nil
		}

		c.setConnecting(true)
		defer c.setConnecting(false)

		dialCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.dialTimeout)
		defer cancel()

		handle, err := c.dial(dialCtx)
		if err != nil {
			c.logger.Error("store connection failed", slog.Any("error", err))
			return nil, fmt.Errorf("connect %s: %w", c.name, err)
		}

		c.mu.Lock()
		c.handle = handle
		c.ready = true
		c.mu.Unlock()

		c.logger.Info("store connected")
		return handle, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

// Ping dials a throwaway handle and releases it again, leaving the shared handle untouched.
func (c *Cache[T]) Ping(ctx context.Context) error {
	handle, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("ping %s: %w", c.name, err)
	}
	if c.close == nil {
		return nil
	}
	if err := c.close(context.WithoutCancel(ctx), handle); err != nil {
		return fmt.Errorf("ping %s: disconnect: %w", c.name, err)
	}
	return nil
}

// State reports the current lifecycle state.
func (c *Cache[T]) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch {
	case c.ready:
		return StateReady
	case c.connecting:
		return StateConnecting
	default:
		return StateUninitialized
	}
}

// Close disconnects a ready handle and resets the cache.
func (c *Cache[T]) Close(ctx context.Context) error {
	c.mu.Lock()
	handle, ready := c.handle, c.ready
	var zero T
	c.handle = zero
	c.ready = false
	c.mu.Unlock()

	if !ready || c.close == nil {
		return nil
	}
	c.logger.Info("store disconnecting")
	return c.close(ctx, handle)
}

func (c *Cache[T]) cached() (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.handle, c.ready
}

func (c *Cache[T]) setConnecting(v bool) {
	c.mu.Lock()
	c.connecting = v
	c.mu.Unlock()
}

// SetupFunc prepares a freshly dialed handle before it is shared, e.g. creating indexes.
type SetupFunc[T any] func(ctx context.Context, handle T) error

// WithSetup runs setup on every handle dial produces. A setup failure releases the
// handle and fails the dial, so the cache stays uninitialized and the next Acquire
// dials and sets up again.
func WithSetup[T any](dial DialFunc[T], closeFn CloseFunc[T], setup SetupFunc[T]) DialFunc[T] {
	return func(ctx context.Context) (T, error) {
		handle, err := dial(ctx)
		if err != nil {
			return handle, err
		}
		if err := setup(ctx, handle); err != nil {
			if closeFn != nil {
				_ = closeFn(context.WithoutCancel(ctx), handle)
			}
			var zero T
			return zero, fmt.Errorf("setup: %w", err)
		}
		return handle, nil
	}
}
