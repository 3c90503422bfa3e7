package cache

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Coordinator wraps a Store with the cache-aside read path. It never calls
// compute more than once per call; concurrent misses on the same key may
// each recompute, which is acceptable because computations are read-only
// and idempotent.
type Coordinator[T any] struct {
	store  Store[T]
	logger *zap.Logger

	hitCounter  prometheus.Counter
	missCounter prometheus.Counter
}

// Option configures a Coordinator.
type Option[T any] func(*Coordinator[T])

// WithMetrics enables Prometheus hit/miss counters using the provided
// registerer. name distinguishes coordinators sharing a registry.
func WithMetrics[T any](reg prometheus.Registerer, name string) Option[T] {
	return func(c *Coordinator[T]) {
		c.hitCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "stories_cache_hits_total",
			Help:        "Total number of cache hits",
			ConstLabels: prometheus.Labels{"cache": name},
		})
		c.missCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "stories_cache_misses_total",
			Help:        "Total number of cache misses",
			ConstLabels: prometheus.Labels{"cache": name},
		})
		reg.MustRegister(c.hitCounter, c.missCounter)
	}
}

// NewCoordinator returns a Coordinator over the given store.
func NewCoordinator[T any](store Store[T], logger *zap.Logger, opts ...Option[T]) *Coordinator[T] {
	c := &Coordinator[T]{store: store, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrCompute returns the cached value for key if present; otherwise it
// invokes compute, stores the result under key with ttl, and returns it.
// Cache faults on either side are logged and degrade to the computed
// value, never to an error.
func (c *Coordinator[T]) GetOrCompute(
	ctx context.Context, key string, ttl time.Duration, compute func(ctx context.Context) (T, error),
) (T, error) {
	return c.GetOrComputeTTL(ctx, key, func(ctx context.Context) (T, time.Duration, error) {
		v, err := compute(ctx)
		return v, ttl, err
	})
}

// GetOrComputeTTL is GetOrCompute for values whose cache lifetime depends
// on the value itself (e.g. an entry must not outlive the record's own
// expiry). compute returns the TTL alongside the value; a non-positive
// TTL skips caching.
func (c *Coordinator[T]) GetOrComputeTTL(
	ctx context.Context, key string, compute func(ctx context.Context) (T, time.Duration, error),
) (T, error) {
	if v, ok := c.Lookup(ctx, key); ok {
		return v, nil
	}

	v, ttl, err := compute(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	c.Store(ctx, key, v, ttl)
	return v, nil
}

// Lookup reads the cache directly; faults are logged and count as misses.
func (c *Coordinator[T]) Lookup(ctx context.Context, key string) (T, bool) {
	v, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache get failed, falling through to store",
			zap.String("key", key), zap.Error(err))
	}
	if ok {
		if c.hitCounter != nil {
			c.hitCounter.Inc()
		}
		return v, true
	}
	if c.missCounter != nil {
		c.missCounter.Inc()
	}
	var zero T
	return zero, false
}

// Store writes the cache directly; faults are logged and swallowed.
// A non-positive TTL stores nothing.
func (c *Coordinator[T]) Store(ctx context.Context, key string, v T, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if err := c.store.Set(ctx, key, v, ttl); err != nil {
		c.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate deletes the given keys. Failures are logged and swallowed:
// the mutation that triggered the invalidation has already committed, and
// a surviving stale entry is bounded by its TTL.
func (c *Coordinator[T]) Invalidate(ctx context.Context, keys ...string) {
	if err := c.store.Invalidate(ctx, keys...); err != nil {
		c.logger.Error("cache invalidation failed",
			zap.Strings("keys", keys), zap.Error(err))
	}
}
