// Package cachemetrics wraps a cache.Cache with Prometheus hit/miss
// counters, so any backend (cachemem, cacheredis) gets observability for
// free without importing prometheus itself.
package cachemetrics

import (
	"context"
	"time"

	"github.com/flowctl/core/pkg/cache"
	"github.com/flowctl/core/pkg/metrics"
)

type Cache struct {
	inner   cache.Cache
	backend string
}

// Wrap returns a cache.Cache that records hits and misses against backend
// (e.g. "redis", "memory") before delegating every call to inner.
func Wrap(inner cache.Cache, backend string) *Cache {
	return &Cache{inner: inner, backend: backend}
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, ok, err := c.inner.Get(ctx, key)
	if err == nil {
		if ok {
			metrics.CacheHitsTotal.WithLabelValues(c.backend).Inc()
		} else {
			metrics.CacheMissesTotal.WithLabelValues(c.backend).Inc()
		}
	}
	return value, ok, err
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.inner.Set(ctx, key, value, ttl)
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.inner.Delete(ctx, key)
}

func (c *Cache) DeletePattern(ctx context.Context, pattern string) error {
	return c.inner.DeletePattern(ctx, pattern)
}
