// Package cacheredis is the production Cache backend for multi-process
// deployments, grounded on the teacher's pkg/jobx/jobxredis (same
// *redis.Client dependency, same pipeline-for-atomicity idiom).
package cacheredis

import (
	"context"
	"time"

	"github.com/flowctl/core/pkg/cache"
	"github.com/redis/go-redis/v9"
)

// Cache is a Redis-backed implementation of cache.Cache.
type Cache struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, cache.ErrBackendFailure(err)
	}
	return value, true, nil
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return cache.ErrBackendFailure(err)
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return cache.ErrBackendFailure(err)
	}
	return nil
}

// DeletePattern scans for matching keys in batches and deletes them in a
// pipeline, avoiding the production-unsafe KEYS command.
func (c *Cache) DeletePattern(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, pattern, 256).Result()
		if err != nil {
			return cache.ErrBackendFailure(err)
		}
		if len(keys) > 0 {
			pipe := c.rdb.Pipeline()
			for _, k := range keys {
				pipe.Del(ctx, k)
			}
			if _, err := pipe.Exec(ctx); err != nil {
				return cache.ErrBackendFailure(err)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return nil
}

var _ cache.Cache = (*Cache)(nil)
