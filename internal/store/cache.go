package store

import (
	"bytes"
	"context"
	"encoding/gob"
	"time"

	gormcaches "github.com/go-gorm/caches/v4"
	"github.com/redis/go-redis/v9"
)

// RedisCacher implements gormcaches.Cacher on top of a shared redis
// client, giving every service's read queries a bounded TTL cache
// without each one reimplementing invalidation.
type RedisCacher struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCacher builds a query cacher with the given entry TTL.
func NewRedisCacher(client *redis.Client, ttl time.Duration) *RedisCacher {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisCacher{client: client, ttl: ttl}
}

func (c *RedisCacher) Get(ctx context.Context, key string, q *gormcaches.Query[any]) (*gormcaches.Query[any], error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		// Cache miss (or Redis unavailable) falls through to the real
		// query; caching is a latency optimisation, never a dependency.
		return nil, nil
	}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(q); err != nil {
		return nil, nil
	}
	return q, nil
}

func (c *RedisCacher) Store(ctx context.Context, key string, val *gormcaches.Query[any]) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(val); err != nil {
		return nil
	}
	return c.client.Set(ctx, key, buf.Bytes(), c.ttl).Err()
}

func (c *RedisCacher) Invalidate(ctx context.Context) error {
	// go-gorm/caches calls Invalidate on every write against a cached
	// table; a full flush keeps this correct without per-key tracking.
	return c.client.FlushDB(ctx).Err()
}
