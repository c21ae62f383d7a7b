package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// LayeredCache is a two-level cache: process memory in front of Redis.
// Writes go through to both layers; reads promote Redis hits into
// memory with whatever TTL the entry has left, so a promoted copy never
// outlives the shared one.
type LayeredCache struct {
	mem   *MemoryCache
	redis *RedisCache
}

// NewLayeredCache layers an in-process cache over redisCache.
func NewLayeredCache(redisCache *RedisCache, opts ...LayeredOption) *LayeredCache {
	cfg := &LayeredConfig{
		MemoryMaxSize: 1000,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &LayeredCache{
		mem:   NewMemoryCache(WithMemoryMaxSize(cfg.MemoryMaxSize)),
		redis: redisCache,
	}
}

func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal %s: %w", key, err)
	}
	if err := lc.redis.setRaw(ctx, key, data, ttl); err != nil {
		return err
	}
	lc.mem.setRaw(key, data, ttl)
	return nil
}

func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	if data, ok := lc.mem.getRaw(key); ok {
		return json.Unmarshal(data, dest)
	}

	data, ttl, err := lc.redis.getRawTTL(ctx, key)
	if err != nil {
		return err
	}
	// ttl<=0 means the entry expired between fetch and TTL lookup or
	// has no expiry; only promote entries with a bounded lifetime.
	if ttl > 0 {
		lc.mem.setRaw(key, data, ttl)
	}
	return json.Unmarshal(data, dest)
}

// Delete drops keys from both layers. Invalidation must clear memory
// too or a stale snapshot would survive until its TTL.
func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.mem.Delete(ctx, keys...)
	return lc.redis.Delete(ctx, keys...)
}

// TryLock delegates to Redis: locks coordinate across replicas, so the
// memory layer never participates.
func (lc *LayeredCache) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	return lc.redis.TryLock(ctx, key, ttl)
}

func (lc *LayeredCache) Unlock(ctx context.Context, key, token string) error {
	return lc.redis.Unlock(ctx, key, token)
}

// Close stops the memory layer. The Redis client belongs to the caller.
func (lc *LayeredCache) Close() error {
	return lc.mem.Close()
}
