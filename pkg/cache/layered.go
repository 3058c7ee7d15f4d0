package cache

import (
	"context"
	"time"
)

// LayeredCache keeps a short-lived in-process copy of a shared remote cache.
// Writes go to the remote first. Locks are never taken locally so they hold
// across replicas.
type LayeredCache struct {
	local  *MemoryCache
	remote Service
	maxAge time.Duration
}

func NewLayeredCache(remote Service, opts ...LayeredOption) *LayeredCache {
	cfg := LayeredConfig{MemoryMaxSize: 1000, MemoryTTL: 30 * time.Second}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &LayeredCache{
		local:  NewMemoryCache(WithMemoryMaxSize(cfg.MemoryMaxSize)),
		remote: remote,
		maxAge: cfg.MemoryTTL,
	}
}

func (c *LayeredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if err := c.remote.Set(ctx, key, value, expiration); err != nil {
		return err
	}
	_ = c.local.Set(ctx, key, value, c.localTTL(expiration))
	return nil
}

func (c *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	if err := c.local.Get(ctx, key, dest); err == nil {
		return nil
	}
	if err := c.remote.Get(ctx, key, dest); err != nil {
		return err
	}
	_ = c.local.Set(ctx, key, dest, c.maxAge)
	return nil
}

func (c *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = c.local.Delete(ctx, keys...)
	return c.remote.Delete(ctx, keys...)
}

func (c *LayeredCache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.remote.TryLock(ctx, key, ttl)
}

func (c *LayeredCache) Unlock(ctx context.Context, key string) error {
	return c.remote.Unlock(ctx, key)
}

func (c *LayeredCache) Close() error {
	_ = c.local.Close()
	return c.remote.Close()
}

func (c *LayeredCache) localTTL(expiration time.Duration) time.Duration {
	if expiration > 0 && expiration < c.maxAge {
		return expiration
	}
	return c.maxAge
}

// Remote returns the shared backend. Callers that cannot tolerate a replica
// serving its local copy after another replica wrote use it directly.
func (c *LayeredCache) Remote() Service { return c.remote }
