package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrCacheMiss is returned by Get when the key is absent or expired.
var ErrCacheMiss = errors.New("cache: key not found")

// Locker grants short-lived exclusive keys. A lock is released by expiry or by
// Unlock from the instance that took it.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// Service is the key/value surface shared by the memory, redis and layered
// backends. Values are JSON encoded except strings, which are stored as is.
type Service interface {
	Locker
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// GenerateKey joins namespace parts with ':'.
func GenerateKey(prefix string, parts ...string) string {
	return strings.Join(append([]string{prefix}, parts...), ":")
}
