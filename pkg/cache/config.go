package cache

import "time"

type RedisOption func(*RedisConfig)

// RedisConfig holds connection settings for RedisCache.
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	IOTimeout    time.Duration
	Prefix       string
}

func defaultRedisConfig() RedisConfig {
	return RedisConfig{
		Host:         "localhost",
		Port:         6379,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		IOTimeout:    time.Second,
		Prefix:       "volguard",
	}
}

func WithRedisHost(host string) RedisOption {
	return func(c *RedisConfig) {
		if host != "" {
			c.Host = host
		}
	}
}

func WithRedisPort(port int) RedisOption {
	return func(c *RedisConfig) {
		if port > 0 {
			c.Port = port
		}
	}
}

func WithRedisPassword(password string) RedisOption {
	return func(c *RedisConfig) { c.Password = password }
}

func WithRedisDB(db int) RedisOption {
	return func(c *RedisConfig) { c.DB = db }
}

// WithRedisTimeouts sets the dial and per-command read/write timeouts.
func WithRedisTimeouts(dial, io time.Duration) RedisOption {
	return func(c *RedisConfig) {
		if dial > 0 {
			c.DialTimeout = dial
		}
		if io > 0 {
			c.IOTimeout = io
		}
	}
}

// WithRedisPrefix namespaces every key. Empty keeps the default.
func WithRedisPrefix(prefix string) RedisOption {
	return func(c *RedisConfig) {
		if prefix != "" {
			c.Prefix = prefix
		}
	}
}

type MemoryOption func(*MemoryConfig)

// MemoryConfig bounds the in-process cache.
type MemoryConfig struct {
	MaxSize         int
	CleanupInterval time.Duration
}

func WithMemoryMaxSize(size int) MemoryOption {
	return func(c *MemoryConfig) {
		if size > 0 {
			c.MaxSize = size
		}
	}
}

// WithMemoryCleanup sets how often expired entries are swept.
func WithMemoryCleanup(interval time.Duration) MemoryOption {
	return func(c *MemoryConfig) {
		if interval > 0 {
			c.CleanupInterval = interval
		}
	}
}

type LayeredOption func(*LayeredConfig)

// LayeredConfig sizes the in-process layer of LayeredCache.
type LayeredConfig struct {
	MemoryMaxSize int
	MemoryTTL     time.Duration
}

func WithLayeredMemorySize(size int) LayeredOption {
	return func(c *LayeredConfig) {
		if size > 0 {
			c.MemoryMaxSize = size
		}
	}
}

// WithLayeredMemoryTTL caps how long L1 keeps an entry, bounding staleness
// across processes.
func WithLayeredMemoryTTL(ttl time.Duration) LayeredOption {
	return func(c *LayeredConfig) {
		if ttl > 0 {
			c.MemoryTTL = ttl
		}
	}
}
