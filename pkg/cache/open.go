package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/matzehuels/fyn/pkg/observability"
)

// Config selects and configures a backend.
type Config struct {
	Backend  string // file, redis, mongo or none
	Dir      string // file backend root
	RedisURL string
	MongoURI string
}

// Open creates the configured backend. An empty backend means file.
func Open(ctx context.Context, cfg Config) (Cache, error) {
	switch cfg.Backend {
	case "", BackendFile:
		if cfg.Dir == "" {
			return nil, fmt.Errorf("cache: file backend needs a directory")
		}
		return NewFileCache(cfg.Dir)
	case BackendRedis:
		return NewRedisCache(ctx, cfg.RedisURL)
	case BackendMongo:
		return NewMongoCache(ctx, cfg.MongoURI)
	case BackendNone:
		return NewNullCache(), nil
	}
	return nil, fmt.Errorf("cache: unknown backend %q", cfg.Backend)
}

// Instrumented reports hits, misses and writes on c to hooks.
type Instrumented struct {
	Cache
	hooks   observability.CacheHooks
	keyType string
}

// WithHooks wraps c so every operation is reported under keyType.
func WithHooks(c Cache, hooks observability.CacheHooks, keyType string) *Instrumented {
	if hooks == nil {
		hooks = observability.NoopCacheHooks{}
	}
	return &Instrumented{Cache: c, hooks: hooks, keyType: keyType}
}

func (c *Instrumented) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, ok, err := c.Cache.Get(ctx, key)
	if err == nil {
		if ok {
			c.hooks.OnCacheHit(ctx, c.keyType)
		} else {
			c.hooks.OnCacheMiss(ctx, c.keyType)
		}
	}
	return data, ok, err
}

func (c *Instrumented) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	err := c.Cache.Set(ctx, key, data, ttl)
	if err == nil {
		c.hooks.OnCacheSet(ctx, c.keyType, len(data))
	}
	return err
}
