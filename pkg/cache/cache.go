// Package cache provides the byte cache fyn puts in front of the npm
// registry.
//
// Packuments are large and change rarely within a session, so every
// metadata fetch goes through a [Cache]. Backends:
//
//   - [FileCache]: JSON entries under the user cache directory (CLI default)
//   - [RedisCache]: shared cache for CI fleets
//   - [MongoCache]: shared cache with TTL documents
//   - [NullCache]: caching disabled
//
// Keys are built by a [Keyer] so that registries, and tokens for private
// registries, never share entries.
package cache

import (
	"context"
	"time"
)

// Cache stores opaque byte values under string keys.
type Cache interface {
	// Get returns the value for key. A miss is (nil, false, nil).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// Default TTLs.
const (
	TTLPackument = time.Hour
	TTLTarball   = 7 * 24 * time.Hour
)

// Backend names accepted by [Open].
const (
	BackendFile  = "file"
	BackendRedis = "redis"
	BackendMongo = "mongo"
	BackendNone  = "none"
)
