// Package cache provides byte caches for index responses.
//
// The mirror fetches each project's file listing at most once per run; a
// [Cache] makes that listing reusable across requirements in one process
// ([MemoryCache]), across runs ([FileCache]), or across machines sharing a
// redis server ([RedisCache]). [NullCache] disables caching.
//
// All implementations are safe for concurrent use.
package cache

import (
	"context"
	"time"
)

// Cache stores opaque byte values under string keys.
type Cache interface {
	// Get returns the value for key. hit is false when the key is absent
	// or expired; err is reserved for backend failures.
	Get(ctx context.Context, key string) (data []byte, hit bool, err error)

	// Set stores data under key. A ttl of zero means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}
