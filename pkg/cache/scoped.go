package cache

import (
	"context"
	"time"
)

// Scoped prefixes every key of an inner cache. The mirror scopes listings
// by index URL so two indexes never share entries.
type Scoped struct {
	inner  Cache
	prefix string
}

// NewScoped wraps inner so all keys are prepended with prefix.
// A nil inner behaves like [NullCache].
func NewScoped(inner Cache, prefix string) *Scoped {
	if inner == nil {
		inner = NewNullCache()
	}
	return &Scoped{inner: inner, prefix: prefix}
}

// Get retrieves the prefixed key.
func (s *Scoped) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return s.inner.Get(ctx, s.prefix+key)
}

// Set stores the prefixed key.
func (s *Scoped) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return s.inner.Set(ctx, s.prefix+key, data, ttl)
}

// Delete removes the prefixed key.
func (s *Scoped) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, s.prefix+key)
}

// Close closes the inner cache.
func (s *Scoped) Close() error { return s.inner.Close() }

var _ Cache = (*Scoped)(nil)
