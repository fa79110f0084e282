// Package cache wraps the query service with a read-through TTL cache.
// Entries expire on their own; mutations never invalidate them.
package cache

import (
	"context"
	"time"
)

// Store holds serialized query results keyed by canonical query string.
type Store interface {
	// Get returns the cached payload and whether the key was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores the payload under key for ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
