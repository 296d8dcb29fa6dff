// Package cache provides response caches shared by gatherers.
//
// Two implementations exist: an in-process TTL cache for single instances
// and a redis-backed cache for fleets that should share downstream results.
package cache

import (
	"context"
	"time"
)

// Cache stores raw downstream bodies by key for a limited time.
type Cache interface {
	// Get returns the value and true on a hit. A miss is not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key for ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Close releases background resources.
	Close() error
}
