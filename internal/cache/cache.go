// Package cache provides the render-cache capability used by the
// storefront read path. It is injected rather than imported as global
// state so tests can substitute a fake clock or a fake store.
package cache

import "time"

// Cache stores serialized responses under string keys with a TTL.
type Cache interface {
	// Get returns the cached value and true, or nil and false when the key
	// is missing or expired.
	Get(key string) ([]byte, bool)

	// Set stores value under key for ttl.
	Set(key string, value []byte, ttl time.Duration)

	// Invalidate drops a key immediately. Unknown keys are a no-op.
	Invalidate(key string)
}
