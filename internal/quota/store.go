package quota

import (
	"context"
	"time"
)

// CounterStore is a shared counter keyed by (user, window) with automatic
// expiry. Increments must be atomic across concurrent gateway instances.
type CounterStore interface {
	// IncrementAndGet atomically increments the counter for key and returns
	// the post-increment value. The ttl is applied when the increment
	// creates the key.
	IncrementAndGet(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// Get returns the current counter value, or zero when the key is absent.
	Get(ctx context.Context, key string) (int64, error)
}
