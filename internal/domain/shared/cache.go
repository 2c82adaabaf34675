package shared

import (
	"context"
	"time"
)

// Expiry bounds the lifetime of a cache entry. An entry expires Sliding after
// its last read or TTL after it was set, whichever comes first. A zero
// Sliding gives a fixed lifetime of TTL.
type Expiry struct {
	TTL     time.Duration
	Sliding time.Duration
}

// Window returns how long an entry lives from now when its absolute
// deadline is remaining away.
func (e Expiry) Window(remaining time.Duration) time.Duration {
	if e.Sliding > 0 && e.Sliding < remaining {
		return e.Sliding
	}
	return remaining
}

// Cache is a byte-oriented key/value cache with per-entry expiry.
// A miss is reported as (nil, false, nil).
type Cache interface {
	// Get returns the cached value. A hit on a sliding entry pushes its
	// expiry forward, never past the deadline fixed by Set.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value and starts its expiry
	Set(ctx context.Context, key string, value []byte, exp Expiry) error
	// Invalidate removes keys; missing keys are ignored
	Invalidate(ctx context.Context, keys ...string) error
}
