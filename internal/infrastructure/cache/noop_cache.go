package cache

import (
	"context"

	"github.com/dbanking/onboarding/internal/domain/shared"
)

// NoopCache never holds anything. It backs the customer cache when caching
// is switched off, so every read goes to the store.
type NoopCache struct{}

// Get always misses
func (NoopCache) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, nil
}

// Set discards the value
func (NoopCache) Set(context.Context, string, []byte, shared.Expiry) error { return nil }

// Invalidate does nothing
func (NoopCache) Invalidate(context.Context, ...string) error { return nil }
