package shared

import (
	"context"
	"time"
)

// IdempotencyStore records which event ids a consumer has already applied.
// MarkProcessed is the claim: exactly one concurrent caller gets true for a
// given id until the mark expires or is released.
type IdempotencyStore interface {
	MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
	IsProcessed(ctx context.Context, eventID string) (bool, error)

	// Release drops a claim after the handler failed, so the redelivered
	// message is applied instead of skipped.
	Release(ctx context.Context, eventID string) error

	Close() error
}

// IdempotencyConfig controls deduplication for one subscription.
type IdempotencyConfig struct {
	Enabled bool

	// TTL must outlive the broker's redelivery window.
	TTL time.Duration
}

// DefaultIdempotencyConfig keeps marks for a day.
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{Enabled: true, TTL: 24 * time.Hour}
}
