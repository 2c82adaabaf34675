package cache

import (
	"context"
	"fmt"

	"github.com/dbanking/onboarding/internal/domain/shared"
	"github.com/dbanking/onboarding/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Backend names accepted by the factory
const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Backends are the cache and idempotency store of one process
type Backends struct {
	Cache       shared.Cache
	Idempotency shared.IdempotencyStore
	// Redis is nil when running on the in-memory backend
	Redis *redis.Client
}

// Close releases the backends
func (b *Backends) Close() error {
	_ = b.Idempotency.Close()
	if c, ok := b.Cache.(*InMemoryCache); ok {
		_ = c.Close()
	}
	if b.Redis != nil {
		return b.Redis.Close()
	}
	return nil
}

// Factory creates backends based on configuration
type Factory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// FactoryOption is a functional option for configuring the factory
type FactoryOption func(*Factory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(f *Factory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether an unreachable Redis falls back to
// in-memory backends. Default is false.
func WithInMemoryFallback(allow bool) FactoryOption {
	return func(f *Factory) {
		f.allowInMemoryFallback = allow
	}
}

// NewFactory creates a new factory
func NewFactory(cfg config.RedisConfig, opts ...FactoryOption) *Factory {
	f := &Factory{
		redisConfig: cfg,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create builds the backends for the named backend
func (f *Factory) Create(ctx context.Context, backend string) (*Backends, error) {
	if backend == BackendMemory {
		f.logger.Info("using in-memory cache and idempotency store")
		return f.inMemory(), nil
	}

	client, err := NewRedisClient(ctx, f.redisConfig)
	if err == nil {
		f.logger.Info("using Redis cache and idempotency store", zap.String("addr", f.redisConfig.Addr()))
		return &Backends{
			Cache:       NewRedisCache(client, "onboarding:"),
			Idempotency: NewRedisIdempotencyStore(client, ""),
			Redis:       client,
		}, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("redis required but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory backends. "+
		"Consumers on other instances will not share idempotency state.",
		zap.Error(err),
	)
	return f.inMemory(), nil
}

func (f *Factory) inMemory() *Backends {
	return &Backends{
		Cache:       NewInMemoryCache(),
		Idempotency: NewInMemoryIdempotencyStore(),
	}
}
