//go:build integration

package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/modules/redpanda"
)

var (
	sharedRedis     *tcredis.RedisContainer
	sharedRedisURL  string
	sharedBroker    *redpanda.Container
	sharedBrokerURL string
	containersMu    sync.Mutex
)

// NewRedisClient returns a client on the package-wide Redis container with
// an empty keyspace.
func NewRedisClient(t *testing.T) *redis.Client {
	t.Helper()

	ctx := context.Background()
	containersMu.Lock()
	if sharedRedis == nil {
		container, err := tcredis.Run(ctx, "redis:7-alpine")
		require.NoError(t, err, "Failed to start Redis container")
		url, err := container.ConnectionString(ctx)
		require.NoError(t, err, "Failed to get Redis connection string")
		sharedRedis = container
		sharedRedisURL = url
	}
	containersMu.Unlock()

	opts, err := redis.ParseURL(sharedRedisURL)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	require.NoError(t, client.Ping(ctx).Err(), "Failed to ping Redis")
	require.NoError(t, client.FlushAll(ctx).Err())
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

// BrokerAddress returns the seed broker of the package-wide Redpanda
// container.
func BrokerAddress(t *testing.T) string {
	t.Helper()

	containersMu.Lock()
	defer containersMu.Unlock()

	if sharedBroker == nil {
		ctx := context.Background()
		container, err := redpanda.Run(ctx, "docker.redpanda.com/redpandadata/redpanda:v24.2.4",
			redpanda.WithAutoCreateTopics(),
		)
		require.NoError(t, err, "Failed to start Redpanda container")
		addr, err := container.KafkaSeedBroker(ctx)
		require.NoError(t, err, "Failed to get Redpanda seed broker")
		sharedBroker = container
		sharedBrokerURL = addr
	}
	return sharedBrokerURL
}

// CleanupContainers terminates the Redis and Redpanda containers.
func CleanupContainers() {
	containersMu.Lock()
	defer containersMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if sharedRedis != nil {
		_ = sharedRedis.Terminate(ctx)
	}
	if sharedBroker != nil {
		_ = sharedBroker.Terminate(ctx)
	}
	sharedRedis = nil
	sharedBroker = nil
}
