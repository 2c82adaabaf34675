//go:build integration

package integration

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	kycapp "github.com/dbanking/onboarding/internal/application/kyc"
	"github.com/dbanking/onboarding/internal/domain/customer"
	"github.com/dbanking/onboarding/internal/domain/kyc"
	"github.com/dbanking/onboarding/internal/domain/shared"
	"github.com/dbanking/onboarding/internal/infrastructure/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCache_SlidingExpiry(t *testing.T) {
	client := NewRedisClient(t)
	c := cache.NewRedisCache(client, "it:")
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), shared.Expiry{TTL: time.Hour, Sliding: time.Second}))
	ttl, err := client.PTTL(ctx, "it:k").Result()
	require.NoError(t, err)
	assert.LessOrEqual(t, ttl, time.Second, "a new entry lives one sliding window")

	data, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), data)

	time.Sleep(700 * time.Millisecond)
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	time.Sleep(700 * time.Millisecond)
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok, "a read slides the expiry forward")

	require.NoError(t, c.Invalidate(ctx, "k", "missing"))
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_ReadsDoNotOutliveTTL(t *testing.T) {
	client := NewRedisClient(t)
	c := cache.NewRedisCache(client, "it:")
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "capped", []byte("v"), shared.Expiry{TTL: 1500 * time.Millisecond, Sliding: time.Second}))

	for range 2 {
		time.Sleep(600 * time.Millisecond)
		_, ok, err := c.Get(ctx, "capped")
		require.NoError(t, err)
		require.True(t, ok)
	}
	ttl, err := client.PTTL(ctx, "it:capped").Result()
	require.NoError(t, err)
	assert.LessOrEqual(t, ttl, 400*time.Millisecond, "the slide is capped at the deadline")

	time.Sleep(500 * time.Millisecond)
	_, ok, err := c.Get(ctx, "capped")
	require.NoError(t, err)
	assert.False(t, ok, "frequent reads do not keep an entry past its TTL")
}

func TestRedisIdempotencyStore_OneWinner(t *testing.T) {
	client := NewRedisClient(t)
	store := cache.NewRedisIdempotencyStore(client, "")
	ctx := context.Background()

	var (
		wins atomic.Int32
		wg   sync.WaitGroup
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.MarkProcessed(ctx, "evt-1", time.Minute)
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())

	processed, err := store.IsProcessed(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, processed)

	require.NoError(t, store.Release(ctx, "evt-1"))
	ok, err := store.MarkProcessed(ctx, "evt-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "a released event can be claimed again")
}

func TestRedis_ReadThroughCustomerCache(t *testing.T) {
	client := NewRedisClient(t)
	s := newStack(t, cache.NewRedisCache(client, "onboarding:"))
	ctx := context.Background()

	created, err := s.customer.Create(ctx, newCustomerInput("katherine@example.com", "+15550008888"), "")
	require.NoError(t, err)

	_, err = s.customer.GetByID(ctx, created.ID)
	require.NoError(t, err)
	exists, err := client.Exists(ctx, "onboarding:"+cache.IDKey(created.ID)).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists, "a database read populates the cache")

	_, err = s.customer.GetByEmailOrPhone(ctx, "katherine@example.com", "")
	require.NoError(t, err)

	cases, err := s.kyc.ListForCustomer(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, cases, 1)
	_, err = s.kyc.UpdateStatus(ctx, kycapp.UpdateKycStatusInput{
		CaseID:     cases[0].ID,
		CustomerID: created.ID,
		Status:     string(kyc.StatusVerified),
	})
	require.NoError(t, err)

	for _, key := range []string{cache.IDKey(created.ID), cache.EmailKey("katherine@example.com")} {
		exists, err := client.Exists(ctx, "onboarding:"+key).Result()
		require.NoError(t, err)
		assert.Zero(t, exists, "transition invalidates %s", key)
	}

	byID, err := s.customer.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, string(customer.StatusVerified), byID.Status)
	byEmail, err := s.customer.GetByEmailOrPhone(ctx, "katherine@example.com", "")
	require.NoError(t, err)
	assert.Equal(t, string(customer.StatusVerified), byEmail.Status)
}
