package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dbanking/onboarding/internal/domain/customer"
	"github.com/dbanking/onboarding/internal/domain/shared"
	"github.com/dbanking/onboarding/internal/infrastructure/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type countingMetrics struct{ results []string }

func (m *countingMetrics) RecordCacheLookup(_ context.Context, result string) {
	m.results = append(m.results, result)
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("connection refused")
}
func (brokenCache) Set(context.Context, string, []byte, shared.Expiry) error { return nil }
func (brokenCache) Invalidate(context.Context, ...string) error              { return nil }

// garbledCache serves an unreadable entry and cannot delete it
type garbledCache struct{}

func (garbledCache) Get(context.Context, string) ([]byte, bool, error) {
	return []byte("{"), true, nil
}
func (garbledCache) Set(context.Context, string, []byte, shared.Expiry) error { return nil }
func (garbledCache) Invalidate(context.Context, ...string) error {
	return errors.New("connection reset")
}

func newCachedCustomer(t *testing.T) *customer.Customer {
	t.Helper()
	c, err := customer.NewCustomer(customer.NewCustomerParams{
		FirstName:   "Ada",
		LastName:    "Lovelace",
		DateOfBirth: time.Date(1990, 12, 10, 0, 0, 0, 0, time.UTC),
		Email:       "Ada@X.com",
		Phone:       "+1000",
	}, shared.EventMetadata{})
	require.NoError(t, err)
	return c
}

func TestCustomerCache_PutAndGetUnderEveryKey(t *testing.T) {
	mem := NewInMemoryCache()
	defer mem.Close()
	metrics := &countingMetrics{}
	cc := NewCustomerCache(mem, 0, 10*time.Minute).WithMetrics(metrics)
	ctx := context.Background()

	c := newCachedCustomer(t)
	require.NoError(t, cc.Put(ctx, c))
	assert.Equal(t, []string{"customer:" + c.ID.String(), "customer:email:ada@x.com", "customer:phone:+1000"}, KeysFor(c))

	for _, key := range []string{IDKey(c.ID), EmailKey("ADA@x.com"), PhoneKey(" +1000 ")} {
		got, ok, err := cc.Get(ctx, key)
		require.NoError(t, err)
		require.True(t, ok, key)
		assert.Equal(t, c.ID, got.ID)
		assert.Equal(t, c.DateOfBirth, got.DateOfBirth)
		assert.Equal(t, c.Version, got.Version)
		assert.Empty(t, got.GetDomainEvents())
	}

	require.NoError(t, cc.Invalidate(ctx, KeysFor(c)...))
	_, ok, err := cc.Get(ctx, IDKey(c.ID))
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, []string{LookupHit, LookupHit, LookupHit, LookupMiss}, metrics.results)
}

func TestCustomerCache_CorruptEntryIsMiss(t *testing.T) {
	mem := NewInMemoryCache()
	defer mem.Close()
	cc := NewCustomerCache(mem, time.Minute, 0)
	ctx := context.Background()

	require.NoError(t, mem.Set(ctx, "customer:bad", []byte("{"), shared.Expiry{TTL: time.Minute}))
	_, ok, err := cc.Get(ctx, "customer:bad")
	require.NoError(t, err)
	assert.False(t, ok)

	_, stillThere, _ := mem.Get(ctx, "customer:bad")
	assert.False(t, stillThere)
}

func TestCustomerCache_StoreErrorIsReported(t *testing.T) {
	metrics := &countingMetrics{}
	cc := NewCustomerCache(brokenCache{}, time.Minute, time.Minute).WithMetrics(metrics)

	_, ok, err := cc.Get(context.Background(), "customer:x")
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Equal(t, []string{LookupError}, metrics.results)
}

func TestCustomerCache_DisabledAlwaysMisses(t *testing.T) {
	metrics := &countingMetrics{}
	cc := NewCustomerCache(NoopCache{}, 0, time.Minute).WithMetrics(metrics)
	ctx := context.Background()

	c := newCachedCustomer(t)
	require.NoError(t, cc.Put(ctx, c))
	_, ok, err := cc.Get(ctx, IDKey(c.ID))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, cc.Invalidate(ctx, KeysFor(c)...))
}

func TestCustomerCache_FailedDropIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	ctx := logger.WithContext(context.Background(), zap.New(core))
	metrics := &countingMetrics{}
	cc := NewCustomerCache(garbledCache{}, time.Minute, 0).WithMetrics(metrics)

	_, ok, err := cc.Get(ctx, "customer:bad")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []string{LookupMiss}, metrics.results)

	entries := logs.FilterMessage("dropping unreadable customer cache entry failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "customer:bad", entries[0].ContextMap()["key"])
	assert.Equal(t, "connection reset", entries[0].ContextMap()["error"])
}

func TestCustomerCache_EntriesExpireAtTTLDespiteReads(t *testing.T) {
	mem, clock := newTestCache(t)
	cc := NewCustomerCache(mem, 30*time.Minute, 10*time.Minute)
	ctx := context.Background()

	c := newCachedCustomer(t)
	require.NoError(t, cc.Put(ctx, c))

	for range 3 {
		clock.Advance(9 * time.Minute)
		_, ok, err := cc.Get(ctx, IDKey(c.ID))
		require.NoError(t, err)
		require.True(t, ok)
	}
	clock.Advance(4 * time.Minute)
	_, ok, err := cc.Get(ctx, IDKey(c.ID))
	require.NoError(t, err)
	assert.False(t, ok, "a stale entry is gone one TTL after it was written")
}

func TestNewCustomerCache_Expiry(t *testing.T) {
	tests := []struct {
		name    string
		ttl     time.Duration
		sliding time.Duration
		want    shared.Expiry
	}{
		{"defaults the TTL", 0, time.Minute, shared.Expiry{TTL: DefaultCustomerTTL, Sliding: time.Minute}},
		{"keeps a window within the TTL", time.Hour, 10 * time.Minute, shared.Expiry{TTL: time.Hour, Sliding: 10 * time.Minute}},
		{"drops a window longer than the TTL", time.Minute, time.Hour, shared.Expiry{TTL: time.Minute}},
		{"fixed lifetime without sliding", time.Minute, 0, shared.Expiry{TTL: time.Minute}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewCustomerCache(NoopCache{}, tt.ttl, tt.sliding).expiry)
		})
	}
}
