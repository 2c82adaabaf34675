package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dbanking/onboarding/internal/domain/shared"
	"github.com/dbanking/onboarding/internal/infrastructure/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockIdempotencyStore is a mock implementation of shared.IdempotencyStore
type MockIdempotencyStore struct {
	mock.Mock
}

func (m *MockIdempotencyStore) MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, eventID, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	args := m.Called(ctx, eventID)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) Release(ctx context.Context, eventID string) error {
	args := m.Called(ctx, eventID)
	return args.Error(0)
}

func (m *MockIdempotencyStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

func TestIdempotentHandler_SkipsDuplicates(t *testing.T) {
	store := cache.NewInMemoryIdempotencyStore()
	defer store.Close()

	inner := &recordingHandler{}
	h := NewIdempotentHandler("projector", inner, store, zap.NewNop())
	msg := newTestMessage("t1", "k", 1)

	require.NoError(t, h.Handle(context.Background(), msg))
	require.NoError(t, h.Handle(context.Background(), msg))

	assert.Len(t, inner.messages(), 1)
	stats := h.GetMetrics().Stats()
	assert.Equal(t, int64(1), stats.EventsProcessed)
	assert.Equal(t, int64(1), stats.EventsDuplicate)
}

func TestIdempotentHandler_NamespacesAreIndependent(t *testing.T) {
	store := cache.NewInMemoryIdempotencyStore()
	defer store.Close()

	a, b := &recordingHandler{}, &recordingHandler{}
	msg := newTestMessage("t1", "k", 1)

	require.NoError(t, NewIdempotentHandler("a", a, store, zap.NewNop()).Handle(context.Background(), msg))
	require.NoError(t, NewIdempotentHandler("b", b, store, zap.NewNop()).Handle(context.Background(), msg))

	assert.Len(t, a.messages(), 1)
	assert.Len(t, b.messages(), 1)
}

func TestIdempotentHandler_FailureReleasesKey(t *testing.T) {
	store := cache.NewInMemoryIdempotencyStore()
	defer store.Close()

	inner := &recordingHandler{failures: 1, err: errors.New("db down")}
	h := NewIdempotentHandler("projector", inner, store, zap.NewNop())
	msg := newTestMessage("t1", "k", 1)

	assert.Error(t, h.Handle(context.Background(), msg))
	require.NoError(t, h.Handle(context.Background(), msg), "the retry is handled, not skipped")

	assert.Len(t, inner.messages(), 2)
	assert.Equal(t, int64(1), h.GetMetrics().Stats().EventsFailed)
}

func TestIdempotentHandler_StoreErrorProcessesAnyway(t *testing.T) {
	store := new(MockIdempotencyStore)
	store.On("MarkProcessed", mock.Anything, "projector:1", 24*time.Hour).Return(false, errors.New("redis down"))

	inner := &recordingHandler{}
	h := NewIdempotentHandler("projector", inner, store, zap.NewNop())

	require.NoError(t, h.Handle(context.Background(), newTestMessage("t1", "k", 1)))
	assert.Len(t, inner.messages(), 1)
	store.AssertExpectations(t)
}

func TestIdempotentHandler_Disabled(t *testing.T) {
	store := new(MockIdempotencyStore)
	inner := &recordingHandler{}
	h := NewIdempotentHandler("projector", inner, store, zap.NewNop(),
		WithIdempotencyConfig(shared.IdempotencyConfig{Enabled: false}),
	)

	msg := newTestMessage("t1", "k", 1)
	require.NoError(t, h.Handle(context.Background(), msg))
	require.NoError(t, h.Handle(context.Background(), msg))

	assert.Len(t, inner.messages(), 2)
	store.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything, mock.Anything)
}
