package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dbanking/onboarding/internal/domain/audit"
	"github.com/dbanking/onboarding/internal/domain/shared"
	"github.com/dbanking/onboarding/internal/infrastructure/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockAuditRepository struct {
	mock.Mock
}

func (m *MockAuditRepository) Append(ctx context.Context, r *audit.Record) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *MockAuditRepository) FindByTarget(ctx context.Context, entityType audit.EntityType, entityID uuid.UUID) ([]*audit.Record, error) {
	args := m.Called(ctx, entityType, entityID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*audit.Record), args.Error(1)
}

func TestLedger_Record(t *testing.T) {
	repo := new(MockAuditRepository)
	ledger := NewLedger(repo, "API", "test")
	fixed := time.Date(2026, 5, 1, 9, 30, 0, 0, time.FixedZone("CET", 3600))
	ledger.now = func() time.Time { return fixed }

	entityID := uuid.New()
	related := uuid.New()
	var got *audit.Record
	repo.On("Append", mock.Anything, mock.AnythingOfType("*audit.Record")).
		Run(func(args mock.Arguments) { got = args.Get(1).(*audit.Record) }).
		Return(nil)

	err := ledger.Record(context.Background(), audit.Entry{
		EntityType: audit.EntityKycCase,
		EntityID:   entityID,
		RelatedID:  &related,
		Action:     audit.ActionKycStatusChanged,
		Before:     map[string]any{"status": "PENDING", "providerRef": nil},
		After:      map[string]any{"status": "VERIFIED", "checkedAt": "2026-05-01T08:30:00Z"},
		Meta:       shared.EventMetadata{CorrelationID: "corr-1", Actor: "KycCaseService"},
	})
	require.NoError(t, err)
	repo.AssertExpectations(t)

	require.NotNil(t, got)
	assert.NotEqual(t, uuid.Nil, got.ID)
	assert.Equal(t, entityID, got.EntityID)
	assert.Equal(t, &related, got.RelatedEntityID)
	assert.Equal(t, "KycCaseService", got.Actor)
	assert.Equal(t, "corr-1", got.CorrelationID)
	assert.Equal(t, "API", got.Source, "source falls back to the ledger default")
	assert.Equal(t, "test", got.Environment)
	assert.Equal(t, `{"status":"PENDING"}`, string(got.BeforeSnapshot), "null members are dropped")
	assert.Equal(t, `{"checkedAt":"2026-05-01T08:30:00Z","status":"VERIFIED"}`, string(got.AfterSnapshot))
	assert.Equal(t, time.UTC, got.OccurredAt.Location())
	assert.True(t, got.OccurredAt.Equal(fixed))
}

func TestLedger_Record_CreateHasNoBefore(t *testing.T) {
	repo := new(MockAuditRepository)
	ledger := NewLedger(repo, "API", "test")

	var got *audit.Record
	repo.On("Append", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { got = args.Get(1).(*audit.Record) }).
		Return(nil)

	err := ledger.Record(context.Background(), audit.Entry{
		EntityType: audit.EntityCustomer,
		EntityID:   uuid.New(),
		Action:     audit.ActionCreate,
		After:      map[string]string{"email": "a@x.com"},
		Meta:       shared.EventMetadata{SourceSystem: "Projector"},
	})
	require.NoError(t, err)
	assert.Nil(t, got.BeforeSnapshot)
	assert.Equal(t, "Projector", got.Source)
	assert.Equal(t, "system", got.Actor)
}

func TestLedger_Record_Errors(t *testing.T) {
	t.Run("missing entity id", func(t *testing.T) {
		ledger := NewLedger(new(MockAuditRepository), "API", "test")
		err := ledger.Record(context.Background(), audit.Entry{EntityType: audit.EntityCustomer})
		assert.True(t, shared.IsValidation(err))
	})

	t.Run("store failure propagates", func(t *testing.T) {
		repo := new(MockAuditRepository)
		boom := errors.New("connection reset")
		repo.On("Append", mock.Anything, mock.Anything).Return(boom)

		err := NewLedger(repo, "API", "test").Record(context.Background(), audit.Entry{
			EntityType: audit.EntityCustomer,
			EntityID:   uuid.New(),
			Action:     audit.ActionCreate,
		})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("unencodable snapshot", func(t *testing.T) {
		ledger := NewLedger(new(MockAuditRepository), "API", "test")
		err := ledger.Record(context.Background(), audit.Entry{
			EntityType: audit.EntityCustomer,
			EntityID:   uuid.New(),
			After:      map[string]any{"ch": make(chan int)},
		})
		assert.Error(t, err)
	})
}

func TestLedger_Metadata(t *testing.T) {
	ledger := NewLedger(new(MockAuditRepository), "API", "test")
	zl := zap.NewNop()

	t.Run("defaults", func(t *testing.T) {
		meta := ledger.Metadata(context.Background(), ActorCustomerService)
		assert.Equal(t, ActorCustomerService, meta.Actor)
		assert.Equal(t, "API", meta.SourceSystem)
		_, err := uuid.Parse(meta.CorrelationID)
		assert.NoError(t, err, "a correlation id is generated")
	})

	t.Run("context values win", func(t *testing.T) {
		ctx, _ := logger.WithCorrelationID(context.Background(), zl, "corr-42")
		ctx, _ = logger.WithUserID(ctx, zl, "user-7")

		meta := ledger.Metadata(ctx, ActorKycService)
		assert.Equal(t, "user-7", meta.Actor)
		assert.Equal(t, "corr-42", meta.CorrelationID)
	})
}
