package persistence

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/dbanking/onboarding/internal/domain/audit"
	"github.com/dbanking/onboarding/internal/infrastructure/persistence/models"
	"github.com/dbanking/onboarding/tests/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormAuditRepository(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewGormAuditRepository(db)
	ctx := context.Background()
	entityID := uuid.New()
	start := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	create := &audit.Record{
		ID: uuid.New(), EntityType: audit.EntityCustomer, EntityID: entityID, Action: audit.ActionCreate,
		Actor: "CustomerService", CorrelationID: "corr-1", Source: "API", Environment: "test",
		AfterSnapshot: json.RawMessage(`{"email":"a@x.com"}`), OccurredAt: start,
	}
	update := &audit.Record{
		ID: uuid.New(), EntityType: audit.EntityCustomer, EntityID: entityID, Action: audit.ActionUpdate,
		Actor: "user-7", CorrelationID: "corr-2", Source: "API", Environment: "test",
		BeforeSnapshot: json.RawMessage(`{"firstName":"Ada"}`),
		AfterSnapshot:  json.RawMessage(`{"firstName":"Augusta"}`), OccurredAt: start.Add(time.Second),
	}
	require.NoError(t, repo.Append(ctx, update))
	require.NoError(t, repo.Append(ctx, create))

	t.Run("history is oldest first", func(t *testing.T) {
		records, err := repo.FindByTarget(ctx, audit.EntityCustomer, entityID)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, audit.ActionCreate, records[0].Action)
		assert.Nil(t, records[0].BeforeSnapshot)
		assert.JSONEq(t, `{"email":"a@x.com"}`, string(records[0].AfterSnapshot))
		assert.Equal(t, "user-7", records[1].Actor)
		assert.Equal(t, "test", records[1].Environment)
	})

	t.Run("entity type scopes the history", func(t *testing.T) {
		records, err := repo.FindByTarget(ctx, audit.EntityKycCase, entityID)
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("store rejects update and delete", func(t *testing.T) {
		err := db.Model(&models.AuditRecordModel{}).Where("id = ?", create.ID).Update("actor", "someone").Error
		require.Error(t, err)
		assert.Contains(t, err.Error(), "append-only")

		err = db.Where("id = ?", create.ID).Delete(&models.AuditRecordModel{}).Error
		require.Error(t, err)
		assert.Contains(t, err.Error(), "append-only")
	})
}
