package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dbanking/onboarding/internal/domain/kyc"
	"github.com/dbanking/onboarding/internal/domain/shared"
	"github.com/dbanking/onboarding/tests/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCase(t *testing.T, customerID uuid.UUID, created time.Time) *kyc.KycCase {
	t.Helper()
	k, err := kyc.NewKycCase(customerID, []string{"passport-front", "selfie"}, kyc.StandardConsentText, created)
	require.NoError(t, err)
	k.CreatedAt = created
	return k
}

func TestGormKycCaseRepository_FindByID(t *testing.T) {
	t.Run("decodes evidence refs", func(t *testing.T) {
		mdb := testutil.NewMockDB(t)
		repo := NewGormKycCaseRepository(mdb.DB)

		id, customerID := uuid.New(), uuid.New()
		now := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
		rows := sqlmock.NewRows([]string{"id", "created_at", "version", "customer_id", "status", "provider_ref", "evidence_refs", "consent_text", "accepted_at", "checked_at"}).
			AddRow(id.String(), now, 1, customerID.String(), "PENDING", nil, `["b","a"]`, kyc.StandardConsentText, now, nil)

		mdb.Mock.ExpectQuery(`SELECT \* FROM "kyc_cases" WHERE id = \$1 ORDER BY .* LIMIT .*`).
			WithArgs(id, 1).
			WillReturnRows(rows)

		k, err := repo.FindByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "a"}, k.EvidenceRefs)
		assert.Equal(t, kyc.StatusPending, k.Status)
		assert.Nil(t, k.CheckedAt)
		mdb.ExpectationsWereMet(t)
	})

	t.Run("missing case is not found", func(t *testing.T) {
		mdb := testutil.NewMockDB(t)
		repo := NewGormKycCaseRepository(mdb.DB)

		mdb.Mock.ExpectQuery(`SELECT \* FROM "kyc_cases"`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := repo.FindByID(context.Background(), uuid.New())
		assert.True(t, shared.IsNotFound(err))
	})
}

func TestGormKycCaseRepository_Lifecycle(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewGormKycCaseRepository(db)
	ctx := context.Background()
	customerID := uuid.New()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := newTestCase(t, customerID, base)
	require.NoError(t, repo.Insert(ctx, first))

	t.Run("second open case for a customer is a duplicate", func(t *testing.T) {
		err := repo.Insert(ctx, newTestCase(t, customerID, base.Add(time.Minute)))
		assert.True(t, shared.IsDuplicate(err), "got %v", err)
	})

	t.Run("finds the open case", func(t *testing.T) {
		open, err := repo.FindOpenForCustomer(ctx, customerID)
		require.NoError(t, err)
		assert.Equal(t, first.ID, open.ID)
		assert.Equal(t, []string{"passport-front", "selfie"}, open.EvidenceRefs)
	})

	ref := "prov-42"
	require.NoError(t, first.Transition(kyc.TransitionRequest{Target: kyc.StatusFailed, ProviderRef: &ref}, shared.EventMetadata{}))
	require.NoError(t, repo.Update(ctx, first))

	t.Run("terminal case frees the open slot", func(t *testing.T) {
		_, err := repo.FindOpenForCustomer(ctx, customerID)
		assert.True(t, shared.IsNotFound(err))

		second := newTestCase(t, customerID, base.Add(time.Hour))
		require.NoError(t, repo.Insert(ctx, second))

		cases, err := repo.FindByCustomer(ctx, customerID)
		require.NoError(t, err)
		require.Len(t, cases, 2)
		assert.Equal(t, second.ID, cases[0].ID, "newest first")
		assert.Equal(t, first.ID, cases[1].ID)
		assert.Equal(t, kyc.StatusFailed, cases[1].Status)
		require.NotNil(t, cases[1].ProviderRef)
		assert.Equal(t, "prov-42", *cases[1].ProviderRef)
		assert.NotNil(t, cases[1].CheckedAt)
	})

	t.Run("stale update is a conflict", func(t *testing.T) {
		stale, err := repo.FindByID(ctx, first.ID)
		require.NoError(t, err)
		stale.Version = 1
		stale.IncrementVersion()
		assert.True(t, shared.IsConflict(repo.Update(ctx, stale)))
	})

	t.Run("other customers have no cases", func(t *testing.T) {
		cases, err := repo.FindByCustomer(ctx, uuid.New())
		require.NoError(t, err)
		assert.Empty(t, cases)
	})
}
