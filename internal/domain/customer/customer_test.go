package customer

import (
	"testing"
	"time"

	"github.com/dbanking/onboarding/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validParams() NewCustomerParams {
	return NewCustomerParams{
		FirstName:   "Ada",
		LastName:    "Lovelace",
		DateOfBirth: time.Date(1990, 12, 10, 15, 4, 5, 0, time.UTC),
		Email:       " A@X.com ",
		Phone:       " +1000000001 ",
	}
}

var testMeta = shared.EventMetadata{CorrelationID: "corr-1", SourceSystem: "API", Actor: "tester"}

func TestNewCustomer(t *testing.T) {
	t.Run("creates pending customer with normalized identifiers", func(t *testing.T) {
		c, err := NewCustomer(validParams(), testMeta)
		require.NoError(t, err)

		assert.Equal(t, StatusPendingKyc, c.Status)
		assert.Equal(t, "a@x.com", c.Email)
		assert.Equal(t, "+1000000001", c.Phone)
		assert.Equal(t, time.Date(1990, 12, 10, 0, 0, 0, 0, time.UTC), c.DateOfBirth)
		assert.Nil(t, c.UpdatedAt)
		assert.Equal(t, 1, c.Version)

		events := c.GetDomainEvents()
		require.Len(t, events, 1)
		created, ok := events[0].(*CustomerCreatedEvent)
		require.True(t, ok)
		assert.Equal(t, c.ID, created.CustomerID)
		assert.Equal(t, "corr-1", created.CorrelationID())
		assert.Equal(t, "API", created.SourceSystem)
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		tests := []struct {
			name   string
			mutate func(p *NewCustomerParams)
		}{
			{"missing first name", func(p *NewCustomerParams) { p.FirstName = " " }},
			{"missing last name", func(p *NewCustomerParams) { p.LastName = "" }},
			{"missing email", func(p *NewCustomerParams) { p.Email = "" }},
			{"malformed email", func(p *NewCustomerParams) { p.Email = "not-an-email" }},
			{"missing dob", func(p *NewCustomerParams) { p.DateOfBirth = time.Time{} }},
			{"future dob", func(p *NewCustomerParams) { p.DateOfBirth = time.Now().Add(48 * time.Hour) }},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				p := validParams()
				tt.mutate(&p)
				_, err := NewCustomer(p, testMeta)
				assert.True(t, shared.IsValidation(err))
			})
		}
	})
}

func TestCustomer_ApplyPatch(t *testing.T) {
	t.Run("records only changed fields", func(t *testing.T) {
		c, err := NewCustomer(validParams(), testMeta)
		require.NoError(t, err)
		c.ClearDomainEvents()

		first := "Augusta"
		same := "Lovelace"
		changed, err := c.ApplyPatch(Patch{FirstName: &first, LastName: &same}, testMeta)
		require.NoError(t, err)

		assert.Equal(t, []string{FieldFirstName}, changed)
		assert.Equal(t, "Augusta", c.FirstName)
		assert.NotNil(t, c.UpdatedAt)
		assert.Equal(t, 2, c.Version)

		events := c.GetDomainEvents()
		require.Len(t, events, 1)
		updated := events[0].(*CustomerUpdatedEvent)
		assert.Equal(t, []string{FieldFirstName}, updated.UpdatedFields)
		require.NotNil(t, updated.FirstName)
		assert.Equal(t, "Augusta", *updated.FirstName)
		assert.Nil(t, updated.LastName)
		assert.Equal(t, "tester", updated.UpdatedBy)
	})

	t.Run("no-op patch records nothing", func(t *testing.T) {
		c, err := NewCustomer(validParams(), testMeta)
		require.NoError(t, err)
		c.ClearDomainEvents()

		changed, err := c.ApplyPatch(Patch{}, testMeta)
		require.NoError(t, err)

		assert.Empty(t, changed)
		assert.Nil(t, c.UpdatedAt)
		assert.Empty(t, c.GetDomainEvents())
	})

	t.Run("invalid value leaves customer untouched", func(t *testing.T) {
		c, err := NewCustomer(validParams(), testMeta)
		require.NoError(t, err)

		blank := ""
		_, err = c.ApplyPatch(Patch{LastName: &blank}, testMeta)
		assert.True(t, shared.IsValidation(err))
		assert.Equal(t, "Lovelace", c.LastName)
	})
}

func TestCustomer_ReconcileStatus(t *testing.T) {
	c, err := NewCustomer(validParams(), testMeta)
	require.NoError(t, err)

	assert.True(t, c.ReconcileStatus(StatusVerified))
	assert.Equal(t, StatusVerified, c.Status)
	assert.NotNil(t, c.UpdatedAt)

	assert.False(t, c.ReconcileStatus(StatusVerified), "same status is a no-op")

	c.Status = StatusClosed
	assert.False(t, c.ReconcileStatus(StatusPendingKyc), "closed customers are not reopened")
	assert.Equal(t, StatusClosed, c.Status)
}

func TestCustomer_FieldValues(t *testing.T) {
	c, err := NewCustomer(validParams(), testMeta)
	require.NoError(t, err)

	values := c.FieldValues([]string{FieldFirstName, FieldDateOfBirth})

	assert.Equal(t, map[string]any{
		FieldFirstName:   "Ada",
		FieldDateOfBirth: "1990-12-10",
	}, values)
}
