package kyc

import (
	"context"
	"testing"
	"time"

	"github.com/dbanking/onboarding/internal/domain/audit"
	"github.com/dbanking/onboarding/internal/domain/customer"
	"github.com/dbanking/onboarding/internal/domain/kyc"
	"github.com/dbanking/onboarding/internal/domain/shared"
	"github.com/dbanking/onboarding/internal/infrastructure/cache"
	"github.com/dbanking/onboarding/internal/infrastructure/event"
	"github.com/dbanking/onboarding/internal/infrastructure/persistence"
	"github.com/dbanking/onboarding/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recordingOutcomes struct {
	outcomes []string
}

func (r *recordingOutcomes) RecordProjectorOutcome(_ context.Context, outcome string) {
	r.outcomes = append(r.outcomes, outcome)
}

// statusChangedMessage builds the bus message of a case for customerID
// moving from PENDING to target
func statusChangedMessage(t *testing.T, customerID uuid.UUID, target kyc.Status) shared.Message {
	t.Helper()
	k, err := kyc.NewKycCase(customerID, nil, kyc.StandardConsentText, time.Time{})
	require.NoError(t, err)
	require.NoError(t, k.Transition(kyc.TransitionRequest{Target: target}, shared.EventMetadata{CorrelationID: "corr-p"}))
	events := k.PullDomainEvents()
	require.Len(t, events, 1)

	payload, err := shared.CanonicalJSON(events[0])
	require.NoError(t, err)
	return shared.Message{
		Topic:     "onboarding.kyc-status-changed",
		Key:       customerID.String(),
		EventID:   events[0].EventID().String(),
		EventType: kyc.EventTypeKycStatusChanged,
		Payload:   payload,
		Headers:   map[string]string{shared.HeaderCorrelationID: "corr-p"},
	}
}

func newTestProjector(f *kycFixture) (*StatusProjector, *recordingOutcomes) {
	outcomes := &recordingOutcomes{}
	p := NewStatusProjector(f.customers, persistence.NewGormTxManager(f.db), zap.NewNop()).
		WithCache(f.cache).
		WithMetrics(outcomes)
	return p, outcomes
}

func TestStatusProjector_AppliesVerified(t *testing.T) {
	f := newKycFixture(t)
	ctx := context.Background()
	c := f.seedCustomer(t, "ada@x.com")
	require.NoError(t, f.cache.Put(ctx, c))
	p, outcomes := newTestProjector(f)

	require.NoError(t, p.Handle(ctx, statusChangedMessage(t, c.ID, kyc.StatusVerified)))

	stored, err := f.customers.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, customer.StatusVerified, stored.Status)
	assert.Equal(t, c.Version+1, stored.Version)

	_, hit, err := f.cache.Get(ctx, cache.IDKey(c.ID))
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []string{OutcomeApplied}, outcomes.outcomes)
}

func TestStatusProjector_RedeliveryIsHarmless(t *testing.T) {
	f := newKycFixture(t)
	ctx := context.Background()
	c := f.seedCustomer(t, "ada@x.com")
	p, outcomes := newTestProjector(f)
	guarded := event.NewIdempotentHandler("kyc-projector", p, cache.NewInMemoryIdempotencyStore(), zap.NewNop())

	msg := statusChangedMessage(t, c.ID, kyc.StatusVerified)
	require.NoError(t, guarded.Handle(ctx, msg))
	require.NoError(t, guarded.Handle(ctx, msg))

	stored, err := f.customers.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, customer.StatusVerified, stored.Status)
	assert.Equal(t, c.Version+1, stored.Version, "the second delivery changes nothing")
	assert.Equal(t, []string{OutcomeApplied}, outcomes.outcomes)
	assert.Equal(t, int64(1), guarded.GetMetrics().Stats().EventsDuplicate)

	records, err := f.audits.FindByTarget(ctx, audit.EntityCustomer, c.ID)
	require.NoError(t, err)
	assert.Empty(t, records, "the projector writes no audit")

	t.Run("without the guard the state check still holds", func(t *testing.T) {
		require.NoError(t, p.Handle(ctx, msg))
		again, err := f.customers.FindByID(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, stored.Version, again.Version)
		assert.Equal(t, OutcomeUnchanged, outcomes.outcomes[len(outcomes.outcomes)-1])
	})
}

func TestStatusProjector_StatusMapping(t *testing.T) {
	ctx := context.Background()

	t.Run("failed keeps the customer pending", func(t *testing.T) {
		f := newKycFixture(t)
		c := f.seedCustomer(t, "ada@x.com")
		p, outcomes := newTestProjector(f)

		require.NoError(t, p.Handle(ctx, statusChangedMessage(t, c.ID, kyc.StatusFailed)))

		stored, err := f.customers.FindByID(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, customer.StatusPendingKyc, stored.Status)
		assert.Equal(t, []string{OutcomeUnchanged}, outcomes.outcomes)
	})

	t.Run("closed customers stay closed", func(t *testing.T) {
		f := newKycFixture(t)
		c := f.seedCustomer(t, "ada@x.com")
		require.NoError(t, f.db.Model(&models.CustomerModel{}).Where("id = ?", c.ID).
			Update("status", string(customer.StatusClosed)).Error)
		p, _ := newTestProjector(f)

		require.NoError(t, p.Handle(ctx, statusChangedMessage(t, c.ID, kyc.StatusVerified)))

		stored, err := f.customers.FindByID(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, customer.StatusClosed, stored.Status)
	})
}

func TestStatusProjector_MissingCustomerIsDropped(t *testing.T) {
	f := newKycFixture(t)
	p, outcomes := newTestProjector(f)

	err := p.Handle(context.Background(), statusChangedMessage(t, uuid.New(), kyc.StatusVerified))
	assert.NoError(t, err)
	assert.Equal(t, []string{OutcomeCustomerMissing}, outcomes.outcomes)
}

func TestStatusProjector_MalformedIsPermanent(t *testing.T) {
	f := newKycFixture(t)
	p, outcomes := newTestProjector(f)

	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `{"kycCaseId":`},
		{"missing customer", `{"newStatus":"VERIFIED"}`},
		{"unknown status", `{"customerId":"` + uuid.NewString() + `","newStatus":"APPROVED"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.Handle(context.Background(), shared.Message{EventID: "e-1", Payload: []byte(tt.payload)})
			require.Error(t, err)
			assert.True(t, shared.IsPermanent(err))
		})
	}
	assert.Equal(t, []string{OutcomeMalformed, OutcomeMalformed, OutcomeMalformed}, outcomes.outcomes)
}

func TestCustomerCreatedLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	h := NewCustomerCreatedLogger(zap.New(core))

	c, err := customer.NewCustomer(customer.NewCustomerParams{
		FirstName:   "Ada",
		LastName:    "Lovelace",
		DateOfBirth: time.Date(1990, 12, 10, 0, 0, 0, 0, time.UTC),
		Email:       "ada@x.com",
	}, shared.EventMetadata{SourceSystem: "API"})
	require.NoError(t, err)
	payload, err := shared.CanonicalJSON(c.PullDomainEvents()[0])
	require.NoError(t, err)

	require.NoError(t, h.Handle(context.Background(), shared.Message{EventID: "e-1", Payload: payload}))
	entries := logs.FilterMessage("customer created").All()
	require.Len(t, entries, 1)
	assert.Equal(t, c.ID.String(), entries[0].ContextMap()["customer_id"])
	assert.Equal(t, "API", entries[0].ContextMap()["source_system"])

	err = h.Handle(context.Background(), shared.Message{EventID: "e-2", Payload: []byte("nope")})
	assert.True(t, shared.IsPermanent(err))
}
