//go:build integration

package integration

import (
	"testing"
	"time"

	auditapp "github.com/dbanking/onboarding/internal/application/audit"
	customerapp "github.com/dbanking/onboarding/internal/application/customer"
	kycapp "github.com/dbanking/onboarding/internal/application/kyc"
	"github.com/dbanking/onboarding/internal/domain/shared"
	"github.com/dbanking/onboarding/internal/infrastructure/cache"
	"github.com/dbanking/onboarding/internal/infrastructure/event"
	"github.com/dbanking/onboarding/internal/infrastructure/persistence"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// stack is the onboarding core wired on a real database, the way
// cmd/server wires it. Each stack publishes under its own topic prefix.
type stack struct {
	db         *TestDB
	customers  *persistence.GormCustomerRepository
	cases      *persistence.GormKycCaseRepository
	audits     *persistence.GormAuditRepository
	outbox     *event.GormOutboxRepository
	txm        *persistence.GormTxManager
	prefix     string
	topics     event.Topics
	serializer *event.EventSerializer
	cache      *cache.CustomerCache
	kyc        *kycapp.KycService
	customer   *customerapp.CustomerService
}

func newStack(t *testing.T, store shared.Cache) *stack {
	t.Helper()

	db := NewSharedTestDB(t)
	if store == nil {
		store = cache.NoopCache{}
	}
	prefix := "it-" + uuid.NewString()[:8]
	s := &stack{
		db:         db,
		customers:  persistence.NewGormCustomerRepository(db.DB),
		cases:      persistence.NewGormKycCaseRepository(db.DB),
		audits:     persistence.NewGormAuditRepository(db.DB),
		outbox:     event.NewGormOutboxRepository(db.DB),
		txm:        persistence.NewGormTxManager(db.DB),
		prefix:     prefix,
		topics:     event.NewTopics(prefix),
		serializer: event.NewEventSerializer(),
		cache:      cache.NewCustomerCache(store, time.Minute, 30*time.Second),
	}
	event.RegisterAllEvents(s.serializer, s.topics)

	ledger := auditapp.NewLedger(s.audits, "API", "integration")
	publisher := event.NewOutboxPublisher(s.outbox, s.serializer, 0)
	s.kyc = kycapp.NewKycService(s.cases, s.customers, s.txm, ledger, publisher, zap.NewNop()).
		WithCache(s.cache)
	s.customer = customerapp.NewCustomerService(s.customers, s.txm, ledger, publisher, s.kyc, s.cache, zap.NewNop())
	return s
}

func newCustomerInput(email, phone string) customerapp.CreateCustomerInput {
	return customerapp.CreateCustomerInput{
		FirstName:   "Grace",
		LastName:    "Hopper",
		DateOfBirth: time.Date(1986, 12, 9, 0, 0, 0, 0, time.UTC),
		Email:       email,
		Phone:       phone,
	}
}
