package customer

import (
	"context"
	"strings"
	"time"

	auditapp "github.com/dbanking/onboarding/internal/application/audit"
	kycapp "github.com/dbanking/onboarding/internal/application/kyc"
	"github.com/dbanking/onboarding/internal/application/validation"
	"github.com/dbanking/onboarding/internal/domain/audit"
	"github.com/dbanking/onboarding/internal/domain/customer"
	"github.com/dbanking/onboarding/internal/domain/kyc"
	"github.com/dbanking/onboarding/internal/domain/shared"
	"github.com/dbanking/onboarding/internal/infrastructure/cache"
	"github.com/dbanking/onboarding/internal/infrastructure/logger"
	"github.com/dbanking/onboarding/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// KycStarter opens the KYC case of a new customer
type KycStarter interface {
	Start(ctx context.Context, in kycapp.StartKycInput) (*kycapp.KycCaseResponse, error)
	ListForCustomer(ctx context.Context, customerID uuid.UUID) ([]kycapp.KycCaseResponse, error)
}

// CustomerCache is the read-through cache of customers
type CustomerCache interface {
	Get(ctx context.Context, key string) (*customer.Customer, bool, error)
	Put(ctx context.Context, c *customer.Customer) error
	Invalidate(ctx context.Context, keys ...string) error
}

// CreationMetrics counts registered customers
type CreationMetrics interface {
	RecordCustomerCreated(ctx context.Context)
}

type noopNotifier struct{}

func (noopNotifier) Notify() {}

type noopCreationMetrics struct{}

func (noopCreationMetrics) RecordCustomerCreated(context.Context) {}

// CustomerService handles customer registration, lookup and updates
type CustomerService struct {
	customers customer.Repository
	txm       shared.TxManager
	ledger    *auditapp.Ledger
	outbox    shared.OutboxEventSaver
	kyc       KycStarter
	cache     CustomerCache
	notifier  shared.OutboxNotifier
	metrics   CreationMetrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewCustomerService creates a new CustomerService
func NewCustomerService(
	customers customer.Repository,
	txm shared.TxManager,
	ledger *auditapp.Ledger,
	outbox shared.OutboxEventSaver,
	kycStarter KycStarter,
	customerCache CustomerCache,
	logger *zap.Logger,
) *CustomerService {
	return &CustomerService{
		customers: customers,
		txm:       txm,
		ledger:    ledger,
		outbox:    outbox,
		kyc:       kycStarter,
		cache:     customerCache,
		notifier:  noopNotifier{},
		metrics:   noopCreationMetrics{},
		logger:    logger,
		now:       time.Now,
	}
}

// WithNotifier sets the outbox notifier woken after each commit
func (s *CustomerService) WithNotifier(n shared.OutboxNotifier) *CustomerService {
	if n != nil {
		s.notifier = n
	}
	return s
}

// WithMetrics sets the creation metrics sink
func (s *CustomerService) WithMetrics(m CreationMetrics) *CustomerService {
	if m != nil {
		s.metrics = m
	}
	return s
}

// Create registers a customer and opens its first KYC case. A retry with
// the same idempotency key returns the stored customer and re-drives the
// KYC start, which completes a call that failed after the first commit.
func (s *CustomerService) Create(ctx context.Context, in CreateCustomerInput, idempotencyKey string) (*CustomerResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "CustomerService", "Create")
	defer span.End()

	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	key := strings.TrimSpace(idempotencyKey)
	if key != "" {
		if existing, err := s.replay(ctx, key); err != nil || existing != nil {
			return existing, err
		}
	}

	exists, err := s.customers.ExistsByEmailOrPhone(ctx, in.Email, in.Phone)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if exists {
		return nil, shared.NewDuplicateError("A customer with this email or phone already exists")
	}

	meta := s.ledger.Metadata(ctx, auditapp.ActorCustomerService)
	c, err := customer.NewCustomer(customer.NewCustomerParams{
		FirstName:      in.FirstName,
		LastName:       in.LastName,
		DateOfBirth:    in.DateOfBirth,
		Email:          in.Email,
		Phone:          in.Phone,
		IdempotencyKey: key,
	}, meta)
	if err != nil {
		return nil, err
	}

	err = s.txm.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.customers.Insert(ctx, c); err != nil {
			return err
		}
		if err := s.ledger.Record(ctx, audit.Entry{
			EntityType: audit.EntityCustomer,
			EntityID:   c.ID,
			Action:     audit.ActionCreate,
			After:      c.Snapshot(),
			Meta:       meta,
		}); err != nil {
			return err
		}
		return s.outbox.SaveEvents(ctx, c.PullDomainEvents()...)
	})
	if shared.IsDuplicate(err) && key != "" {
		// A concurrent call with the same key may have won the insert.
		if existing, rerr := s.replay(ctx, key); rerr != nil || existing != nil {
			return existing, rerr
		}
	}
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.notifier.Notify()
	s.metrics.RecordCustomerCreated(ctx)
	telemetry.SetAttributes(span, telemetry.SpanAttrCustomerID, c.ID.String())
	logger.WithLogger(ctx, s.logger).Info("customer created",
		zap.String("customer_id", c.ID.String()),
		zap.Bool("idempotent", key != ""),
	)

	if err := s.startKyc(ctx, c.ID); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	// A concurrent read may have cached one of the new identifier keys.
	s.invalidate(ctx, c)

	resp := ToCustomerResponse(c)
	return &resp, nil
}

// replay returns the customer created under key, or nil when no customer
// carries the key. The KYC start is re-driven only for a customer that has
// no case at all; any case, open or decided, means the first Create got
// that far.
func (s *CustomerService) replay(ctx context.Context, key string) (*CustomerResponse, error) {
	existing, err := s.customers.FindByIdempotencyKey(ctx, key)
	if shared.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	cases, err := s.kyc.ListForCustomer(ctx, existing.ID)
	if err != nil {
		return nil, err
	}
	logger.WithLogger(ctx, s.logger).Info("replaying idempotent customer create",
		zap.String("customer_id", existing.ID.String()),
		zap.Int("kyc_cases", len(cases)),
	)
	if len(cases) == 0 {
		if err := s.startKyc(ctx, existing.ID); err != nil {
			return nil, err
		}
	}
	resp := ToCustomerResponse(existing)
	return &resp, nil
}

func (s *CustomerService) startKyc(ctx context.Context, customerID uuid.UUID) error {
	_, err := s.kyc.Start(ctx, kycapp.StartKycInput{
		CustomerID:   customerID,
		EvidenceRefs: []string{},
		ConsentText:  kyc.StandardConsentText,
		AcceptedAt:   s.now().UTC(),
	})
	return err
}

// GetByID returns a customer, served from the cache when possible
func (s *CustomerService) GetByID(ctx context.Context, id uuid.UUID) (*CustomerResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "CustomerService", "GetByID",
		telemetry.WithAttribute(telemetry.SpanAttrCustomerID, id.String()))
	defer span.End()

	if id == uuid.Nil {
		return nil, shared.NewValidationError("Customer ID is required")
	}
	if c, ok := s.lookup(ctx, cache.IDKey(id)); ok {
		resp := ToCustomerResponse(c)
		return &resp, nil
	}

	c, err := s.customers.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.populate(ctx, c)

	resp := ToCustomerResponse(c)
	return &resp, nil
}

// GetByEmailOrPhone finds a customer by email or phone. With both
// identifiers a cached record answers only when it carries both, since the
// email and phone keys may name different customers.
func (s *CustomerService) GetByEmailOrPhone(ctx context.Context, email, phone string) (*CustomerResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "CustomerService", "GetByEmailOrPhone")
	defer span.End()

	email = strings.TrimSpace(email)
	phone = strings.TrimSpace(phone)
	if email == "" && phone == "" {
		return nil, shared.NewValidationError("Email or phone is required")
	}

	switch {
	case phone == "":
		if c, ok := s.lookup(ctx, cache.EmailKey(email)); ok {
			resp := ToCustomerResponse(c)
			return &resp, nil
		}
	case email == "":
		if c, ok := s.lookup(ctx, cache.PhoneKey(phone)); ok {
			resp := ToCustomerResponse(c)
			return &resp, nil
		}
	default:
		for _, key := range []string{cache.EmailKey(email), cache.PhoneKey(phone)} {
			c, ok := s.lookup(ctx, key)
			if ok && c.Email == customer.NormalizeEmail(email) && c.Phone == customer.NormalizePhone(phone) {
				resp := ToCustomerResponse(c)
				return &resp, nil
			}
		}
	}

	c, err := s.customers.FindByEmailOrPhone(ctx, email, phone)
	if err != nil {
		return nil, err
	}
	s.populate(ctx, c)

	resp := ToCustomerResponse(c)
	return &resp, nil
}

// Update applies a patch of personal data. A patch that changes nothing
// returns the current customer without an audit record or event.
func (s *CustomerService) Update(ctx context.Context, id uuid.UUID, patch CustomerPatch) (*CustomerResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "CustomerService", "Update",
		telemetry.WithAttribute(telemetry.SpanAttrCustomerID, id.String()))
	defer span.End()

	if id == uuid.Nil {
		return nil, shared.NewValidationError("Customer ID is required")
	}
	if err := validation.Struct(patch); err != nil {
		return nil, err
	}

	c, err := s.customers.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	domainPatch := patch.toDomain()
	if domainPatch.IsEmpty() {
		resp := ToCustomerResponse(c)
		return &resp, nil
	}

	previous := c.FieldValues([]string{customer.FieldFirstName, customer.FieldLastName, customer.FieldDateOfBirth})
	meta := s.ledger.Metadata(ctx, auditapp.ActorCustomerService)
	changed, err := c.ApplyPatch(domainPatch, meta)
	if err != nil {
		return nil, err
	}
	if len(changed) == 0 {
		resp := ToCustomerResponse(c)
		return &resp, nil
	}

	before := make(map[string]any, len(changed))
	for _, f := range changed {
		before[f] = previous[f]
	}

	err = s.txm.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.customers.Update(ctx, c); err != nil {
			return err
		}
		if err := s.ledger.Record(ctx, audit.Entry{
			EntityType: audit.EntityCustomer,
			EntityID:   c.ID,
			Action:     audit.ActionUpdate,
			Before:     before,
			After:      c.FieldValues(changed),
			Meta:       meta,
		}); err != nil {
			return err
		}
		return s.outbox.SaveEvents(ctx, c.PullDomainEvents()...)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.notifier.Notify()
	s.invalidate(ctx, c)
	logger.WithLogger(ctx, s.logger).Info("customer updated",
		zap.String("customer_id", c.ID.String()),
		zap.Strings("updated_fields", changed),
	)

	resp := ToCustomerResponse(c)
	return &resp, nil
}

// lookup reads the cache. Cache failures count as a miss.
func (s *CustomerService) lookup(ctx context.Context, key string) (*customer.Customer, bool) {
	c, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		logger.WithLogger(ctx, s.logger).Warn("customer cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return c, ok
}

func (s *CustomerService) populate(ctx context.Context, c *customer.Customer) {
	if err := s.cache.Put(ctx, c); err != nil {
		logger.WithLogger(ctx, s.logger).Warn("customer cache write failed",
			zap.String("customer_id", c.ID.String()),
			zap.Error(err),
		)
	}
}

func (s *CustomerService) invalidate(ctx context.Context, c *customer.Customer) {
	if err := s.cache.Invalidate(ctx, cache.KeysFor(c)...); err != nil {
		logger.WithLogger(ctx, s.logger).Warn("customer cache invalidation failed",
			zap.String("customer_id", c.ID.String()),
			zap.Error(err),
		)
	}
}
