package kyc

import (
	"context"
	"fmt"

	auditapp "github.com/dbanking/onboarding/internal/application/audit"
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

// CacheInvalidator drops cached customer read models
type CacheInvalidator interface {
	Invalidate(ctx context.Context, keys ...string) error
}

// TransitionMetrics counts KYC status transitions
type TransitionMetrics interface {
	RecordKycTransition(ctx context.Context, status string)
}

type noopNotifier struct{}

func (noopNotifier) Notify() {}

type noopTransitionMetrics struct{}

func (noopTransitionMetrics) RecordKycTransition(context.Context, string) {}

type noopInvalidator struct{}

func (noopInvalidator) Invalidate(context.Context, ...string) error { return nil }

// KycService runs the KYC case lifecycle: one open case per customer,
// PENDING to VERIFIED or FAILED, nothing after that.
type KycService struct {
	cases     kyc.Repository
	customers customer.Repository
	txm       shared.TxManager
	ledger    *auditapp.Ledger
	outbox    shared.OutboxEventSaver
	notifier  shared.OutboxNotifier
	cache     CacheInvalidator
	metrics   TransitionMetrics
	logger    *zap.Logger
}

// NewKycService creates a new KycService
func NewKycService(
	cases kyc.Repository,
	customers customer.Repository,
	txm shared.TxManager,
	ledger *auditapp.Ledger,
	outbox shared.OutboxEventSaver,
	logger *zap.Logger,
) *KycService {
	return &KycService{
		cases:     cases,
		customers: customers,
		txm:       txm,
		ledger:    ledger,
		outbox:    outbox,
		notifier:  noopNotifier{},
		cache:     noopInvalidator{},
		metrics:   noopTransitionMetrics{},
		logger:    logger,
	}
}

// WithNotifier sets the outbox notifier woken after each commit
func (s *KycService) WithNotifier(n shared.OutboxNotifier) *KycService {
	if n != nil {
		s.notifier = n
	}
	return s
}

// WithCache sets the customer cache to invalidate after status changes
func (s *KycService) WithCache(c CacheInvalidator) *KycService {
	if c != nil {
		s.cache = c
	}
	return s
}

// WithMetrics sets the transition metrics sink
func (s *KycService) WithMetrics(m TransitionMetrics) *KycService {
	if m != nil {
		s.metrics = m
	}
	return s
}

// Start opens a KYC case for the customer. If an open case exists it is
// returned unchanged, so repeated calls are safe.
func (s *KycService) Start(ctx context.Context, in StartKycInput) (*KycCaseResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "KycService", "Start",
		telemetry.WithAttribute(telemetry.SpanAttrCustomerID, in.CustomerID.String()))
	defer span.End()

	if in.CustomerID == uuid.Nil {
		return nil, shared.NewValidationError("Customer ID is required")
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	open, err := s.cases.FindOpenForCustomer(ctx, in.CustomerID)
	if err == nil {
		resp := ToKycCaseResponse(open)
		return &resp, nil
	}
	if !shared.IsNotFound(err) {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if _, err := s.customers.FindByID(ctx, in.CustomerID); err != nil {
		return nil, err
	}

	kc, err := kyc.NewKycCase(in.CustomerID, in.EvidenceRefs, in.ConsentText, in.AcceptedAt)
	if err != nil {
		return nil, err
	}
	meta := s.ledger.Metadata(ctx, auditapp.ActorKycService)

	err = s.txm.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.cases.Insert(ctx, kc); err != nil {
			return err
		}
		return s.ledger.Record(ctx, audit.Entry{
			EntityType: audit.EntityKycCase,
			EntityID:   kc.ID,
			RelatedID:  &kc.CustomerID,
			Action:     audit.ActionKycStarted,
			After:      kc.Snapshot(),
			Meta:       meta,
		})
	})
	if shared.IsDuplicate(err) {
		// A concurrent Start won the open-case index; its case is the answer.
		winner, ferr := s.cases.FindOpenForCustomer(ctx, in.CustomerID)
		if ferr == nil {
			resp := ToKycCaseResponse(winner)
			return &resp, nil
		}
		return nil, err
	}
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	telemetry.SetAttributes(span, telemetry.SpanAttrKycCaseID, kc.ID.String())
	logger.WithLogger(ctx, s.logger).Info("KYC case started",
		zap.String("kyc_case_id", kc.ID.String()),
		zap.String("customer_id", kc.CustomerID.String()),
	)

	resp := ToKycCaseResponse(kc)
	return &resp, nil
}

// UpdateStatus moves a PENDING case to VERIFIED or FAILED. The case, the
// customer fast path, the audit record and the KycStatusChanged event
// commit together.
func (s *KycService) UpdateStatus(ctx context.Context, in UpdateKycStatusInput) (*KycCaseResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "KycService", "UpdateStatus",
		telemetry.WithAttribute(telemetry.SpanAttrKycCaseID, in.CaseID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrKycStatus, in.Status))
	defer span.End()

	if in.CaseID == uuid.Nil {
		return nil, shared.NewValidationError("KYC case ID is required")
	}
	if in.CustomerID == uuid.Nil {
		return nil, shared.NewValidationError("Customer ID is required")
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	kc, err := s.cases.FindByID(ctx, in.CaseID)
	if err != nil {
		return nil, err
	}
	if kc.CustomerID != in.CustomerID {
		return nil, shared.NewValidationError(fmt.Sprintf("KYC case %s does not belong to customer %s", kc.ID, in.CustomerID))
	}

	before := kc.StatusSnapshot()
	oldStatus := kc.Status
	meta := s.ledger.Metadata(ctx, auditapp.ActorKycService)
	err = kc.Transition(kyc.TransitionRequest{
		Target:       kyc.Status(in.Status),
		ProviderRef:  in.ProviderRef,
		EvidenceRefs: in.EvidenceRefs,
		CheckedAt:    in.CheckedAt,
	}, meta)
	if err != nil {
		return nil, err
	}

	var owner *customer.Customer
	err = s.txm.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.cases.Update(ctx, kc); err != nil {
			return err
		}
		if kc.Status == kyc.StatusVerified {
			c, err := s.customers.FindByID(ctx, kc.CustomerID)
			if err != nil {
				return err
			}
			if c.ReconcileStatus(customer.StatusVerified) {
				if err := s.customers.Update(ctx, c); err != nil {
					return err
				}
			}
			owner = c
		}
		if err := s.ledger.Record(ctx, audit.Entry{
			EntityType: audit.EntityKycCase,
			EntityID:   kc.ID,
			RelatedID:  &kc.CustomerID,
			Action:     audit.ActionKycStatusChanged,
			Before:     before,
			After:      kc.StatusSnapshot(),
			Meta:       meta,
		}); err != nil {
			return err
		}
		return s.outbox.SaveEvents(ctx, kc.PullDomainEvents()...)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.notifier.Notify()
	s.invalidateCustomer(ctx, kc.CustomerID, owner)
	s.metrics.RecordKycTransition(ctx, string(kc.Status))
	logger.WithLogger(ctx, s.logger).Info("KYC case transitioned",
		zap.String("kyc_case_id", kc.ID.String()),
		zap.String("customer_id", kc.CustomerID.String()),
		zap.String("old_status", string(oldStatus)),
		zap.String("new_status", string(kc.Status)),
	)

	resp := ToKycCaseResponse(kc)
	return &resp, nil
}

// GetByID returns a KYC case
func (s *KycService) GetByID(ctx context.Context, id uuid.UUID) (*KycCaseResponse, error) {
	kc, err := s.cases.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToKycCaseResponse(kc)
	return &resp, nil
}

// ListForCustomer returns the customer's cases, newest first
func (s *KycService) ListForCustomer(ctx context.Context, customerID uuid.UUID) ([]KycCaseResponse, error) {
	if customerID == uuid.Nil {
		return nil, shared.NewValidationError("Customer ID is required")
	}
	cases, err := s.cases.FindByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return ToKycCaseResponses(cases), nil
}

// invalidateCustomer drops every cached key of the customer. Cache errors
// are logged; the entry expires on its own.
func (s *KycService) invalidateCustomer(ctx context.Context, customerID uuid.UUID, c *customer.Customer) {
	keys := []string{cache.IDKey(customerID)}
	if c == nil {
		if found, err := s.customers.FindByID(ctx, customerID); err == nil {
			c = found
		}
	}
	if c != nil {
		keys = cache.KeysFor(c)
	}
	if err := s.cache.Invalidate(ctx, keys...); err != nil {
		logger.WithLogger(ctx, s.logger).Warn("failed to invalidate customer cache",
			zap.String("customer_id", customerID.String()),
			zap.Error(err),
		)
	}
}
