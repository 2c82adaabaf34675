package kyc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dbanking/onboarding/internal/domain/customer"
	"github.com/dbanking/onboarding/internal/domain/kyc"
	"github.com/dbanking/onboarding/internal/domain/shared"
	"github.com/dbanking/onboarding/internal/infrastructure/cache"
	"github.com/dbanking/onboarding/internal/infrastructure/logger"
	"github.com/dbanking/onboarding/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Projection outcomes reported to ProjectorMetrics
const (
	OutcomeApplied         = "applied"
	OutcomeUnchanged       = "unchanged"
	OutcomeCustomerMissing = "customer_missing"
	OutcomeMalformed       = "malformed"
	OutcomeFailed          = "failed"
)

// ProjectorMetrics counts projector decisions
type ProjectorMetrics interface {
	RecordProjectorOutcome(ctx context.Context, outcome string)
}

type noopProjectorMetrics struct{}

func (noopProjectorMetrics) RecordProjectorOutcome(context.Context, string) {}

// StatusProjector keeps Customer.status in line with KycStatusChanged
// events. Applying an event twice is a no-op, and it writes no audit.
type StatusProjector struct {
	customers customer.Repository
	txm       shared.TxManager
	cache     CacheInvalidator
	metrics   ProjectorMetrics
	logger    *zap.Logger
}

// NewStatusProjector creates a new StatusProjector
func NewStatusProjector(customers customer.Repository, txm shared.TxManager, logger *zap.Logger) *StatusProjector {
	return &StatusProjector{
		customers: customers,
		txm:       txm,
		cache:     noopInvalidator{},
		metrics:   noopProjectorMetrics{},
		logger:    logger,
	}
}

// WithCache sets the customer cache to invalidate after a projection
func (p *StatusProjector) WithCache(c CacheInvalidator) *StatusProjector {
	if c != nil {
		p.cache = c
	}
	return p
}

// WithMetrics sets the outcome metrics sink
func (p *StatusProjector) WithMetrics(m ProjectorMetrics) *StatusProjector {
	if m != nil {
		p.metrics = m
	}
	return p
}

// Handle applies one KycStatusChanged message. Undecodable messages fail
// permanently; a missing customer is logged and dropped.
func (p *StatusProjector) Handle(ctx context.Context, msg shared.Message) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "StatusProjector", "Handle",
		trace.WithSpanKind(trace.SpanKindConsumer),
		telemetry.WithAttribute(telemetry.SpanAttrTopic, msg.Topic))
	defer span.End()
	log := logger.WithLogger(ctx, p.logger).With(zap.String("event_id", msg.EventID))

	evt, target, err := decodeStatusChange(msg.Payload)
	if err != nil {
		p.metrics.RecordProjectorOutcome(ctx, OutcomeMalformed)
		telemetry.RecordError(span, err)
		return shared.Permanent(fmt.Errorf("KycStatusChanged %s: %w", msg.EventID, err))
	}
	telemetry.SetAttributes(span,
		telemetry.SpanAttrCustomerID, evt.CustomerID.String(),
		telemetry.SpanAttrKycStatus, string(evt.NewStatus))

	var updated *customer.Customer
	err = p.txm.WithinTx(ctx, func(ctx context.Context) error {
		c, err := p.customers.FindByID(ctx, evt.CustomerID)
		if err != nil {
			return err
		}
		if !c.ReconcileStatus(target) {
			return nil
		}
		if err := p.customers.Update(ctx, c); err != nil {
			return err
		}
		updated = c
		return nil
	})
	switch {
	case shared.IsNotFound(err):
		p.metrics.RecordProjectorOutcome(ctx, OutcomeCustomerMissing)
		log.Warn("customer not found for KYC status change, dropping",
			zap.String("customer_id", evt.CustomerID.String()),
			zap.String("kyc_case_id", evt.KycCaseID.String()),
		)
		return nil
	case err != nil:
		p.metrics.RecordProjectorOutcome(ctx, OutcomeFailed)
		telemetry.RecordError(span, err)
		return fmt.Errorf("project KYC status for customer %s: %w", evt.CustomerID, err)
	case updated == nil:
		p.metrics.RecordProjectorOutcome(ctx, OutcomeUnchanged)
		log.Debug("customer status already up to date",
			zap.String("customer_id", evt.CustomerID.String()),
			zap.String("status", string(target)),
		)
		return nil
	}

	if err := p.cache.Invalidate(ctx, cache.KeysFor(updated)...); err != nil {
		log.Warn("failed to invalidate customer cache", zap.Error(err))
	}
	p.metrics.RecordProjectorOutcome(ctx, OutcomeApplied)
	log.Info("customer status projected",
		zap.String("customer_id", updated.ID.String()),
		zap.String("kyc_case_id", evt.KycCaseID.String()),
		zap.String("status", string(updated.Status)),
	)
	return nil
}

func decodeStatusChange(payload []byte) (*kyc.KycStatusChangedEvent, customer.Status, error) {
	var evt kyc.KycStatusChangedEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, "", fmt.Errorf("decode payload: %w", err)
	}
	if evt.CustomerID == uuid.Nil {
		return nil, "", errors.New("customerId is missing")
	}
	target, err := kyc.CustomerStatusFor(evt.NewStatus)
	if err != nil {
		return nil, "", err
	}
	return &evt, target, nil
}

// CustomerCreatedLogger records CustomerCreated events in the consumer log
// and acknowledges them.
type CustomerCreatedLogger struct {
	logger *zap.Logger
}

// NewCustomerCreatedLogger creates a new CustomerCreatedLogger
func NewCustomerCreatedLogger(logger *zap.Logger) *CustomerCreatedLogger {
	return &CustomerCreatedLogger{logger: logger}
}

// Handle logs the event
func (h *CustomerCreatedLogger) Handle(ctx context.Context, msg shared.Message) error {
	var evt customer.CustomerCreatedEvent
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		return shared.Permanent(fmt.Errorf("decode CustomerCreated %s: %w", msg.EventID, err))
	}
	logger.WithLogger(ctx, h.logger).Info("customer created",
		zap.String("event_id", msg.EventID),
		zap.String("customer_id", evt.CustomerID.String()),
		zap.String("source_system", evt.SourceSystem),
		zap.Time("created_at", evt.CreatedAtUtc),
	)
	return nil
}

var (
	_ shared.MessageHandler = (*StatusProjector)(nil)
	_ shared.MessageHandler = (*CustomerCreatedLogger)(nil)
)
