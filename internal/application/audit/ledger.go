// Package audit records immutable before/after snapshots of every mutation
// made by the onboarding services.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/dbanking/onboarding/internal/domain/audit"
	"github.com/dbanking/onboarding/internal/domain/shared"
	"github.com/dbanking/onboarding/internal/infrastructure/logger"
	"github.com/google/uuid"
)

// Default actors stamped on records when no user is authenticated
const (
	ActorCustomerService = "CustomerService"
	ActorKycService      = "KycCaseService"
)

// Ledger appends audit records through the transaction carried by ctx
type Ledger struct {
	repo        audit.Repository
	source      string
	environment string
	now         func() time.Time
}

// NewLedger creates a ledger that stamps records with source and environment
func NewLedger(repo audit.Repository, source, environment string) *Ledger {
	return &Ledger{
		repo:        repo,
		source:      source,
		environment: environment,
		now:         time.Now,
	}
}

// Metadata builds the event and audit metadata of the current request.
// An authenticated user overrides defaultActor; a missing correlation id
// is generated so that the events and audit rows of one call still match.
func (l *Ledger) Metadata(ctx context.Context, defaultActor string) shared.EventMetadata {
	actor := defaultActor
	if userID := logger.GetUserID(ctx); userID != "" {
		actor = userID
	}
	correlationID := logger.GetCorrelationID(ctx)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	return shared.EventMetadata{
		CorrelationID: correlationID,
		SourceSystem:  l.source,
		Actor:         actor,
	}
}

// Record canonicalizes the entry's snapshots and appends it. Errors are
// returned so the surrounding transaction rolls back.
func (l *Ledger) Record(ctx context.Context, e audit.Entry) error {
	if e.EntityID == uuid.Nil {
		return shared.NewValidationError("Audit entity ID is required")
	}

	before, err := shared.CanonicalJSON(e.Before)
	if err != nil {
		return fmt.Errorf("audit before snapshot: %w", err)
	}
	after, err := shared.CanonicalJSON(e.After)
	if err != nil {
		return fmt.Errorf("audit after snapshot: %w", err)
	}

	source := e.Meta.SourceSystem
	if source == "" {
		source = l.source
	}
	actor := e.Meta.Actor
	if actor == "" {
		actor = "system"
	}

	rec := &audit.Record{
		ID:              uuid.New(),
		EntityType:      e.EntityType,
		EntityID:        e.EntityID,
		RelatedEntityID: e.RelatedID,
		Action:          e.Action,
		Actor:           actor,
		CorrelationID:   e.Meta.CorrelationID,
		Source:          source,
		Environment:     l.environment,
		BeforeSnapshot:  before,
		AfterSnapshot:   after,
		OccurredAt:      l.now().UTC(),
	}
	if err := l.repo.Append(ctx, rec); err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}
	return nil
}
