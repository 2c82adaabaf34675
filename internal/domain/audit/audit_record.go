package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dbanking/onboarding/internal/domain/shared"
	"github.com/google/uuid"
)

// EntityType names the kind of aggregate an audit record describes
type EntityType string

const (
	EntityCustomer EntityType = "Customer"
	EntityKycCase  EntityType = "KycCase"
)

// Action names the mutation being audited
type Action string

const (
	ActionCreate           Action = "Create"
	ActionUpdate           Action = "Update"
	ActionKycStarted       Action = "KycStarted"
	ActionKycStatusChanged Action = "KycStatusChanged"
)

// Record is an immutable entry in the audit ledger. Snapshots hold canonical
// JSON: sorted keys, no null-valued members.
type Record struct {
	ID              uuid.UUID
	EntityType      EntityType
	EntityID        uuid.UUID
	RelatedEntityID *uuid.UUID
	Action          Action
	Actor           string
	CorrelationID   string
	Source          string
	Environment     string
	BeforeSnapshot  json.RawMessage
	AfterSnapshot   json.RawMessage
	OccurredAt      time.Time
}

// Entry is what callers hand to the ledger. Before and After are arbitrary
// values that the ledger canonicalizes; either may be nil.
type Entry struct {
	EntityType EntityType
	EntityID   uuid.UUID
	// RelatedID links a KYC case record to its customer
	RelatedID *uuid.UUID
	Action    Action
	Before    any
	After     any
	Meta      shared.EventMetadata
}

// Repository stores audit records. It has no update or delete; the
// database rejects both too.
type Repository interface {
	Append(ctx context.Context, r *Record) error
	// FindByTarget returns a target's history, oldest first
	FindByTarget(ctx context.Context, entityType EntityType, entityID uuid.UUID) ([]*Record, error)
}
