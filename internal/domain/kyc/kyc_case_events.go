package kyc

import (
	"time"

	"github.com/dbanking/onboarding/internal/domain/shared"
	"github.com/google/uuid"
)

// Aggregate type constant
const AggregateTypeKycCase = "KycCase"

// EventTypeKycStatusChanged is published on every terminal transition
const EventTypeKycStatusChanged = "KycStatusChanged"

// KycStatusChangedEvent is consumed by the customer status projector.
// It is keyed by customer id so one customer's changes stay ordered.
type KycStatusChangedEvent struct {
	shared.BaseDomainEvent
	KycCaseID    uuid.UUID  `json:"kycCaseId"`
	CustomerID   uuid.UUID  `json:"customerId"`
	OldStatus    Status     `json:"oldStatus"`
	NewStatus    Status     `json:"newStatus"`
	ProviderRef  *string    `json:"providerRef,omitempty"`
	CheckedAtUtc *time.Time `json:"checkedAtUtc,omitempty"`
}

// NewKycStatusChangedEvent creates a new KycStatusChangedEvent
func NewKycStatusChangedEvent(k *KycCase, oldStatus Status, meta shared.EventMetadata) *KycStatusChangedEvent {
	e := &KycStatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeKycStatusChanged, AggregateTypeKycCase, k.ID, meta.CorrelationID),
		KycCaseID:       k.ID,
		CustomerID:      k.CustomerID,
		OldStatus:       oldStatus,
		NewStatus:       k.Status,
		ProviderRef:     k.ProviderRef,
		CheckedAtUtc:    k.CheckedAt,
	}
	e.WithPartitionKey(k.CustomerID.String())
	return e
}
