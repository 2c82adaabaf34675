package kyc

import (
	"strings"
	"time"

	"github.com/dbanking/onboarding/internal/domain/shared"
	"github.com/google/uuid"
)

// StandardConsentText is the consent recorded when a case is opened
// automatically during customer onboarding
const StandardConsentText = "I consent to eKYC verification for account onboarding."

// KycCase is one verification attempt for a customer. It is created in
// PENDING and mutated exactly once, by its terminal transition.
type KycCase struct {
	shared.BaseAggregateRoot
	CustomerID   uuid.UUID
	Status       Status
	ProviderRef  *string
	EvidenceRefs []string
	ConsentText  string
	AcceptedAt   time.Time
	CheckedAt    *time.Time
}

// NewKycCase opens a PENDING case. A zero acceptedAt means "now".
func NewKycCase(customerID uuid.UUID, evidenceRefs []string, consentText string, acceptedAt time.Time) (*KycCase, error) {
	if customerID == uuid.Nil {
		return nil, shared.NewValidationError("Customer ID is required")
	}
	consentText = strings.TrimSpace(consentText)
	if consentText == "" {
		return nil, shared.NewValidationError("Consent text is required")
	}
	if acceptedAt.IsZero() {
		acceptedAt = time.Now()
	}

	refs := make([]string, 0, len(evidenceRefs))
	refs = append(refs, evidenceRefs...)

	return &KycCase{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		CustomerID:        customerID,
		Status:            StatusPending,
		EvidenceRefs:      refs,
		ConsentText:       consentText,
		AcceptedAt:        acceptedAt.UTC(),
	}, nil
}

// TransitionRequest describes a requested status change. Nil optional fields
// keep the current value.
type TransitionRequest struct {
	Target       Status
	ProviderRef  *string
	EvidenceRefs []string
	CheckedAt    *time.Time
}

// StatusSnapshot is the audited view of a status change
type StatusSnapshot struct {
	Status      Status     `json:"status"`
	ProviderRef *string    `json:"providerRef,omitempty"`
	CheckedAt   *time.Time `json:"checkedAt,omitempty"`
}

// StatusSnapshot returns the case's current status fields
func (k *KycCase) StatusSnapshot() StatusSnapshot {
	return StatusSnapshot{
		Status:      k.Status,
		ProviderRef: k.ProviderRef,
		CheckedAt:   k.CheckedAt,
	}
}

// Transition applies req through the transition table and records
// KycStatusChanged. On error the case is left unchanged.
func (k *KycCase) Transition(req TransitionRequest, meta shared.EventMetadata) error {
	if err := CheckTransition(k.Status, req.Target); err != nil {
		return err
	}

	old := k.Status
	k.Status = req.Target
	if req.ProviderRef != nil {
		ref := *req.ProviderRef
		k.ProviderRef = &ref
	}
	if req.EvidenceRefs != nil {
		k.EvidenceRefs = append([]string(nil), req.EvidenceRefs...)
	}
	if req.Target.IsTerminal() {
		checked := time.Now().UTC()
		if req.CheckedAt != nil {
			checked = req.CheckedAt.UTC()
		}
		k.CheckedAt = &checked
	}
	k.IncrementVersion()

	k.AddDomainEvent(NewKycStatusChangedEvent(k, old, meta))
	return nil
}

// Snapshot is the audited representation of a newly opened case
type Snapshot struct {
	ID           uuid.UUID `json:"kycCaseId"`
	CustomerID   uuid.UUID `json:"customerId"`
	Status       Status    `json:"status"`
	ProviderRef  *string   `json:"providerRef,omitempty"`
	EvidenceRefs []string  `json:"evidenceRefs"`
	ConsentText  string    `json:"consentText"`
	AcceptedAt   time.Time `json:"acceptedAt"`
}

// Snapshot returns the case's key fields including evidence and consent
func (k *KycCase) Snapshot() Snapshot {
	return Snapshot{
		ID:           k.ID,
		CustomerID:   k.CustomerID,
		Status:       k.Status,
		ProviderRef:  k.ProviderRef,
		EvidenceRefs: k.EvidenceRefs,
		ConsentText:  k.ConsentText,
		AcceptedAt:   k.AcceptedAt,
	}
}
