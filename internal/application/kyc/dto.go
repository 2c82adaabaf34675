package kyc

import (
	"time"

	"github.com/dbanking/onboarding/internal/domain/kyc"
	"github.com/google/uuid"
)

// StartKycInput opens a KYC case for a customer
type StartKycInput struct {
	CustomerID   uuid.UUID `json:"customerId"`
	EvidenceRefs []string  `json:"evidenceRefs" validate:"omitempty,max=50,dive,required,max=500"`
	ConsentText  string    `json:"consentText" validate:"required,max=2000"`

	// AcceptedAt defaults to now when zero
	AcceptedAt time.Time `json:"acceptedAt"`
}

// UpdateKycStatusInput moves a case to a terminal status
type UpdateKycStatusInput struct {
	CaseID      uuid.UUID  `json:"kycCaseId"`
	CustomerID  uuid.UUID  `json:"customerId"`
	Status      string     `json:"status" validate:"required,oneof=VERIFIED FAILED"`
	ProviderRef *string    `json:"providerRef" validate:"omitempty,max=200"`
	CheckedAt   *time.Time `json:"checkedAt"`

	// EvidenceRefs replaces the stored list when non-nil
	EvidenceRefs []string `json:"evidenceRefs" validate:"omitempty,max=50,dive,required,max=500"`
}

// KycCaseResponse is the read model of a KYC case
type KycCaseResponse struct {
	ID           uuid.UUID  `json:"id"`
	CustomerID   uuid.UUID  `json:"customerId"`
	Status       string     `json:"status"`
	ProviderRef  *string    `json:"providerRef,omitempty"`
	EvidenceRefs []string   `json:"evidenceRefs"`
	ConsentText  string     `json:"consentText"`
	AcceptedAt   time.Time  `json:"acceptedAt"`
	CheckedAt    *time.Time `json:"checkedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	Version      int        `json:"version"`
}

// ToKycCaseResponse converts a domain KycCase to a response
func ToKycCaseResponse(k *kyc.KycCase) KycCaseResponse {
	refs := k.EvidenceRefs
	if refs == nil {
		refs = []string{}
	}
	return KycCaseResponse{
		ID:           k.ID,
		CustomerID:   k.CustomerID,
		Status:       string(k.Status),
		ProviderRef:  k.ProviderRef,
		EvidenceRefs: refs,
		ConsentText:  k.ConsentText,
		AcceptedAt:   k.AcceptedAt,
		CheckedAt:    k.CheckedAt,
		CreatedAt:    k.CreatedAt,
		Version:      k.Version,
	}
}

// ToKycCaseResponses converts a slice of domain cases
func ToKycCaseResponses(cases []*kyc.KycCase) []KycCaseResponse {
	out := make([]KycCaseResponse, len(cases))
	for i, k := range cases {
		out[i] = ToKycCaseResponse(k)
	}
	return out
}
