package handler

import (
	"time"

	kycapp "github.com/dbanking/onboarding/internal/application/kyc"
	"github.com/google/uuid"
)

// StartKycRequest is the body of POST /customers/:id/kyc
type StartKycRequest struct {
	EvidenceRefs []string   `json:"evidenceRefs"`
	ConsentText  string     `json:"consentText"`
	AcceptedAt   *time.Time `json:"acceptedAt"`
}

func (r StartKycRequest) toInput(customerID uuid.UUID) kycapp.StartKycInput {
	in := kycapp.StartKycInput{
		CustomerID:   customerID,
		EvidenceRefs: r.EvidenceRefs,
		ConsentText:  r.ConsentText,
	}
	if r.AcceptedAt != nil {
		in.AcceptedAt = *r.AcceptedAt
	}
	return in
}

// UpdateKycStatusRequest is the body of PUT /kyc/:id/status
type UpdateKycStatusRequest struct {
	CustomerID   uuid.UUID  `json:"customerId" binding:"required"`
	Status       string     `json:"status" binding:"required"`
	ProviderRef  *string    `json:"providerRef"`
	EvidenceRefs []string   `json:"evidenceRefs"`
	CheckedAt    *time.Time `json:"checkedAt"`
}

func (r UpdateKycStatusRequest) toInput(caseID uuid.UUID) kycapp.UpdateKycStatusInput {
	return kycapp.UpdateKycStatusInput{
		CaseID:       caseID,
		CustomerID:   r.CustomerID,
		Status:       r.Status,
		ProviderRef:  r.ProviderRef,
		CheckedAt:    r.CheckedAt,
		EvidenceRefs: r.EvidenceRefs,
	}
}
