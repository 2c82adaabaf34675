package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dbanking/onboarding/internal/domain/kyc"
	"github.com/google/uuid"
)

// KycCaseModel is the persistence model for the KycCase aggregate root.
// Evidence references are stored as a JSON array so their order survives.
type KycCaseModel struct {
	AggregateModel
	CustomerID       uuid.UUID  `gorm:"type:uuid;not null;index:idx_kyc_cases_customer_created,priority:1"`
	Status           kyc.Status `gorm:"type:varchar(20);not null"`
	ProviderRef      *string    `gorm:"type:varchar(400)"`
	EvidenceRefsJSON string     `gorm:"column:evidence_refs;type:jsonb;not null;default:'[]'"`
	ConsentText      string     `gorm:"type:text;not null"`
	AcceptedAt       time.Time  `gorm:"not null"`
	CheckedAt        *time.Time
}

// TableName returns the table name for GORM
func (KycCaseModel) TableName() string {
	return "kyc_cases"
}

// ToDomain converts the persistence model to a domain KycCase
func (m *KycCaseModel) ToDomain() (*kyc.KycCase, error) {
	refs := make([]string, 0)
	if m.EvidenceRefsJSON != "" {
		if err := json.Unmarshal([]byte(m.EvidenceRefsJSON), &refs); err != nil {
			return nil, fmt.Errorf("kyc case %s: decode evidence_refs: %w", m.ID, err)
		}
	}
	return &kyc.KycCase{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		CustomerID:        m.CustomerID,
		Status:            m.Status,
		ProviderRef:       m.ProviderRef,
		EvidenceRefs:      refs,
		ConsentText:       m.ConsentText,
		AcceptedAt:        m.AcceptedAt.UTC(),
		CheckedAt:         utcPtr(m.CheckedAt),
	}, nil
}

// FromDomain populates the persistence model from a domain KycCase
func (m *KycCaseModel) FromDomain(k *kyc.KycCase) error {
	refs := k.EvidenceRefs
	if refs == nil {
		refs = []string{}
	}
	data, err := json.Marshal(refs)
	if err != nil {
		return fmt.Errorf("kyc case %s: encode evidence_refs: %w", k.ID, err)
	}
	m.FromDomainAggregateRoot(k.BaseAggregateRoot)
	m.CustomerID = k.CustomerID
	m.Status = k.Status
	m.ProviderRef = k.ProviderRef
	m.EvidenceRefsJSON = string(data)
	m.ConsentText = k.ConsentText
	m.AcceptedAt = k.AcceptedAt
	m.CheckedAt = k.CheckedAt
	return nil
}
