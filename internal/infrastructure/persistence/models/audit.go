package models

import (
	"time"

	"github.com/dbanking/onboarding/internal/domain/audit"
	"github.com/google/uuid"
)

// AuditRecordModel is the persistence model for an audit ledger entry.
// The table is append-only; a trigger rejects UPDATE and DELETE.
type AuditRecordModel struct {
	ID              uuid.UUID        `gorm:"type:uuid;primaryKey"`
	EntityType      audit.EntityType `gorm:"type:varchar(50);not null;index:idx_audit_records_entity,priority:1"`
	EntityID        uuid.UUID        `gorm:"type:uuid;not null;index:idx_audit_records_entity,priority:2"`
	RelatedEntityID *uuid.UUID       `gorm:"type:uuid;index:idx_audit_records_related"`
	Action          audit.Action     `gorm:"type:varchar(50);not null"`
	Actor           string           `gorm:"type:varchar(200);not null"`
	CorrelationID   string           `gorm:"type:varchar(100)"`
	Source          string           `gorm:"type:varchar(50);not null"`
	Environment     string           `gorm:"type:varchar(50);not null"`
	BeforeSnapshot  *string          `gorm:"type:jsonb"`
	AfterSnapshot   *string          `gorm:"type:jsonb"`
	OccurredAt      time.Time        `gorm:"not null;index:idx_audit_records_entity,priority:3"`
}

// TableName returns the table name for GORM
func (AuditRecordModel) TableName() string {
	return "audit_records"
}

// ToDomain converts the persistence model to a domain audit Record
func (m *AuditRecordModel) ToDomain() *audit.Record {
	return &audit.Record{
		ID:              m.ID,
		EntityType:      m.EntityType,
		EntityID:        m.EntityID,
		RelatedEntityID: m.RelatedEntityID,
		Action:          m.Action,
		Actor:           m.Actor,
		CorrelationID:   m.CorrelationID,
		Source:          m.Source,
		Environment:     m.Environment,
		BeforeSnapshot:  rawOrNil(m.BeforeSnapshot),
		AfterSnapshot:   rawOrNil(m.AfterSnapshot),
		OccurredAt:      m.OccurredAt.UTC(),
	}
}

// AuditRecordModelFromDomain creates a new persistence model from a domain Record
func AuditRecordModelFromDomain(r *audit.Record) *AuditRecordModel {
	return &AuditRecordModel{
		ID:              r.ID,
		EntityType:      r.EntityType,
		EntityID:        r.EntityID,
		RelatedEntityID: r.RelatedEntityID,
		Action:          r.Action,
		Actor:           r.Actor,
		CorrelationID:   r.CorrelationID,
		Source:          r.Source,
		Environment:     r.Environment,
		BeforeSnapshot:  stringOrNil(r.BeforeSnapshot),
		AfterSnapshot:   stringOrNil(r.AfterSnapshot),
		OccurredAt:      r.OccurredAt,
	}
}

func rawOrNil(s *string) []byte {
	if s == nil {
		return nil
	}
	return []byte(*s)
}

func stringOrNil(b []byte) *string {
	if len(b) == 0 {
		return nil
	}
	s := string(b)
	return &s
}
