package persistence

import (
	"context"

	"github.com/dbanking/onboarding/internal/domain/audit"
	"github.com/dbanking/onboarding/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormAuditRepository implements audit.Repository using GORM.
// It only inserts and reads.
type GormAuditRepository struct {
	db *gorm.DB
}

// NewGormAuditRepository creates a new GormAuditRepository
func NewGormAuditRepository(db *gorm.DB) *GormAuditRepository {
	return &GormAuditRepository{db: db}
}

// Append inserts one audit record
func (r *GormAuditRepository) Append(ctx context.Context, rec *audit.Record) error {
	return Conn(ctx, r.db).Create(models.AuditRecordModelFromDomain(rec)).Error
}

// FindByTarget returns the history of one entity, oldest first
func (r *GormAuditRepository) FindByTarget(ctx context.Context, entityType audit.EntityType, entityID uuid.UUID) ([]*audit.Record, error) {
	var rows []models.AuditRecordModel
	err := Conn(ctx, r.db).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("occurred_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	records := make([]*audit.Record, len(rows))
	for i := range rows {
		records[i] = rows[i].ToDomain()
	}
	return records, nil
}
