package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/dbanking/onboarding/internal/domain/kyc"
	"github.com/dbanking/onboarding/internal/domain/shared"
	"github.com/dbanking/onboarding/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormKycCaseRepository implements kyc.Repository using GORM
type GormKycCaseRepository struct {
	db *gorm.DB
}

// NewGormKycCaseRepository creates a new GormKycCaseRepository
func NewGormKycCaseRepository(db *gorm.DB) *GormKycCaseRepository {
	return &GormKycCaseRepository{db: db}
}

// FindByID finds a KYC case by its ID
func (r *GormKycCaseRepository) FindByID(ctx context.Context, id uuid.UUID) (*kyc.KycCase, error) {
	var model models.KycCaseModel
	if err := Conn(ctx, r.db).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError(fmt.Sprintf("KYC case %s not found", id))
		}
		return nil, err
	}
	return model.ToDomain()
}

// FindOpenForCustomer returns the customer's PENDING case
func (r *GormKycCaseRepository) FindOpenForCustomer(ctx context.Context, customerID uuid.UUID) (*kyc.KycCase, error) {
	var model models.KycCaseModel
	err := Conn(ctx, r.db).
		Where("customer_id = ? AND status = ?", customerID, kyc.StatusPending).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError(fmt.Sprintf("No open KYC case for customer %s", customerID))
		}
		return nil, err
	}
	return model.ToDomain()
}

// FindByCustomer lists a customer's cases, newest first. Ties on creation
// time are broken by id so the order is stable.
func (r *GormKycCaseRepository) FindByCustomer(ctx context.Context, customerID uuid.UUID) ([]*kyc.KycCase, error) {
	var rows []models.KycCaseModel
	err := Conn(ctx, r.db).
		Where("customer_id = ?", customerID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	cases := make([]*kyc.KycCase, 0, len(rows))
	for i := range rows {
		k, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		cases = append(cases, k)
	}
	return cases, nil
}

// Insert creates a KYC case row. The partial unique index on open cases
// turns a second PENDING case for the same customer into a DuplicateError.
func (r *GormKycCaseRepository) Insert(ctx context.Context, k *kyc.KycCase) error {
	var model models.KycCaseModel
	if err := model.FromDomain(k); err != nil {
		return err
	}
	if err := Conn(ctx, r.db).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.NewDuplicateError(fmt.Sprintf("Customer %s already has an open KYC case", k.CustomerID))
		}
		return err
	}
	return nil
}

// Update persists a transition with an optimistic version check
func (r *GormKycCaseRepository) Update(ctx context.Context, k *kyc.KycCase) error {
	var model models.KycCaseModel
	if err := model.FromDomain(k); err != nil {
		return err
	}
	result := Conn(ctx, r.db).
		Model(&models.KycCaseModel{}).
		Where("id = ? AND version = ?", k.ID, k.Version-1).
		Updates(map[string]any{
			"status":        model.Status,
			"provider_ref":  model.ProviderRef,
			"evidence_refs": model.EvidenceRefsJSON,
			"checked_at":    model.CheckedAt,
			"version":       model.Version,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NewConflictError("The KYC case has been modified by another transaction")
	}
	return nil
}
