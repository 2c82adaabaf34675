package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/dbanking/onboarding/internal/domain/customer"
	"github.com/dbanking/onboarding/internal/domain/shared"
	"github.com/dbanking/onboarding/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormCustomerRepository implements customer.Repository using GORM
type GormCustomerRepository struct {
	db *gorm.DB
}

// NewGormCustomerRepository creates a new GormCustomerRepository
func NewGormCustomerRepository(db *gorm.DB) *GormCustomerRepository {
	return &GormCustomerRepository{db: db}
}

// FindByID finds a customer by its ID
func (r *GormCustomerRepository) FindByID(ctx context.Context, id uuid.UUID) (*customer.Customer, error) {
	var model models.CustomerModel
	if err := Conn(ctx, r.db).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError(fmt.Sprintf("Customer %s not found", id))
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByEmailOrPhone finds the oldest customer matching either identifier
func (r *GormCustomerRepository) FindByEmailOrPhone(ctx context.Context, email, phone string) (*customer.Customer, error) {
	query, err := r.identifierQuery(ctx, email, phone)
	if err != nil {
		return nil, err
	}
	var model models.CustomerModel
	if err := query.Order("created_at ASC").First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("No customer matches the given email or phone")
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ExistsByEmailOrPhone checks whether any customer holds either identifier
func (r *GormCustomerRepository) ExistsByEmailOrPhone(ctx context.Context, email, phone string) (bool, error) {
	query, err := r.identifierQuery(ctx, email, phone)
	if err != nil {
		return false, err
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// FindByIdempotencyKey finds the customer created with the given client key
func (r *GormCustomerRepository) FindByIdempotencyKey(ctx context.Context, key string) (*customer.Customer, error) {
	if key == "" {
		return nil, shared.NewNotFoundError("Empty idempotency key")
	}
	var model models.CustomerModel
	if err := Conn(ctx, r.db).First(&model, "idempotency_key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("No customer for idempotency key")
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Insert creates a customer row. A unique violation on email or idempotency
// key is reported as a DuplicateError.
func (r *GormCustomerRepository) Insert(ctx context.Context, c *customer.Customer) error {
	model := models.CustomerModelFromDomain(c)
	if err := Conn(ctx, r.db).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.NewDuplicateError("A customer with this email or phone already exists")
		}
		return err
	}
	return nil
}

// Update saves a customer with optimistic locking (version check).
// The aggregate has already bumped its version, so the row must still hold
// the previous one.
func (r *GormCustomerRepository) Update(ctx context.Context, c *customer.Customer) error {
	result := Conn(ctx, r.db).
		Model(&models.CustomerModel{}).
		Where("id = ? AND version = ?", c.ID, c.Version-1).
		Updates(map[string]any{
			"first_name": c.FirstName,
			"last_name":  c.LastName,
			"dob":        c.DateOfBirth,
			"status":     c.Status,
			"updated_at": c.UpdatedAt,
			"version":    c.Version,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NewConflictError("The customer record has been modified by another transaction")
	}
	return nil
}

func (r *GormCustomerRepository) identifierQuery(ctx context.Context, email, phone string) (*gorm.DB, error) {
	email = customer.NormalizeEmail(email)
	phone = customer.NormalizePhone(phone)
	query := Conn(ctx, r.db).Model(&models.CustomerModel{})
	switch {
	case email != "" && phone != "":
		return query.Where("lower(email) = ? OR phone = ?", email, phone), nil
	case email != "":
		return query.Where("lower(email) = ?", email), nil
	case phone != "":
		return query.Where("phone = ?", phone), nil
	}
	return nil, shared.NewValidationError("Email or phone is required")
}
