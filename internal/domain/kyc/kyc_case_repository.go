package kyc

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the store operations on KYC cases.
// All methods join the transaction carried by ctx when there is one.
type Repository interface {
	// FindByID returns shared.ErrNotFound when the case does not exist
	FindByID(ctx context.Context, id uuid.UUID) (*KycCase, error)
	// FindOpenForCustomer returns the customer's PENDING case, or shared.ErrNotFound
	FindOpenForCustomer(ctx context.Context, customerID uuid.UUID) (*KycCase, error)
	// FindByCustomer lists a customer's cases, newest first
	FindByCustomer(ctx context.Context, customerID uuid.UUID) ([]*KycCase, error)
	// Insert fails with a DuplicateError when the customer already has an open case
	Insert(ctx context.Context, k *KycCase) error
	// Update persists a transition with an optimistic version check
	Update(ctx context.Context, k *KycCase) error
}
