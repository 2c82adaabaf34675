package customer

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the store operations on customers.
// All methods join the transaction carried by ctx when there is one.
type Repository interface {
	// FindByID returns shared.ErrNotFound when the customer does not exist
	FindByID(ctx context.Context, id uuid.UUID) (*Customer, error)
	// FindByEmailOrPhone matches either identifier; empty identifiers are ignored
	FindByEmailOrPhone(ctx context.Context, email, phone string) (*Customer, error)
	// ExistsByEmailOrPhone is the fast pre-insert duplicate check
	ExistsByEmailOrPhone(ctx context.Context, email, phone string) (bool, error)
	// FindByIdempotencyKey finds the customer created by an earlier Create call
	FindByIdempotencyKey(ctx context.Context, key string) (*Customer, error)
	// Insert fails with a DuplicateError when the email is already taken
	Insert(ctx context.Context, c *Customer) error
	// Update persists changes with an optimistic version check
	Update(ctx context.Context, c *Customer) error
}
