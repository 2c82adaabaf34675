package customer

import (
	"time"

	"github.com/dbanking/onboarding/internal/domain/customer"
	"github.com/google/uuid"
)

// CreateCustomerInput registers a new customer
type CreateCustomerInput struct {
	FirstName   string    `json:"firstName" validate:"required,max=100"`
	LastName    string    `json:"lastName" validate:"required,max=100"`
	DateOfBirth time.Time `json:"dob" validate:"required"`
	Email       string    `json:"email" validate:"required,email,max=254"`
	Phone       string    `json:"phone" validate:"omitempty,max=32"`
}

// CustomerPatch changes some of a customer's personal data. Nil fields are
// left alone; email and phone cannot be changed.
type CustomerPatch struct {
	FirstName   *string    `json:"firstName" validate:"omitempty,max=100"`
	LastName    *string    `json:"lastName" validate:"omitempty,max=100"`
	DateOfBirth *time.Time `json:"dob"`
}

func (p CustomerPatch) toDomain() customer.Patch {
	return customer.Patch{
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		DateOfBirth: p.DateOfBirth,
	}
}

// CustomerResponse is the read model of a customer
type CustomerResponse struct {
	ID          uuid.UUID  `json:"id"`
	FirstName   string     `json:"firstName"`
	LastName    string     `json:"lastName"`
	DateOfBirth string     `json:"dob"`
	Email       string     `json:"email"`
	Phone       string     `json:"phone,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
	Version     int        `json:"version"`
}

// ToCustomerResponse converts a domain Customer to a response
func ToCustomerResponse(c *customer.Customer) CustomerResponse {
	return CustomerResponse{
		ID:          c.ID,
		FirstName:   c.FirstName,
		LastName:    c.LastName,
		DateOfBirth: c.DateOfBirth.Format(customer.DateLayout),
		Email:       c.Email,
		Phone:       c.Phone,
		Status:      string(c.Status),
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
		Version:     c.Version,
	}
}
