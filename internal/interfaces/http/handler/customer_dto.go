package handler

import (
	"strings"
	"time"

	customerapp "github.com/dbanking/onboarding/internal/application/customer"
	"github.com/dbanking/onboarding/internal/domain/customer"
	"github.com/dbanking/onboarding/internal/domain/shared"
)

// HeaderIdempotencyKey makes a customer create safe to retry
const HeaderIdempotencyKey = "Idempotency-Key"

// CreateCustomerRequest is the body of POST /customers
type CreateCustomerRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	DOB       string `json:"dob"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

func (r CreateCustomerRequest) toInput() (customerapp.CreateCustomerInput, error) {
	in := customerapp.CreateCustomerInput{
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Email:     r.Email,
		Phone:     r.Phone,
	}
	if strings.TrimSpace(r.DOB) != "" {
		dob, err := parseDate(r.DOB)
		if err != nil {
			return in, err
		}
		in.DateOfBirth = dob
	}
	return in, nil
}

// UpdateCustomerRequest is the body of PATCH /customers/:id. Absent fields
// are left unchanged.
type UpdateCustomerRequest struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	DOB       *string `json:"dob"`
}

func (r UpdateCustomerRequest) toPatch() (customerapp.CustomerPatch, error) {
	patch := customerapp.CustomerPatch{
		FirstName: r.FirstName,
		LastName:  r.LastName,
	}
	if r.DOB != nil {
		dob, err := parseDate(*r.DOB)
		if err != nil {
			return patch, err
		}
		patch.DateOfBirth = &dob
	}
	return patch, nil
}

// SearchCustomerQuery is the query of GET /customers/search
type SearchCustomerQuery struct {
	Email string `form:"email"`
	Phone string `form:"phone"`
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(customer.DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, shared.NewValidationError("dob: Must be a date in YYYY-MM-DD format")
	}
	return t, nil
}
