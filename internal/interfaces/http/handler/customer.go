package handler

import (
	"strings"

	customerapp "github.com/dbanking/onboarding/internal/application/customer"
	kycapp "github.com/dbanking/onboarding/internal/application/kyc"
	"github.com/gin-gonic/gin"
)

// CustomerHandler serves customer registration, lookup and updates
type CustomerHandler struct {
	BaseHandler
	customers *customerapp.CustomerService
	kyc       *kycapp.KycService
}

// NewCustomerHandler creates a new CustomerHandler
func NewCustomerHandler(customers *customerapp.CustomerService, kyc *kycapp.KycService) *CustomerHandler {
	return &CustomerHandler{
		customers: customers,
		kyc:       kyc,
	}
}

// Create handles POST /customers
func (h *CustomerHandler) Create(c *gin.Context) {
	var req CreateCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		h.HandleError(c, err)
		return
	}

	resp, err := h.customers.Create(c.Request.Context(), in, strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey)))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// Get handles GET /customers/:id
func (h *CustomerHandler) Get(c *gin.Context) {
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	resp, err := h.customers.GetByID(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Search handles GET /customers/search?email=&phone=
func (h *CustomerHandler) Search(c *gin.Context) {
	var q SearchCustomerQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindError(c, err)
		return
	}
	resp, err := h.customers.GetByEmailOrPhone(c.Request.Context(), q.Email, q.Phone)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Update handles PATCH /customers/:id
func (h *CustomerHandler) Update(c *gin.Context) {
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	var req UpdateCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		h.HandleError(c, err)
		return
	}

	resp, err := h.customers.Update(c.Request.Context(), id, patch)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// StartKyc handles POST /customers/:id/kyc. An open case is returned as is.
func (h *CustomerHandler) StartKyc(c *gin.Context) {
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	var req StartKycRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	resp, err := h.kyc.Start(c.Request.Context(), req.toInput(id))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// ListKyc handles GET /customers/:id/kyc, newest case first
func (h *CustomerHandler) ListKyc(c *gin.Context) {
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	resp, err := h.kyc.ListForCustomer(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}
