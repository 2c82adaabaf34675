package handler

import (
	kycapp "github.com/dbanking/onboarding/internal/application/kyc"
	"github.com/gin-gonic/gin"
)

// KycHandler serves KYC case reads and status updates
type KycHandler struct {
	BaseHandler
	kyc *kycapp.KycService
}

// NewKycHandler creates a new KycHandler
func NewKycHandler(kyc *kycapp.KycService) *KycHandler {
	return &KycHandler{kyc: kyc}
}

// Get handles GET /kyc/:id
func (h *KycHandler) Get(c *gin.Context) {
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	resp, err := h.kyc.GetByID(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// UpdateStatus handles PUT /kyc/:id/status
func (h *KycHandler) UpdateStatus(c *gin.Context) {
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	var req UpdateKycStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	resp, err := h.kyc.UpdateStatus(c.Request.Context(), req.toInput(id))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}
