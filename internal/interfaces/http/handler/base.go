package handler

import (
	"net/http"

	"github.com/dbanking/onboarding/internal/infrastructure/logger"
	"github.com/dbanking/onboarding/internal/interfaces/http/dto"
	"github.com/dbanking/onboarding/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// Success sends a 200 response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Created sends a 201 response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Error sends an error response whose status is derived from code
func (h *BaseHandler) Error(c *gin.Context, code, message string) {
	c.JSON(dto.GetHTTPStatus(code), dto.NewErrorResponse(code, message, middleware.GetRequestID(c)))
}

// BindError reports a request body or query that could not be bound
func (h *BaseHandler) BindError(c *gin.Context, err error) {
	code, message := middleware.ClassifyBindError(err)
	h.Error(c, code, message)
}

// HandleError maps a service error to a response. Internal failures are
// logged with the request context; their text never reaches the client.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	code, status, message := dto.FromError(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		logger.L(c.Request.Context()).Error("request failed", zap.Error(err))
	}
	c.JSON(status, dto.NewErrorResponse(code, message, middleware.GetRequestID(c)))
}

// pathUUID parses the named path parameter, answering 400 when it is not a UUID
func (h *BaseHandler) pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		h.Error(c, dto.ErrCodeValidation, name+": Invalid UUID format")
		return uuid.Nil, false
	}
	return id, true
}
