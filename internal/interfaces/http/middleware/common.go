package middleware

import (
	"github.com/dbanking/onboarding/internal/infrastructure/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Headers read and echoed by RequestContext
const (
	HeaderRequestID     = "X-Request-ID"
	HeaderCorrelationID = "X-Correlation-Id"
	HeaderUserID        = "X-User-ID"
)

// Gin context keys set by RequestContext
const (
	RequestIDKey     = "request_id"
	CorrelationIDKey = "correlation_id"
)

// MaxHeaderIDLength bounds ids taken from request headers
const MaxHeaderIDLength = 128

// RequestContext places the request id, the correlation id and the calling
// user on the request context. Missing ids are generated; both ids are echoed
// in the response headers. The user header is trusted as set by the gateway.
func RequestContext(base *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := headerID(c, HeaderRequestID)
		correlationID := headerID(c, HeaderCorrelationID)
		if correlationID == "" {
			correlationID = uuid.NewString()
		}

		ctx, _ := logger.WithRequestID(c.Request.Context(), base, requestID)
		ctx, _ = logger.WithCorrelationID(ctx, base, correlationID)
		if userID := headerID(c, HeaderUserID); userID != "" {
			ctx, _ = logger.WithUserID(ctx, base, userID)
		}
		c.Request = c.Request.WithContext(ctx)

		c.Set(RequestIDKey, requestID)
		c.Set(CorrelationIDKey, correlationID)
		c.Header(HeaderRequestID, requestID)
		c.Header(HeaderCorrelationID, correlationID)
		c.Next()
	}
}

// GetRequestID returns the request id set by RequestContext
func GetRequestID(c *gin.Context) string {
	return c.GetString(RequestIDKey)
}

func headerID(c *gin.Context, name string) string {
	v := c.GetHeader(name)
	if name == HeaderRequestID && v == "" {
		return uuid.NewString()
	}
	if len(v) > MaxHeaderIDLength {
		return v[:MaxHeaderIDLength]
	}
	return v
}

// Secure adds the standard security headers to every response
func Secure() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}
