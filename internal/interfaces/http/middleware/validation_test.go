package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dbanking/onboarding/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type bindProbe struct {
	Email string `json:"email" binding:"required,email"`
	Page  int    `form:"page" binding:"omitempty,min=1"`
}

func bindWith(t *testing.T, body string, limit int64) (string, string) {
	t.Helper()
	SetupValidator()

	var code, message string
	router := gin.New()
	if limit > 0 {
		router.Use(BodyLimit(limit))
	}
	router.POST("/test", func(c *gin.Context) {
		var req bindProbe
		if err := c.ShouldBindJSON(&req); err != nil {
			code, message = ClassifyBindError(err)
		}
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.ContentLength = -1
	router.ServeHTTP(httptest.NewRecorder(), req)
	return code, message
}

func TestClassifyBindError(t *testing.T) {
	t.Run("tag violations use json field names", func(t *testing.T) {
		code, message := bindWith(t, `{"email":"nope"}`, 0)
		assert.Equal(t, dto.ErrCodeValidation, code)
		assert.Equal(t, "email: Invalid email format", message)
	})

	t.Run("missing field", func(t *testing.T) {
		code, message := bindWith(t, `{}`, 0)
		assert.Equal(t, dto.ErrCodeValidation, code)
		assert.Equal(t, "email: This field is required", message)
	})

	t.Run("malformed body", func(t *testing.T) {
		code, _ := bindWith(t, `{"email":`, 0)
		assert.Equal(t, dto.ErrCodeInvalidJSON, code)
	})

	t.Run("oversized streamed body", func(t *testing.T) {
		code, _ := bindWith(t, `{"email":"`+strings.Repeat("a", 200)+`@x.com"}`, 64)
		assert.Equal(t, dto.ErrCodeRequestTooLarge, code)
	})

	t.Run("valid body", func(t *testing.T) {
		code, _ := bindWith(t, `{"email":"a@x.com"}`, 0)
		assert.Empty(t, code)
	})
}
