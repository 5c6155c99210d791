package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/dexcore/matching-engine/internal/types"
)

// ErrorBody is the standardized error envelope. Successful responses carry
// their payload at the top level because the wire contract fixes those
// shapes exactly; only failures are wrapped.
type ErrorBody struct {
	Error *Error `json:"error"`
}

// Error carries the failure kind and detail for the caller.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// Common error codes
const (
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeBadRequest       = "BAD_REQUEST"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeInternalError    = "INTERNAL_ERROR"
)

// OK sends the payload as-is with status 200. Successful POSTs also respond
// 200, so there is no 201 special case.
func OK(c *gin.Context, payload interface{}) {
	c.JSON(http.StatusOK, payload)
}

// Handle maps a domain error to its transport status. The core has no
// concept of status codes; this is where its error taxonomy meets HTTP.
func Handle(c *gin.Context, err error) {
	var (
		validationErr *types.ValidationError
		notFoundErr   *types.NotFoundError
		fault         *types.InternalFault
	)

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, ErrorBody{
			Error: &Error{
				Code:    ErrCodeValidationFailed,
				Message: validationErr.Error(),
				Field:   validationErr.Field,
			},
		})
	case errors.As(err, &notFoundErr):
		c.JSON(http.StatusNotFound, ErrorBody{
			Error: &Error{
				Code:    ErrCodeNotFound,
				Message: notFoundErr.Error(),
			},
		})
	case errors.As(err, &fault):
		c.JSON(http.StatusInternalServerError, ErrorBody{
			Error: &Error{
				Code:    ErrCodeInternalError,
				Message: fault.Error(),
			},
		})
	case errors.Is(err, gorm.ErrRecordNotFound):
		NotFound(c, "resource not found")
	default:
		InternalError(c, "an unexpected error occurred")
	}
}

// BadRequest sends a 400 response
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorBody{
		Error: &Error{
			Code:    ErrCodeBadRequest,
			Message: message,
		},
	})
}

// NotFound sends a 404 response
func NotFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, ErrorBody{
		Error: &Error{
			Code:    ErrCodeNotFound,
			Message: message,
		},
	})
}

// InternalError sends a 500 response
func InternalError(c *gin.Context, message string) {
	c.JSON(http.StatusInternalServerError, ErrorBody{
		Error: &Error{
			Code:    ErrCodeInternalError,
			Message: message,
		},
	})
}
