package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/entitlepool/internal/apperror"
	ownerdomain "github.com/smallbiznis/entitlepool/internal/owner/domain"
	pooldomain "github.com/smallbiznis/entitlepool/internal/pool/domain"
	productdomain "github.com/smallbiznis/entitlepool/internal/product/domain"
	"github.com/smallbiznis/entitlepool/internal/ratelimit"
	subscriptiondomain "github.com/smallbiznis/entitlepool/internal/subscription/domain"
	"github.com/smallbiznis/entitlepool/pkg/db"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrConflict       = errors.New("conflict")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrRateLimited    = errors.New("rate_limited")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	// Resolution failures carry a message meant for the caller.
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		switch appErr.Kind {
		case apperror.KindNotFound:
			return http.StatusNotFound, errorPayload{
				Type:    "not_found",
				Message: appErr.Message,
			}
		default:
			return http.StatusBadRequest, errorPayload{
				Type:    "bad_request",
				Message: appErr.Message,
			}
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog reports the error type and code attached to request logs.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	if status >= http.StatusInternalServerError {
		return "internal", code
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ownerdomain.ErrInvalidName),
		errors.Is(err, ownerdomain.ErrInvalidKey),
		errors.Is(err, productdomain.ErrInvalidID),
		errors.Is(err, productdomain.ErrInvalidName),
		errors.Is(err, productdomain.ErrInvalidMultiplier),
		errors.Is(err, pooldomain.ErrInvalidConsumer),
		errors.Is(err, pooldomain.ErrInvalidQuantity),
		errors.Is(err, subscriptiondomain.ErrInvalidOwnerID),
		errors.Is(err, subscriptiondomain.ErrInvalidQuantity),
		errors.Is(err, subscriptiondomain.ErrInvalidPeriod):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, ownerdomain.ErrKeyTaken),
		errors.Is(err, productdomain.ErrDuplicateProduct),
		errors.Is(err, pooldomain.ErrInsufficientPool),
		errors.Is(err, ratelimit.ErrPoolBusy):
		return true
	default:
		return db.IsDuplicateKeyErr(err)
	}
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, pooldomain.ErrInsufficientPool):
		return "insufficient pool quantity"
	case errors.Is(err, ratelimit.ErrPoolBusy):
		return "pool is busy, retry"
	}
	return "conflict"
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, pooldomain.ErrNotFound),
		errors.Is(err, subscriptiondomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return err.Error()
	}
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	default:
		return "invalid value"
	}
}
