package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	analyticsdomain "github.com/smallbiznis/htmlpdf/internal/analytics/domain"
	apikeydomain "github.com/smallbiznis/htmlpdf/internal/apikey/domain"
	paymentdomain "github.com/smallbiznis/htmlpdf/internal/payment/domain"
	pdfgendomain "github.com/smallbiznis/htmlpdf/internal/pdfgen/domain"
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
	Detail  string            `json:"detail,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrRateLimited        = errors.New("rate_limited")
)

// ErrorHandlingMiddleware renders the last handler error as a JSON payload.
// Internal detail is attached only when exposeDetail is set.
func ErrorHandlingMiddleware(exposeDetail bool) gin.HandlerFunc {
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
		if exposeDetail && status >= http.StatusInternalServerError {
			payload.Detail = lastErr.Err.Error()
		}
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

	var renderValidation *pdfgendomain.ValidationError
	if errors.As(err, &renderValidation) {
		fields := make([]ValidationError, 0, len(renderValidation.Fields))
		for _, f := range renderValidation.Fields {
			fields = append(fields, ValidationError{Field: f.Field, Code: f.Code, Message: f.Message})
		}
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "Invalid request data",
			Errors:  fields,
		}
	}

	var rateLimited *pdfgendomain.RateLimitError
	if errors.As(err, &rateLimited) {
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	}

	if code, field, ok := fieldErrorCode(err); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{Field: field, Code: code, Message: "invalid value"},
			},
		}
	}

	switch {
	case errors.Is(err, pdfgendomain.ErrMissingCredential):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "API key required. Provide it in X-API-Key header or Authorization: Bearer <key>",
		}
	case errors.Is(err, pdfgendomain.ErrInvalidCredential),
		errors.Is(err, apikeydomain.ErrInactive):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "Invalid API key",
		}
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, pdfgendomain.ErrUsageLimitExceeded):
		return http.StatusForbidden, errorPayload{
			Type:    "usage_limit_exceeded",
			Message: "Usage limit exceeded. Please upgrade your plan.",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, paymentdomain.ErrMissingSignature),
		errors.Is(err, paymentdomain.ErrInvalidSignature),
		errors.Is(err, paymentdomain.ErrInvalidPayload):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_webhook",
			Message: "invalid webhook signature or payload",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, pdfgendomain.ErrRenderFailure):
		return http.StatusInternalServerError, errorPayload{
			Type:    "render_failure",
			Message: "Failed to generate PDF",
		}
	case errors.Is(err, pdfgendomain.ErrDependencyFailure):
		return http.StatusInternalServerError, errorPayload{
			Type:    "dependency_failure",
			Message: "internal server error",
		}
	case errors.Is(err, paymentdomain.ErrNotConfigured):
		return http.StatusInternalServerError, errorPayload{
			Type:    "billing_not_configured",
			Message: "billing is not configured",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

// fieldErrorCode maps domain input errors to a field and a stable code.
func fieldErrorCode(err error) (string, string, bool) {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request", "request", true
	case errors.Is(err, apikeydomain.ErrInvalidName):
		return "invalid_name", "name", true
	case errors.Is(err, apikeydomain.ErrInvalidKeyID):
		return "invalid_key_id", "id", true
	case errors.Is(err, analyticsdomain.ErrInvalidDays):
		return "invalid_days", "days", true
	case errors.Is(err, paymentdomain.ErrInvalidPrice):
		return "invalid_price", "priceId", true
	default:
		return "", "", false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, apikeydomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

// classifyErrorForLog feeds error_type and error_code into the request log.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	if status >= http.StatusInternalServerError {
		return "server", payload.Type
	}
	return "client", payload.Type
}
