package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	usagedomain "github.com/smallbiznis/htmlpdf/internal/usage/domain"
)

const DefaultFilename = "generated.pdf"

// Pipeline runs one render request from credential to recorded usage.
type Pipeline interface {
	Generate(ctx context.Context, in GenerateInput) (*GenerateResult, error)
}

type GenerateInput struct {
	// Token is the presented API key, already pulled from the headers.
	Token string
	Body  []byte
}

type GenerateResult struct {
	PDF         []byte
	Filename    string
	RenderID    string
	UserID      string
	APIKeyID    string
	Entitlement usagedomain.Entitlement
	CostCents   int
	// Recorded is false when the render succeeded but its usage write did not.
	Recorded bool
}

var (
	ErrMissingCredential  = errors.New("missing_credential")
	ErrInvalidCredential  = errors.New("invalid_credential")
	ErrUsageLimitExceeded = errors.New("usage_limit_exceeded")
	ErrRenderFailure      = errors.New("render_failure")
	ErrDependencyFailure  = errors.New("dependency_failure")
)

type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationError lists every rejected field of a request body.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "validation_error"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+":"+f.Code)
	}
	return "validation_error: " + strings.Join(parts, ",")
}

// RateLimitError carries how long the caller should wait.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate_limited: retry after %s", e.RetryAfter)
}
