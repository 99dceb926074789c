package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Service ingests provider webhooks.
type Service interface {
	IngestWebhook(ctx context.Context, payload []byte, signature string) error
}

// CheckoutService starts a hosted subscription checkout.
type CheckoutService interface {
	CreateSession(ctx context.Context, userID string, req CheckoutRequest) (*CheckoutResponse, error)
}

// Verifier authenticates and decodes a raw webhook.
type Verifier interface {
	Verify(payload []byte, signature string) (*ProviderEvent, error)
}

// Gateway is the slice of the provider API used by checkout.
type Gateway interface {
	CreateCustomer(ctx context.Context, userID, email string) (string, error)
	CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (string, error)
}

type Repository interface {
	FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*EventRecord, error)
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error
}

type CheckoutRequest struct {
	PriceID string `json:"priceId"`
	Plan    string `json:"plan"`
	Email   string `json:"email"`
}

type CheckoutResponse struct {
	URL string `json:"url"`
}

type CheckoutSessionParams struct {
	CustomerID string
	PriceID    string
	UserID     string
	SuccessURL string
	CancelURL  string
}

var (
	ErrMissingSignature = errors.New("missing_signature")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrNotConfigured    = errors.New("billing_not_configured")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrEventIgnored     = errors.New("event_ignored")
	ErrInvalidPrice     = errors.New("invalid_price")
	ErrInvalidUser      = errors.New("invalid_user")
)
