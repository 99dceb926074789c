package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type Service interface {
	GetByUserID(ctx context.Context, userID string) (*Subscription, error)
	HasActiveSubscription(ctx context.Context, userID string) (bool, error)
	EnsureCustomer(ctx context.Context, userID, customerID string) (*Subscription, error)
	ApplyProviderUpdate(ctx context.Context, update ProviderUpdate) (bool, error)
	SetStatusByCustomer(ctx context.Context, customerID string, status SubscriptionStatus) (bool, error)
}

type Repository interface {
	FindByUserID(ctx context.Context, db *gorm.DB, userID string) (*Subscription, error)
	Insert(ctx context.Context, db *gorm.DB, sub *Subscription) (bool, error)
	UpdateFromProvider(ctx context.Context, db *gorm.DB, update ProviderUpdate, now time.Time) (int64, error)
	UpdateStatusByCustomer(ctx context.Context, db *gorm.DB, customerID string, status SubscriptionStatus, now time.Time) (int64, error)
}

// ProviderUpdate is the subset of a provider subscription object we persist.
type ProviderUpdate struct {
	CustomerID         string
	SubscriptionID     string
	PriceID            string
	Status             SubscriptionStatus
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelAtPeriodEnd  bool
}

var (
	ErrInvalidUser     = errors.New("invalid_user")
	ErrInvalidCustomer = errors.New("invalid_customer")
	ErrInvalidStatus   = errors.New("invalid_status")
)
