// Package domain contains the local mirror of billing-provider subscriptions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// SubscriptionStatus mirrors the provider's coarse status string.
type SubscriptionStatus string

const (
	SubscriptionStatusIncomplete SubscriptionStatus = "incomplete"
	SubscriptionStatusActive     SubscriptionStatus = "active"
	SubscriptionStatusTrialing   SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue    SubscriptionStatus = "past_due"
	SubscriptionStatusUnpaid     SubscriptionStatus = "unpaid"
	SubscriptionStatusCanceled   SubscriptionStatus = "canceled"
)

// Subscription is written by checkout and provider webhooks only.
// One row per user, addressed by the provider customer id.
type Subscription struct {
	ID                   snowflake.ID       `gorm:"primaryKey"`
	UserID               string             `gorm:"column:user_id;type:text;not null;uniqueIndex:ux_subscriptions_user_id"`
	StripeCustomerID     string             `gorm:"column:stripe_customer_id;type:text;not null;uniqueIndex:ux_subscriptions_customer_id"`
	StripeSubscriptionID *string            `gorm:"column:stripe_subscription_id;type:text"`
	StripePriceID        *string            `gorm:"column:stripe_price_id;type:text"`
	Status               SubscriptionStatus `gorm:"column:status;type:text;not null"`
	CurrentPeriodStart   *time.Time         `gorm:"column:current_period_start"`
	CurrentPeriodEnd     *time.Time         `gorm:"column:current_period_end"`
	CancelAtPeriodEnd    bool               `gorm:"column:cancel_at_period_end;not null;default:false"`
	CreatedAt            time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt            time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// IsActive reports whether renders are covered by the subscription.
func (s *Subscription) IsActive() bool {
	return s != nil && s.Status == SubscriptionStatusActive
}
