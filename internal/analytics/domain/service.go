package domain

import (
	"context"
	"errors"
	"time"
)

const (
	DefaultDays = 30
	MaxDays     = 365
	dayLayout   = "2006-01-02"
)

type Service interface {
	Usage(ctx context.Context, userID string, days int) (*UsageReport, error)
	Status(ctx context.Context, userID string) (*MeteringStatus, error)
}

type Period struct {
	Days      int       `json:"days"`
	StartDate time.Time `json:"startDate"`
}

type DailyUsage struct {
	Count int `json:"count"`
	Cost  int `json:"cost"`
}

// UsageReport aggregates usage_logs per UTC day. Costs are in cents.
type UsageReport struct {
	Period    Period                `json:"period"`
	Total     int                   `json:"total"`
	TotalCost int                   `json:"totalCost"`
	Daily     map[string]DailyUsage `json:"daily"`
}

// DayKey formats t as the report's day bucket.
func DayKey(t time.Time) string {
	return t.UTC().Format(dayLayout)
}

// MeteringStatus is the caller's current free-tier window. A user who has
// never rendered has no window yet.
type MeteringStatus struct {
	FreeTierUsed       int        `json:"free_tier_used"`
	FreeTierLimit      int        `json:"free_tier_limit"`
	FreeTierRemaining  int        `json:"free_tier_remaining"`
	FreeTierResetAt    *time.Time `json:"free_tier_reset_at"`
	WindowExpired      bool       `json:"window_expired"`
	SubscriptionStatus string     `json:"subscription_status"`
	HardCap            bool       `json:"hard_cap"`
}

var (
	ErrInvalidUser = errors.New("invalid_user")
	ErrInvalidDays = errors.New("invalid_days")
)
