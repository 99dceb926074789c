package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Ledger owns the metering counter, the usage log and the accounting outbox.
type Ledger interface {
	GetMeteringState(ctx context.Context, userID string) (*UserMetering, error)
	InitMeteringState(ctx context.Context, userID string) (*UserMetering, error)
	RolloverIfExpired(ctx context.Context, userID string, now time.Time) (*UserMetering, bool, error)
	IncrementFreeTierUsage(ctx context.Context, userID string) error

	BeginRender(ctx context.Context, entry OutboxEntry) error
	MarkRendered(ctx context.Context, renderID string) error
	MarkRenderFailed(ctx context.Context, renderID string, cause error) error
	RecordEvent(ctx context.Context, req RecordRequest) (*RecordResult, error)
}

type Repository interface {
	GetMetering(ctx context.Context, db *gorm.DB, userID string) (*UserMetering, error)
	InsertMetering(ctx context.Context, db *gorm.DB, state *UserMetering) (bool, error)
	Rollover(ctx context.Context, db *gorm.DB, userID string, now, resetAt time.Time) (bool, error)
	ClaimFreeUnit(ctx context.Context, db *gorm.DB, userID string, limit int, now time.Time) (bool, error)
	IncrementFreeTier(ctx context.Context, db *gorm.DB, userID string, now time.Time) error

	InsertUsageLog(ctx context.Context, db *gorm.DB, log *UsageLog) (bool, error)

	InsertOutbox(ctx context.Context, db *gorm.DB, entry *OutboxEntry) error
	UpdateOutboxStatus(ctx context.Context, db *gorm.DB, renderID string, status OutboxStatus, lastErr *string, now time.Time) error
	LockOutbox(ctx context.Context, db *gorm.DB, filter OutboxFilter) ([]OutboxEntry, error)
}

// RecordRequest describes a finished render to be billed.
type RecordRequest struct {
	RenderID    string
	UserID      string
	APIKeyID    *snowflake.ID
	Entitlement Entitlement
	CostCents   int
}

// RecordResult is what was actually written. A free request that lost the
// race for the last free unit comes back as pay-per-use.
type RecordResult struct {
	Entitlement Entitlement
	CostCents   int
	Duplicate   bool
}

// OutboxFilter selects outbox rows for reconciliation.
type OutboxFilter struct {
	Status        OutboxStatus
	UpdatedBefore time.Time
	Limit         int
	SkipLocked    bool
}

var (
	ErrInvalidUser     = errors.New("invalid_user")
	ErrInvalidRenderID = errors.New("invalid_render_id")
	ErrStateNotFound   = errors.New("metering_state_not_found")
)
