// Package domain contains persistence models for render metering.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Entitlement classifies an admitted render.
type Entitlement string

const (
	EntitlementFree         Entitlement = "free"
	EntitlementSubscription Entitlement = "subscription"
	EntitlementPayPerUse    Entitlement = "pay_per_use"
)

// Billable reports whether the entitlement carries a charge.
func (e Entitlement) Billable() bool {
	return e == EntitlementSubscription || e == EntitlementPayPerUse
}

// UserMetering is the per-user free-tier counter and its window.
// The counter is only meaningful while FreeTierResetAt is in the future.
type UserMetering struct {
	UserID          string    `gorm:"column:user_id;type:text;primaryKey"`
	FreeTierUsed    int       `gorm:"column:free_tier_used;not null;default:0"`
	FreeTierResetAt time.Time `gorm:"column:free_tier_reset_at;not null"`
	CreatedAt       time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (UserMetering) TableName() string { return "user_metering" }

// Expired reports whether the window has elapsed at now.
func (m UserMetering) Expired(now time.Time) bool {
	return now.After(m.FreeTierResetAt)
}

// UsageLog is one admitted and rendered request. Append-only.
type UsageLog struct {
	ID           snowflake.ID  `gorm:"primaryKey"`
	UserID       string        `gorm:"column:user_id;type:text;not null;index:idx_usage_logs_user_created,priority:1"`
	APIKeyID     *snowflake.ID `gorm:"column:api_key_id"`
	RenderID     string        `gorm:"column:render_id;type:text;not null;uniqueIndex:ux_usage_logs_render_id"`
	PDFGenerated bool          `gorm:"column:pdf_generated;not null;default:true"`
	CostCents    int           `gorm:"column:cost_cents;not null;default:0"`
	Entitlement  Entitlement   `gorm:"column:entitlement;type:text;not null"`
	CreatedAt    time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP;index:idx_usage_logs_user_created,priority:2"`
}

// TableName sets the database table name.
func (UsageLog) TableName() string { return "usage_logs" }

// OutboxStatus tracks a render through accounting.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusRendered  OutboxStatus = "rendered"
	OutboxStatusRecorded  OutboxStatus = "recorded"
	OutboxStatusFailed    OutboxStatus = "failed"
	OutboxStatusAbandoned OutboxStatus = "abandoned"
)

// OutboxEntry is written before a render starts so a lost accounting write can be replayed.
type OutboxEntry struct {
	ID          snowflake.ID  `gorm:"primaryKey"`
	RenderID    string        `gorm:"column:render_id;type:text;not null;uniqueIndex:ux_usage_outbox_render_id"`
	UserID      string        `gorm:"column:user_id;type:text;not null"`
	APIKeyID    *snowflake.ID `gorm:"column:api_key_id"`
	Entitlement Entitlement   `gorm:"column:entitlement;type:text;not null"`
	CostCents   int           `gorm:"column:cost_cents;not null;default:0"`
	Status      OutboxStatus  `gorm:"column:status;type:text;not null;index:idx_usage_outbox_status_updated,priority:1"`
	Attempts    int           `gorm:"column:attempts;not null;default:0"`
	LastError   *string       `gorm:"column:last_error;type:text"`
	CreatedAt   time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP;index:idx_usage_outbox_status_updated,priority:2"`
}

// TableName sets the database table name.
func (OutboxEntry) TableName() string { return "usage_outbox" }
