package accountingmetrics

import (
	"context"
	"time"

	subscriptiondomain "github.com/smallbiznis/htmlpdf/internal/subscription/domain"
	usagedomain "github.com/smallbiznis/htmlpdf/internal/usage/domain"
	"gorm.io/gorm"
)

var backlogStatuses = []usagedomain.OutboxStatus{
	usagedomain.OutboxStatusPending,
	usagedomain.OutboxStatusRendered,
}

var entitlements = []usagedomain.Entitlement{
	usagedomain.EntitlementFree,
	usagedomain.EntitlementSubscription,
	usagedomain.EntitlementPayPerUse,
}

// Snapshot is one read of the accounting tables.
type Snapshot struct {
	Renders             map[usagedomain.Entitlement]int64
	CostCents           map[usagedomain.Entitlement]int64
	Backlog             map[usagedomain.OutboxStatus]int64
	ActiveSubscriptions int64
	TakenAt             time.Time
}

type entitlementRow struct {
	Entitlement usagedomain.Entitlement
	Renders     int64
	CostCents   int64
}

type statusRow struct {
	Status usagedomain.OutboxStatus
	Total  int64
}

// TakeSnapshot aggregates today's usage, the outbox backlog and active
// subscriptions. Values are absolute so every replica reports the same series.
func TakeSnapshot(ctx context.Context, db *gorm.DB, now time.Time) (*Snapshot, error) {
	now = now.UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	snap := &Snapshot{
		Renders:   make(map[usagedomain.Entitlement]int64, len(entitlements)),
		CostCents: make(map[usagedomain.Entitlement]int64, len(entitlements)),
		Backlog:   make(map[usagedomain.OutboxStatus]int64, len(backlogStatuses)),
		TakenAt:   now,
	}
	for _, e := range entitlements {
		snap.Renders[e] = 0
		snap.CostCents[e] = 0
	}
	for _, s := range backlogStatuses {
		snap.Backlog[s] = 0
	}

	var usage []entitlementRow
	if err := db.WithContext(ctx).
		Model(&usagedomain.UsageLog{}).
		Select("entitlement, COUNT(*) AS renders, COALESCE(SUM(cost_cents), 0) AS cost_cents").
		Where("created_at >= ?", dayStart).
		Group("entitlement").
		Scan(&usage).Error; err != nil {
		return nil, err
	}
	for _, row := range usage {
		snap.Renders[row.Entitlement] = row.Renders
		snap.CostCents[row.Entitlement] = row.CostCents
	}

	var backlog []statusRow
	if err := db.WithContext(ctx).
		Model(&usagedomain.OutboxEntry{}).
		Select("status, COUNT(*) AS total").
		Where("status IN ?", backlogStatuses).
		Group("status").
		Scan(&backlog).Error; err != nil {
		return nil, err
	}
	for _, row := range backlog {
		snap.Backlog[row.Status] = row.Total
	}

	if err := db.WithContext(ctx).
		Model(&subscriptiondomain.Subscription{}).
		Where("status = ?", subscriptiondomain.SubscriptionStatusActive).
		Count(&snap.ActiveSubscriptions).Error; err != nil {
		return nil, err
	}
	return snap, nil
}

func (c *collectors) apply(snap *Snapshot) {
	for e, v := range snap.Renders {
		c.rendersToday.WithLabelValues(string(e)).Set(float64(v))
	}
	for e, v := range snap.CostCents {
		c.costCentsToday.WithLabelValues(string(e)).Set(float64(v))
	}
	for s, v := range snap.Backlog {
		c.outboxBacklog.WithLabelValues(string(s)).Set(float64(v))
	}
	c.activeSubscriptions.Set(float64(snap.ActiveSubscriptions))
	c.lastSnapshot.Set(float64(snap.TakenAt.Unix()))
}
