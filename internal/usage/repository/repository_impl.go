package repository

import (
	"context"
	"time"

	usagedomain "github.com/smallbiznis/htmlpdf/internal/usage/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() usagedomain.Repository {
	return &repo{}
}

func (r *repo) GetMetering(ctx context.Context, db *gorm.DB, userID string) (*usagedomain.UserMetering, error) {
	var state usagedomain.UserMetering
	err := db.WithContext(ctx).Raw(
		`SELECT user_id, free_tier_used, free_tier_reset_at, created_at, updated_at
		 FROM user_metering WHERE user_id = ?`,
		userID,
	).Scan(&state).Error
	if err != nil {
		return nil, err
	}
	if state.UserID == "" {
		return nil, nil
	}
	return &state, nil
}

// InsertMetering creates the row unless a concurrent request already did.
func (r *repo) InsertMetering(ctx context.Context, db *gorm.DB, state *usagedomain.UserMetering) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(state)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Rollover resets the window only if it has elapsed, so concurrent callers roll it once.
func (r *repo) Rollover(ctx context.Context, db *gorm.DB, userID string, now, resetAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE user_metering
		 SET free_tier_used = 0, free_tier_reset_at = ?, updated_at = ?
		 WHERE user_id = ? AND free_tier_reset_at < ?`,
		resetAt,
		now,
		userID,
		now,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ClaimFreeUnit takes one free unit in a single conditional write.
func (r *repo) ClaimFreeUnit(ctx context.Context, db *gorm.DB, userID string, limit int, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE user_metering
		 SET free_tier_used = free_tier_used + 1, updated_at = ?
		 WHERE user_id = ? AND free_tier_used < ? AND free_tier_reset_at >= ?`,
		now,
		userID,
		limit,
		now,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) IncrementFreeTier(ctx context.Context, db *gorm.DB, userID string, now time.Time) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE user_metering SET free_tier_used = free_tier_used + 1, updated_at = ? WHERE user_id = ?`,
		now,
		userID,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return usagedomain.ErrStateNotFound
	}
	return nil
}

// InsertUsageLog returns false when the render was already recorded.
func (r *repo) InsertUsageLog(ctx context.Context, db *gorm.DB, log *usagedomain.UsageLog) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "render_id"}}, DoNothing: true}).
		Create(log)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) InsertOutbox(ctx context.Context, db *gorm.DB, entry *usagedomain.OutboxEntry) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO usage_outbox (id, render_id, user_id, api_key_id, entitlement, cost_cents, status, attempts, last_error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.RenderID,
		entry.UserID,
		entry.APIKeyID,
		entry.Entitlement,
		entry.CostCents,
		entry.Status,
		entry.Attempts,
		entry.LastError,
		entry.CreatedAt,
		entry.UpdatedAt,
	).Error
}

func (r *repo) UpdateOutboxStatus(ctx context.Context, db *gorm.DB, renderID string, status usagedomain.OutboxStatus, lastErr *string, now time.Time) error {
	if lastErr != nil {
		return db.WithContext(ctx).Exec(
			`UPDATE usage_outbox SET status = ?, last_error = ?, attempts = attempts + 1, updated_at = ? WHERE render_id = ?`,
			status,
			*lastErr,
			now,
			renderID,
		).Error
	}
	return db.WithContext(ctx).Exec(
		`UPDATE usage_outbox SET status = ?, updated_at = ? WHERE render_id = ?`,
		status,
		now,
		renderID,
	).Error
}

func (r *repo) LockOutbox(ctx context.Context, db *gorm.DB, filter usagedomain.OutboxFilter) ([]usagedomain.OutboxEntry, error) {
	query := `SELECT id, render_id, user_id, api_key_id, entitlement, cost_cents, status, attempts, last_error, created_at, updated_at
		 FROM usage_outbox
		 WHERE status = ? AND updated_at < ?
		 ORDER BY updated_at ASC
		 LIMIT ?`
	if filter.SkipLocked {
		query += ` FOR UPDATE SKIP LOCKED`
	}

	var rows []usagedomain.OutboxEntry
	err := db.WithContext(ctx).Raw(query, filter.Status, filter.UpdatedBefore, filter.Limit).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
