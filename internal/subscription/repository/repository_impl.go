package repository

import (
	"context"
	"time"

	subscriptiondomain "github.com/smallbiznis/htmlpdf/internal/subscription/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) FindByUserID(ctx context.Context, db *gorm.DB, userID string) (*subscriptiondomain.Subscription, error) {
	var sub subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, stripe_customer_id, stripe_subscription_id, stripe_price_id, status,
		        current_period_start, current_period_end, cancel_at_period_end, created_at, updated_at
		 FROM subscriptions WHERE user_id = ?`,
		userID,
	).Scan(&sub).Error
	if err != nil {
		return nil, err
	}
	if sub.ID == 0 {
		return nil, nil
	}
	return &sub, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, sub *subscriptiondomain.Subscription) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(sub)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) UpdateFromProvider(ctx context.Context, db *gorm.DB, update subscriptiondomain.ProviderUpdate, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET stripe_subscription_id = ?, stripe_price_id = ?, status = ?,
		     current_period_start = ?, current_period_end = ?, cancel_at_period_end = ?, updated_at = ?
		 WHERE stripe_customer_id = ?`,
		nullable(update.SubscriptionID),
		nullable(update.PriceID),
		update.Status,
		update.CurrentPeriodStart,
		update.CurrentPeriodEnd,
		update.CancelAtPeriodEnd,
		now,
		update.CustomerID,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) UpdateStatusByCustomer(ctx context.Context, db *gorm.DB, customerID string, status subscriptiondomain.SubscriptionStatus, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET status = ?, updated_at = ? WHERE stripe_customer_id = ?`,
		status,
		now,
		customerID,
	)
	return res.RowsAffected, res.Error
}

func nullable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
