package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/htmlpdf/internal/clock"
	subscriptiondomain "github.com/smallbiznis/htmlpdf/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  subscriptiondomain.Repository
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  subscriptiondomain.Repository
	clock clock.Clock
}

func New(p Params) subscriptiondomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("subscription.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: p.Clock,
	}
}

func (s *Service) GetByUserID(ctx context.Context, userID string) (*subscriptiondomain.Subscription, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, subscriptiondomain.ErrInvalidUser
	}
	return s.repo.FindByUserID(ctx, s.db, userID)
}

func (s *Service) HasActiveSubscription(ctx context.Context, userID string) (bool, error) {
	sub, err := s.GetByUserID(ctx, userID)
	if err != nil {
		return false, err
	}
	return sub.IsActive(), nil
}

// EnsureCustomer links a provider customer to the user, creating an
// incomplete row the first time. An existing row is returned as is.
func (s *Service) EnsureCustomer(ctx context.Context, userID, customerID string) (*subscriptiondomain.Subscription, error) {
	userID = strings.TrimSpace(userID)
	customerID = strings.TrimSpace(customerID)
	if userID == "" {
		return nil, subscriptiondomain.ErrInvalidUser
	}
	if customerID == "" {
		return nil, subscriptiondomain.ErrInvalidCustomer
	}

	now := s.clock.Now()
	sub := &subscriptiondomain.Subscription{
		ID:               s.genID.Generate(),
		UserID:           userID,
		StripeCustomerID: customerID,
		Status:           subscriptiondomain.SubscriptionStatusIncomplete,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	created, err := s.repo.Insert(ctx, s.db, sub)
	if err != nil {
		return nil, err
	}
	if created {
		s.log.Info("billing customer linked", zap.String("user_id", userID))
		return sub, nil
	}
	return s.repo.FindByUserID(ctx, s.db, userID)
}

// ApplyProviderUpdate overwrites the mirror row for the update's customer.
// It returns false when no row is linked to that customer.
func (s *Service) ApplyProviderUpdate(ctx context.Context, update subscriptiondomain.ProviderUpdate) (bool, error) {
	update.CustomerID = strings.TrimSpace(update.CustomerID)
	if update.CustomerID == "" {
		return false, subscriptiondomain.ErrInvalidCustomer
	}
	if strings.TrimSpace(string(update.Status)) == "" {
		return false, subscriptiondomain.ErrInvalidStatus
	}

	affected, err := s.repo.UpdateFromProvider(ctx, s.db, update, s.clock.Now())
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *Service) SetStatusByCustomer(ctx context.Context, customerID string, status subscriptiondomain.SubscriptionStatus) (bool, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return false, subscriptiondomain.ErrInvalidCustomer
	}
	if strings.TrimSpace(string(status)) == "" {
		return false, subscriptiondomain.ErrInvalidStatus
	}

	affected, err := s.repo.UpdateStatusByCustomer(ctx, s.db, customerID, status, s.clock.Now())
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
