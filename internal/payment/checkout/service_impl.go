package checkout

import (
	"context"
	"strings"

	"github.com/smallbiznis/htmlpdf/internal/config"
	paymentdomain "github.com/smallbiznis/htmlpdf/internal/payment/domain"
	subscriptiondomain "github.com/smallbiznis/htmlpdf/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	PlanPro        = "pro"
	PlanEnterprise = "enterprise"
)

type Params struct {
	fx.In

	Log             *zap.Logger
	Cfg             config.Config
	Gateway         paymentdomain.Gateway
	SubscriptionSvc subscriptiondomain.Service
}

type Service struct {
	log             *zap.Logger
	cfg             config.StripeConfig
	gateway         paymentdomain.Gateway
	subscriptionSvc subscriptiondomain.Service
}

func NewService(p Params) paymentdomain.CheckoutService {
	return &Service{
		log:             p.Log.Named("payment.checkout"),
		cfg:             p.Cfg.Stripe,
		gateway:         p.Gateway,
		subscriptionSvc: p.SubscriptionSvc,
	}
}

// CreateSession reuses the user's provider customer when one is linked and
// otherwise creates it, then opens a subscription checkout for the price.
func (s *Service) CreateSession(ctx context.Context, userID string, req paymentdomain.CheckoutRequest) (*paymentdomain.CheckoutResponse, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, paymentdomain.ErrInvalidUser
	}
	if s.gateway == nil {
		return nil, paymentdomain.ErrNotConfigured
	}

	priceID, err := s.resolvePrice(req)
	if err != nil {
		return nil, err
	}

	existing, err := s.subscriptionSvc.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	customerID := ""
	if existing != nil {
		customerID = existing.StripeCustomerID
	}
	if customerID == "" {
		customerID, err = s.gateway.CreateCustomer(ctx, userID, req.Email)
		if err != nil {
			s.log.Error("create billing customer failed", zap.String("user_id", userID), zap.Error(err))
			return nil, err
		}
		if _, err := s.subscriptionSvc.EnsureCustomer(ctx, userID, customerID); err != nil {
			return nil, err
		}
	}

	url, err := s.gateway.CreateCheckoutSession(ctx, paymentdomain.CheckoutSessionParams{
		CustomerID: customerID,
		PriceID:    priceID,
		UserID:     userID,
		SuccessURL: s.cfg.AppURL + "/dashboard?success=true",
		CancelURL:  s.cfg.AppURL + "/pricing?canceled=true",
	})
	if err != nil {
		s.log.Error("create checkout session failed", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}
	return &paymentdomain.CheckoutResponse{URL: url}, nil
}

func (s *Service) resolvePrice(req paymentdomain.CheckoutRequest) (string, error) {
	if priceID := strings.TrimSpace(req.PriceID); priceID != "" {
		return priceID, nil
	}
	switch strings.ToLower(strings.TrimSpace(req.Plan)) {
	case PlanEnterprise:
		if s.cfg.EnterprisePriceID != "" {
			return s.cfg.EnterprisePriceID, nil
		}
	case PlanPro, "":
		if s.cfg.ProPriceID != "" {
			return s.cfg.ProPriceID, nil
		}
	}
	return "", paymentdomain.ErrInvalidPrice
}
