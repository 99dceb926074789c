package service

import (
	"context"
	"strings"

	"github.com/smallbiznis/htmlpdf/internal/clock"
	"github.com/smallbiznis/htmlpdf/internal/config"
	entitlementdomain "github.com/smallbiznis/htmlpdf/internal/entitlement/domain"
	"github.com/smallbiznis/htmlpdf/internal/observability/metrics"
	subscriptiondomain "github.com/smallbiznis/htmlpdf/internal/subscription/domain"
	usagedomain "github.com/smallbiznis/htmlpdf/internal/usage/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log             *zap.Logger
	Ledger          usagedomain.Ledger
	SubscriptionSvc subscriptiondomain.Service
	Clock           clock.Clock
	Metering        *config.MeteringConfigHolder
	Metrics         *metrics.Metrics `optional:"true"`
}

type Service struct {
	log             *zap.Logger
	ledger          usagedomain.Ledger
	subscriptionSvc subscriptiondomain.Service
	clock           clock.Clock
	metering        *config.MeteringConfigHolder
	metrics         *metrics.Metrics
}

func New(p Params) entitlementdomain.Resolver {
	return &Service{
		log:             p.Log.Named("entitlement.resolver"),
		ledger:          p.Ledger,
		subscriptionSvc: p.SubscriptionSvc,
		clock:           p.Clock,
		metering:        p.Metering,
		metrics:         p.Metrics,
	}
}

// Decide applies the admission rules in order: a new user or an elapsed
// window is free, an active subscription is billed per render, a window with
// free units left is free, anything else is pay-per-use. Pay-per-use is
// refused only when the hard cap is configured.
func (s *Service) Decide(ctx context.Context, userID string) (*entitlementdomain.Decision, error) {
	ctx, span := otel.Tracer("htmlpdf/entitlement").Start(ctx, "entitlement.decide")
	defer span.End()

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, entitlementdomain.ErrInvalidUser
	}

	decision, err := s.decide(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("entitlement", string(decision.Entitlement)),
		attribute.String("reason", string(decision.Reason)),
		attribute.Bool("admitted", decision.Admitted),
	)
	s.metrics.RecordAdmission(ctx, string(decision.Entitlement), decision.Admitted)
	return decision, nil
}

func (s *Service) decide(ctx context.Context, userID string) (*entitlementdomain.Decision, error) {
	cfg := s.metering.Get()
	now := s.clock.Now()

	state, err := s.ledger.GetMeteringState(ctx, userID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		state, err = s.ledger.InitMeteringState(ctx, userID)
		if err != nil {
			return nil, err
		}
		return free(state, entitlementdomain.ReasonNewUser), nil
	}

	if state.Expired(now) {
		state, _, err = s.ledger.RolloverIfExpired(ctx, userID, now)
		if err != nil {
			return nil, err
		}
		return free(state, entitlementdomain.ReasonWindowRollover), nil
	}

	active, err := s.subscriptionSvc.HasActiveSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	if active {
		return &entitlementdomain.Decision{
			Admitted:    true,
			Entitlement: usagedomain.EntitlementSubscription,
			CostCents:   cfg.SubscriptionCents,
			Reason:      entitlementdomain.ReasonSubscription,
			State:       state,
		}, nil
	}

	if state.FreeTierUsed < cfg.FreeTierLimit {
		return free(state, entitlementdomain.ReasonWithinFreeTier), nil
	}

	if cfg.HardCap {
		s.log.Info("render refused by hard cap",
			zap.String("user_id", userID),
			zap.Int("free_tier_used", state.FreeTierUsed),
		)
	}
	return &entitlementdomain.Decision{
		Admitted:    !cfg.HardCap,
		Entitlement: usagedomain.EntitlementPayPerUse,
		CostCents:   cfg.PayPerUseCents,
		Reason:      entitlementdomain.ReasonFreeTierSpent,
		State:       state,
	}, nil
}

func free(state *usagedomain.UserMetering, reason entitlementdomain.Reason) *entitlementdomain.Decision {
	return &entitlementdomain.Decision{
		Admitted:    true,
		Entitlement: usagedomain.EntitlementFree,
		CostCents:   0,
		Reason:      reason,
		State:       state,
	}
}
