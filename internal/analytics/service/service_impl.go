package service

import (
	"context"
	"strings"
	"time"

	analyticsdomain "github.com/smallbiznis/htmlpdf/internal/analytics/domain"
	"github.com/smallbiznis/htmlpdf/internal/clock"
	"github.com/smallbiznis/htmlpdf/internal/config"
	subscriptiondomain "github.com/smallbiznis/htmlpdf/internal/subscription/domain"
	usagedomain "github.com/smallbiznis/htmlpdf/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	Ledger          usagedomain.Ledger
	SubscriptionSvc subscriptiondomain.Service
	Clock           clock.Clock
	Metering        *config.MeteringConfigHolder
}

type Service struct {
	db              *gorm.DB
	log             *zap.Logger
	ledger          usagedomain.Ledger
	subscriptionSvc subscriptiondomain.Service
	clock           clock.Clock
	metering        *config.MeteringConfigHolder
}

func New(p Params) analyticsdomain.Service {
	return &Service{
		db:              p.DB,
		log:             p.Log.Named("analytics.service"),
		ledger:          p.Ledger,
		subscriptionSvc: p.SubscriptionSvc,
		clock:           p.Clock,
		metering:        p.Metering,
	}
}

type usageRow struct {
	CreatedAt time.Time
	CostCents int
}

func (s *Service) Usage(ctx context.Context, userID string, days int) (*analyticsdomain.UsageReport, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, analyticsdomain.ErrInvalidUser
	}
	if days == 0 {
		days = analyticsdomain.DefaultDays
	}
	if days < 1 || days > analyticsdomain.MaxDays {
		return nil, analyticsdomain.ErrInvalidDays
	}

	start := s.clock.Now().AddDate(0, 0, -days)

	var rows []usageRow
	err := s.db.WithContext(ctx).
		Model(&usagedomain.UsageLog{}).
		Select("created_at", "cost_cents").
		Where("user_id = ? AND created_at >= ?", userID, start).
		Order("created_at DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	report := &analyticsdomain.UsageReport{
		Period: analyticsdomain.Period{Days: days, StartDate: start},
		Daily:  make(map[string]analyticsdomain.DailyUsage),
	}
	for _, row := range rows {
		key := analyticsdomain.DayKey(row.CreatedAt)
		day := report.Daily[key]
		day.Count++
		day.Cost += row.CostCents
		report.Daily[key] = day

		report.Total++
		report.TotalCost += row.CostCents
	}
	return report, nil
}

// Status reads the metering row without creating or rolling it over.
func (s *Service) Status(ctx context.Context, userID string) (*analyticsdomain.MeteringStatus, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, analyticsdomain.ErrInvalidUser
	}

	cfg := s.metering.Get()
	status := &analyticsdomain.MeteringStatus{
		FreeTierLimit:      cfg.FreeTierLimit,
		FreeTierRemaining:  cfg.FreeTierLimit,
		SubscriptionStatus: "none",
		HardCap:            cfg.HardCap,
	}

	state, err := s.ledger.GetMeteringState(ctx, userID)
	if err != nil {
		return nil, err
	}
	if state != nil {
		resetAt := state.FreeTierResetAt
		status.FreeTierResetAt = &resetAt
		status.WindowExpired = state.Expired(s.clock.Now())
		if !status.WindowExpired {
			status.FreeTierUsed = state.FreeTierUsed
			status.FreeTierRemaining = max(cfg.FreeTierLimit-state.FreeTierUsed, 0)
		}
	}

	sub, err := s.subscriptionSvc.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub != nil {
		status.SubscriptionStatus = string(sub.Status)
	}
	return status, nil
}
