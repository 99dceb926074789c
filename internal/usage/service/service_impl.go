package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/htmlpdf/internal/clock"
	"github.com/smallbiznis/htmlpdf/internal/config"
	usagedomain "github.com/smallbiznis/htmlpdf/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxErrorLength = 512

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     usagedomain.Repository
	Clock    clock.Clock
	Metering *config.MeteringConfigHolder
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     usagedomain.Repository
	clock    clock.Clock
	metering *config.MeteringConfigHolder
}

func NewService(p Params) usagedomain.Ledger {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("usage.ledger"),
		genID:    p.GenID,
		repo:     p.Repo,
		clock:    p.Clock,
		metering: p.Metering,
	}
}

func (s *Service) GetMeteringState(ctx context.Context, userID string) (*usagedomain.UserMetering, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, usagedomain.ErrInvalidUser
	}
	return s.repo.GetMetering(ctx, s.db, userID)
}

// InitMeteringState creates a zeroed window. If another request won the insert,
// the existing row is returned unchanged.
func (s *Service) InitMeteringState(ctx context.Context, userID string) (*usagedomain.UserMetering, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, usagedomain.ErrInvalidUser
	}

	now := s.clock.Now()
	state := &usagedomain.UserMetering{
		UserID:          userID,
		FreeTierUsed:    0,
		FreeTierResetAt: now.Add(s.metering.Get().Window()),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	created, err := s.repo.InsertMetering(ctx, s.db, state)
	if err != nil {
		return nil, err
	}
	if created {
		s.log.Debug("metering state initialized", zap.String("user_id", userID))
		return state, nil
	}

	existing, err := s.repo.GetMetering(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, usagedomain.ErrStateNotFound
	}
	return existing, nil
}

// RolloverIfExpired starts a fresh window at now when the current one has elapsed.
// The returned flag reports whether this call performed the rollover.
func (s *Service) RolloverIfExpired(ctx context.Context, userID string, now time.Time) (*usagedomain.UserMetering, bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, false, usagedomain.ErrInvalidUser
	}

	rolled, err := s.repo.Rollover(ctx, s.db, userID, now, now.Add(s.metering.Get().Window()))
	if err != nil {
		return nil, false, err
	}

	state, err := s.repo.GetMetering(ctx, s.db, userID)
	if err != nil {
		return nil, false, err
	}
	if state == nil {
		return nil, false, usagedomain.ErrStateNotFound
	}
	if rolled {
		s.log.Info("free tier window rolled over",
			zap.String("user_id", userID),
			zap.Time("free_tier_reset_at", state.FreeTierResetAt),
		)
	}
	return state, rolled, nil
}

func (s *Service) IncrementFreeTierUsage(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return usagedomain.ErrInvalidUser
	}
	return s.repo.IncrementFreeTier(ctx, s.db, userID, s.clock.Now())
}

// BeginRender writes the pending outbox row before the renderer runs.
func (s *Service) BeginRender(ctx context.Context, entry usagedomain.OutboxEntry) error {
	if strings.TrimSpace(entry.RenderID) == "" {
		return usagedomain.ErrInvalidRenderID
	}
	if strings.TrimSpace(entry.UserID) == "" {
		return usagedomain.ErrInvalidUser
	}

	now := s.clock.Now()
	if entry.ID == 0 {
		entry.ID = s.genID.Generate()
	}
	entry.Status = usagedomain.OutboxStatusPending
	entry.CreatedAt = now
	entry.UpdatedAt = now
	return s.repo.InsertOutbox(ctx, s.db, &entry)
}

// MarkRendered moves a pending row to rendered once the PDF exists. From then
// on the reconciler replays the row instead of abandoning it.
func (s *Service) MarkRendered(ctx context.Context, renderID string) error {
	if strings.TrimSpace(renderID) == "" {
		return usagedomain.ErrInvalidRenderID
	}
	return s.repo.UpdateOutboxStatus(ctx, s.db, renderID, usagedomain.OutboxStatusRendered, nil, s.clock.Now())
}

func (s *Service) MarkRenderFailed(ctx context.Context, renderID string, cause error) error {
	if strings.TrimSpace(renderID) == "" {
		return usagedomain.ErrInvalidRenderID
	}
	var msg *string
	if cause != nil {
		text := truncate(cause.Error(), maxErrorLength)
		msg = &text
	}
	return s.repo.UpdateOutboxStatus(ctx, s.db, renderID, usagedomain.OutboxStatusFailed, msg, s.clock.Now())
}

// RecordEvent appends the usage log for a finished render. Free requests claim
// their unit here, in the same transaction as the insert, so a window never
// grants more than the configured number of free renders. A render id that was
// already recorded is a no-op.
func (s *Service) RecordEvent(ctx context.Context, req usagedomain.RecordRequest) (*usagedomain.RecordResult, error) {
	if strings.TrimSpace(req.RenderID) == "" {
		return nil, usagedomain.ErrInvalidRenderID
	}
	if strings.TrimSpace(req.UserID) == "" {
		return nil, usagedomain.ErrInvalidUser
	}

	cfg := s.metering.Get()
	now := s.clock.Now()
	result := &usagedomain.RecordResult{Entitlement: req.Entitlement, CostCents: req.CostCents}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if result.Entitlement == usagedomain.EntitlementFree {
			claimed, err := s.repo.ClaimFreeUnit(ctx, tx, req.UserID, cfg.FreeTierLimit, now)
			if err != nil {
				return err
			}
			if !claimed {
				result.Entitlement = usagedomain.EntitlementPayPerUse
				result.CostCents = cfg.PayPerUseCents
			} else {
				result.CostCents = 0
			}
		}

		inserted, err := s.repo.InsertUsageLog(ctx, tx, &usagedomain.UsageLog{
			ID:           s.genID.Generate(),
			UserID:       req.UserID,
			APIKeyID:     req.APIKeyID,
			RenderID:     req.RenderID,
			PDFGenerated: true,
			CostCents:    result.CostCents,
			Entitlement:  result.Entitlement,
			CreatedAt:    now,
		})
		if err != nil {
			return err
		}
		if !inserted {
			return errDuplicateRender
		}

		return s.repo.UpdateOutboxStatus(ctx, tx, req.RenderID, usagedomain.OutboxStatusRecorded, nil, now)
	})
	if errors.Is(err, errDuplicateRender) {
		// Rolled back, including any claimed unit. Make sure the outbox stops retrying.
		if err := s.repo.UpdateOutboxStatus(ctx, s.db, req.RenderID, usagedomain.OutboxStatusRecorded, nil, now); err != nil {
			return nil, err
		}
		return &usagedomain.RecordResult{Entitlement: req.Entitlement, CostCents: req.CostCents, Duplicate: true}, nil
	}
	if err != nil {
		return nil, err
	}

	if result.Entitlement != req.Entitlement {
		s.log.Info("free unit exhausted at record time, billed as pay-per-use",
			zap.String("user_id", req.UserID),
			zap.String("render_id", req.RenderID),
		)
	}
	return result, nil
}

var errDuplicateRender = errors.New("duplicate_render")

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}
