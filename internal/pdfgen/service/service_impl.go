package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/gosimple/slug"
	apikeydomain "github.com/smallbiznis/htmlpdf/internal/apikey/domain"
	"github.com/smallbiznis/htmlpdf/internal/clock"
	entitlementdomain "github.com/smallbiznis/htmlpdf/internal/entitlement/domain"
	obscontext "github.com/smallbiznis/htmlpdf/internal/observability/context"
	obslogger "github.com/smallbiznis/htmlpdf/internal/observability/logger"
	"github.com/smallbiznis/htmlpdf/internal/observability/metrics"
	pdfgendomain "github.com/smallbiznis/htmlpdf/internal/pdfgen/domain"
	"github.com/smallbiznis/htmlpdf/internal/ratelimit"
	"github.com/smallbiznis/htmlpdf/internal/renderer"
	usagedomain "github.com/smallbiznis/htmlpdf/internal/usage/domain"
	"github.com/smallbiznis/htmlpdf/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	outcomeSuccess        = "success"
	outcomeRenderFailure  = "render_failure"
	outcomeUnrecorded     = "accounting_failure"
	touchLastUsedTimeout  = 2 * time.Second
	ledgerWriteTimeout    = 10 * time.Second
	maxFilenameSlugLength = 120
)

type Params struct {
	fx.In

	Log         *zap.Logger
	Keys        apikeydomain.KeyStore
	Resolver    entitlementdomain.Resolver
	Ledger      usagedomain.Ledger
	Renderer    renderer.Renderer
	Clock       clock.Clock
	RateLimiter *ratelimit.RenderLimiter `optional:"true"`
	Metrics     *metrics.Metrics         `optional:"true"`
}

type Service struct {
	log         *zap.Logger
	keys        apikeydomain.KeyStore
	resolver    entitlementdomain.Resolver
	ledger      usagedomain.Ledger
	renderer    renderer.Renderer
	clock       clock.Clock
	rateLimiter *ratelimit.RenderLimiter
	metrics     *metrics.Metrics
	validate    *validator.Validate
}

func New(p Params) pdfgendomain.Pipeline {
	return &Service{
		log:         p.Log.Named("pdfgen.pipeline"),
		keys:        p.Keys,
		resolver:    p.Resolver,
		ledger:      p.Ledger,
		renderer:    p.Renderer,
		clock:       p.Clock,
		rateLimiter: p.RateLimiter,
		metrics:     p.Metrics,
		validate:    newValidator(),
	}
}

// Generate authenticates, admits, renders and records one request.
// No usage is recorded unless a PDF was produced, and a PDF that was
// produced is returned even when recording it fails.
func (s *Service) Generate(ctx context.Context, in pdfgendomain.GenerateInput) (*pdfgendomain.GenerateResult, error) {
	ctx, span := otel.Tracer("htmlpdf/pdfgen").Start(ctx, "pdfgen.generate")
	defer span.End()

	token := strings.TrimSpace(in.Token)
	if token == "" {
		span.SetStatus(codes.Error, "missing credential")
		return nil, pdfgendomain.ErrMissingCredential
	}

	identity, err := s.keys.Lookup(ctx, token)
	if err != nil {
		if errors.Is(err, apikeydomain.ErrNotFound) || errors.Is(err, apikeydomain.ErrInactive) {
			span.SetStatus(codes.Error, "invalid credential")
			return nil, pdfgendomain.ErrInvalidCredential
		}
		span.RecordError(err)
		return nil, errors.Join(pdfgendomain.ErrDependencyFailure, err)
	}

	keyID := identity.KeyID.String()
	ctx = obscontext.WithUserID(ctx, identity.UserID)
	ctx = obscontext.WithAPIKeyID(ctx, keyID)
	span.SetAttributes(attribute.String("api_key_id", keyID))
	log := obslogger.WithUser(obslogger.WithContext(ctx, s.log), identity.UserID, keyID)

	if s.rateLimiter.Enabled() {
		if res := s.rateLimiter.Allow(ctx, keyID); res != nil && !res.Allowed {
			return nil, &pdfgendomain.RateLimitError{RetryAfter: res.RetryAfter}
		}
	}

	s.touchLastUsed(ctx, log, identity.KeyID)

	decision, err := s.resolver.Decide(ctx, identity.UserID)
	if err != nil {
		span.RecordError(err)
		return nil, errors.Join(pdfgendomain.ErrDependencyFailure, err)
	}
	if !decision.Admitted {
		log.Info("render refused", zap.String("reason", string(decision.Reason)))
		return nil, pdfgendomain.ErrUsageLimitExceeded
	}

	req, err := decodeRequest(s.validate, in.Body)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	renderID := correlation.NewID(now)
	ctx = obscontext.WithRenderID(ctx, renderID)
	log = log.With(zap.String("render_id", renderID))
	span.SetAttributes(
		attribute.String("render_id", renderID),
		attribute.String("entitlement", string(decision.Entitlement)),
	)

	// From here on the caller going away stops nothing: the render runs under
	// the renderer's own timeout and a produced PDF is always accounted for.
	work := context.WithoutCancel(ctx)

	apiKeyID := identity.KeyID
	if err := s.withLedger(work, func(ctx context.Context) error {
		return s.ledger.BeginRender(ctx, usagedomain.OutboxEntry{
			RenderID:    renderID,
			UserID:      identity.UserID,
			APIKeyID:    &apiKeyID,
			Entitlement: decision.Entitlement,
			CostCents:   decision.CostCents,
		})
	}); err != nil {
		span.RecordError(err)
		return nil, errors.Join(pdfgendomain.ErrDependencyFailure, err)
	}

	started := time.Now()
	pdf, err := s.renderer.Render(work, req.HTML, req.Options())
	if err != nil {
		s.metrics.RecordRender(ctx, outcomeRenderFailure, time.Since(started))
		span.RecordError(err)
		span.SetStatus(codes.Error, "render failed")
		if markErr := s.withLedger(work, func(ctx context.Context) error {
			return s.ledger.MarkRenderFailed(ctx, renderID, err)
		}); markErr != nil {
			log.Warn("mark render failed", zap.Error(markErr))
		}
		log.Warn("render failed", zap.Error(err))
		return nil, errors.Join(pdfgendomain.ErrRenderFailure, err)
	}

	// A rendered row is replayed by the reconciler if the record below is lost.
	if err := s.withLedger(work, func(ctx context.Context) error {
		return s.ledger.MarkRendered(ctx, renderID)
	}); err != nil {
		s.metrics.RecordAccountingFailure(ctx, "mark_rendered")
		log.Error("render not marked as rendered", zap.Error(err))
	}

	result := &pdfgendomain.GenerateResult{
		PDF:         pdf,
		Filename:    filename(req.Filename),
		RenderID:    renderID,
		UserID:      identity.UserID,
		APIKeyID:    keyID,
		Entitlement: decision.Entitlement,
		CostCents:   decision.CostCents,
	}

	var recorded *usagedomain.RecordResult
	err = s.withLedger(work, func(ctx context.Context) error {
		var recErr error
		recorded, recErr = s.ledger.RecordEvent(ctx, usagedomain.RecordRequest{
			RenderID:    renderID,
			UserID:      identity.UserID,
			APIKeyID:    &apiKeyID,
			Entitlement: decision.Entitlement,
			CostCents:   decision.CostCents,
		})
		return recErr
	})
	if err != nil {
		s.metrics.RecordRender(ctx, outcomeUnrecorded, time.Since(started))
		s.metrics.RecordAccountingFailure(ctx, "record_event")
		log.Error("usage not recorded", zap.Error(err))
		return result, nil
	}

	result.Recorded = true
	result.Entitlement = recorded.Entitlement
	result.CostCents = recorded.CostCents
	s.metrics.RecordRender(ctx, outcomeSuccess, time.Since(started))
	log.Info("render completed",
		zap.String("entitlement", string(result.Entitlement)),
		zap.Int("cost_cents", result.CostCents),
		zap.Int("bytes", len(pdf)),
	)
	return result, nil
}

func (s *Service) withLedger(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, ledgerWriteTimeout)
	defer cancel()
	return fn(ctx)
}

func (s *Service) touchLastUsed(ctx context.Context, log *zap.Logger, keyID snowflake.ID) {
	touchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), touchLastUsedTimeout)
	defer cancel()
	if err := s.keys.TouchLastUsed(touchCtx, keyID, s.clock.Now()); err != nil {
		log.Warn("touch last used failed", zap.Error(err))
	}
}

func filename(requested string) string {
	name := strings.TrimSpace(requested)
	name = strings.TrimSuffix(strings.TrimSuffix(name, ".pdf"), ".PDF")
	if name == "" {
		return pdfgendomain.DefaultFilename
	}
	s := slug.Make(name)
	if len(s) > maxFilenameSlugLength {
		s = strings.TrimRight(s[:maxFilenameSlugLength], "-")
	}
	if s == "" {
		return pdfgendomain.DefaultFilename
	}
	return s + ".pdf"
}
