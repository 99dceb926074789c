package ratelimit

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/htmlpdf/internal/config"
	"github.com/smallbiznis/htmlpdf/internal/observability/metrics"
	"go.uber.org/zap"
)

const (
	keyRenderAPIKey = "htmlpdf:render:key:%s"
	endpointRender  = "/api/pdf/generate"
)

// RenderLimiter throttles render requests per API key. A nil limiter allows everything.
type RenderLimiter struct {
	bucket  *TokenBucket
	rate    float64
	burst   int
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewRenderLimiter(bucket *TokenBucket, cfg config.Config, log *zap.Logger, m *metrics.Metrics) *RenderLimiter {
	if bucket == nil || !cfg.RateLimit.Enabled {
		return nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RenderLimiter{
		bucket:  bucket,
		rate:    cfg.RateLimit.RenderRate,
		burst:   cfg.RateLimit.RenderBurst,
		log:     log.Named("ratelimit.render"),
		metrics: m,
	}
}

func (l *RenderLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Allow takes a token for the key. Redis failures fail open.
func (l *RenderLimiter) Allow(ctx context.Context, apiKeyID string) *Result {
	if !l.Enabled() {
		return &Result{Allowed: true}
	}

	res, err := l.bucket.Allow(ctx, fmt.Sprintf(keyRenderAPIKey, strings.TrimSpace(apiKeyID)), l.rate, l.burst)
	if err != nil {
		l.log.Warn("rate limit check failed, allowing request",
			zap.String("api_key_id", apiKeyID),
			zap.Error(err),
		)
		l.metrics.RecordRateLimitAllowed(ctx, endpointRender)
		return &Result{Allowed: true, Limit: l.burst}
	}

	if res.Allowed {
		l.metrics.RecordRateLimitAllowed(ctx, endpointRender)
	} else {
		l.metrics.RecordRateLimitDenied(ctx, endpointRender, "bucket_empty")
	}
	return res
}
