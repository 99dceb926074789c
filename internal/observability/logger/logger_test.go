package logger

import (
	"context"
	"testing"

	obscontext "github.com/smallbiznis/htmlpdf/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestBuildZapConfig(t *testing.T) {
	cfg, err := buildZapConfig(Config{Format: "console", Debug: true})
	require.NoError(t, err)
	assert.Equal(t, "console", cfg.Encoding)
	assert.Equal(t, zapcore.DebugLevel, cfg.Level.Level())

	cfg, err = buildZapConfig(Config{Format: "xml", Level: "warn"})
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Encoding)
	assert.Equal(t, zapcore.WarnLevel, cfg.Level.Level())

	_, err = buildZapConfig(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestBuildOptionsSkipsSamplingInDebug(t *testing.T) {
	assert.Empty(t, buildOptions(Config{Debug: true}))
	assert.Len(t, buildOptions(Config{}), 1)
	assert.Len(t, buildOptions(Config{IncludeCaller: true, IncludeStackOnError: true}), 3)
}

func TestWithContextAddsCorrelationFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = obscontext.WithUserID(ctx, "user_1")
	ctx = obscontext.WithRenderID(ctx, "render_1")

	WithContext(ctx, zap.New(core)).Info("rendered")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "user_1", fields["user_id"])
	assert.Equal(t, "render_1", fields["render_id"])
	assert.NotContains(t, fields, "api_key_id")
	assert.Equal(t, "", fields["trace_id"])
}
