package observability

import (
	"testing"

	"github.com/smallbiznis/htmlpdf/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDevelopmentDefaults(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("OTEL_ENABLED", "")
	t.Setenv("OTEL_SAMPLING_RATIO", "")
	t.Setenv("LOG_LEVEL", "")

	cfg := LoadConfig(config.Config{AppName: "htmlpdf", Environment: "development"})

	assert.Equal(t, "htmlpdf", cfg.ServiceName)
	assert.False(t, cfg.OtelEnabled)
	assert.Equal(t, 1.0, cfg.OtelSamplingRatio)
	assert.True(t, cfg.Debug())
}

func TestLoadConfigProductionWithExporter(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("OTEL_ENABLED", "")
	t.Setenv("OTEL_SAMPLING_RATIO", "0.5")
	t.Setenv("LOG_LEVEL", "WARN")

	cfg := LoadConfig(config.Config{Environment: "production"})

	assert.Equal(t, "htmlpdf", cfg.ServiceName)
	assert.True(t, cfg.OtelEnabled)
	assert.Equal(t, "collector:4317", cfg.OtelExporterEndpoint)
	assert.Equal(t, 0.5, cfg.OtelSamplingRatio)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.False(t, cfg.Debug())
}

func TestSplitConfigSharesExporterSettings(t *testing.T) {
	cfg := Config{
		ServiceName:          "htmlpdf",
		Environment:          "production",
		LogLevel:             "info",
		OtelEnabled:          true,
		OtelExporterEndpoint: "collector:4317",
		OtelExporterProtocol: "grpc",
		OtelSamplingRatio:    0.1,
	}

	out := splitConfig(cfg)

	assert.False(t, out.Logger.Debug)
	assert.False(t, out.Logger.IncludeStackOnError)
	assert.Equal(t, "collector:4317", out.Tracing.ExporterEndpoint)
	assert.Equal(t, out.Tracing.ExporterEndpoint, out.Metrics.ExporterEndpoint)
	assert.Equal(t, 0.1, out.Tracing.SamplingRatio)
	assert.True(t, out.Metrics.Enabled)
}
