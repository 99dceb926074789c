package tracing

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsSensitiveKeys(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/api/pdf/generate"),
		attribute.String("api_key", "pdf_abc"),
		attribute.String("html", "<p>secret</p>"),
	)
	assert.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("http.route"), attrs[0].Key)
}

func TestSafeErrorRedactsKeysAndTruncates(t *testing.T) {
	assert.Nil(t, SafeError(nil))

	err := SafeError(errors.New("lookup failed for pdf_0123456789abcdef"))
	assert.Equal(t, "lookup failed for [redacted]", err.Error())

	long := SafeError(errors.New(strings.Repeat("x", 1000)))
	assert.Len(t, long.Error(), maxErrorMessage)
}

func TestClampRatio(t *testing.T) {
	assert.Equal(t, 0.0, clampRatio(-1))
	assert.Equal(t, 0.25, clampRatio(0.25))
	assert.Equal(t, 1.0, clampRatio(3))
}
