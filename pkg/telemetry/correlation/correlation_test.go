package correlation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestNewIDIsOrderedWithinMillisecond(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	prev := NewID(now)
	for i := 0; i < 100; i++ {
		next := NewID(now)
		assert.Less(t, prev, next)
		prev = next
	}

	ts, ok := Timestamp(prev)
	require.True(t, ok)
	assert.True(t, ts.Equal(now))

	_, ok = Timestamp("not-a-ulid")
	assert.False(t, ok)
}

func TestEnsureCorrelationIDKeepsExisting(t *testing.T) {
	ctx := ContextWithCorrelationID(context.Background(), "abc")
	ctx, id := EnsureCorrelationID(ctx)
	assert.Equal(t, "abc", id)
	assert.Equal(t, "abc", ExtractCorrelationID(ctx))

	_, fresh := EnsureCorrelationID(context.Background())
	assert.Len(t, fresh, 26)
}

func TestContextWithRemoteSpan(t *testing.T) {
	ctx := ContextWithRemoteSpan(context.Background(), "4bf92f3577b34da6a3ce929d0e0e4736", "00f067aa0ba902b7")
	sc := trace.SpanContextFromContext(ctx)
	assert.True(t, sc.IsRemote())
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", sc.TraceID().String())

	untouched := ContextWithRemoteSpan(context.Background(), "zz", "00f067aa0ba902b7")
	assert.False(t, trace.SpanContextFromContext(untouched).IsValid())
}
