// Package context carries request-scoped correlation identifiers used by logs and traces.
package context

import (
	"context"
	"strings"
)

type requestIDKey struct{}
type userIDKey struct{}
type apiKeyIDKey struct{}
type renderIDKey struct{}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return withString(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	return stringFrom(ctx, requestIDKey{})
}

// WithUserID records the owner resolved from an API key or a session token.
func WithUserID(ctx context.Context, userID string) context.Context {
	return withString(ctx, userIDKey{}, userID)
}

func UserIDFromContext(ctx context.Context) string {
	return stringFrom(ctx, userIDKey{})
}

func WithAPIKeyID(ctx context.Context, keyID string) context.Context {
	return withString(ctx, apiKeyIDKey{}, keyID)
}

func APIKeyIDFromContext(ctx context.Context) string {
	return stringFrom(ctx, apiKeyIDKey{})
}

func WithRenderID(ctx context.Context, renderID string) context.Context {
	return withString(ctx, renderIDKey{}, renderID)
}

func RenderIDFromContext(ctx context.Context) string {
	return stringFrom(ctx, renderIDKey{})
}

func withString(ctx context.Context, key any, value string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringFrom(ctx context.Context, key any) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
