// Package context carries request correlation values for logs and traces.
package context

import (
	"context"
	"strings"
)

type requestIDKey struct{}

type ownerKeyKey struct{}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, strings.TrimSpace(requestID))
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey{}).(string)
	return value
}

// WithOwnerKey records the owner a request operates on.
func WithOwnerKey(ctx context.Context, ownerKey string) context.Context {
	return context.WithValue(ctx, ownerKeyKey{}, strings.TrimSpace(ownerKey))
}

func OwnerKeyFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(ownerKeyKey{}).(string)
	return value
}
