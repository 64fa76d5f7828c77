package storage

import (
	"context"
	"fmt"
)

// ContextKey is a type for context keys used in storage layer
type ContextKey string

const (
	// OriginContextKey is the key for the requesting origin in context
	OriginContextKey ContextKey = "storage_origin"
)

// ErrMissingOrigin is returned when an origin is required but not found in context
var ErrMissingOrigin = fmt.Errorf("origin not found in context - sessions are scoped per origin")

// WithOrigin creates a new context carrying the requesting origin.
// Session lookups made with the returned context are scoped to origin.
func WithOrigin(ctx context.Context, origin string) context.Context {
	return context.WithValue(ctx, OriginContextKey, origin)
}

// GetOrigin retrieves the origin from context
func GetOrigin(ctx context.Context) (string, bool) {
	if origin, ok := ctx.Value(OriginContextKey).(string); ok && origin != "" {
		return origin, true
	}
	return "", false
}

// RequireOrigin retrieves the origin from context or returns ErrMissingOrigin
func RequireOrigin(ctx context.Context) (string, error) {
	origin, ok := GetOrigin(ctx)
	if !ok {
		return "", ErrMissingOrigin
	}
	return origin, nil
}
