package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

type ctxKey string

const requestIDKey ctxKey = "request_id"

// EnsureRequestID attaches a request_id to the context if absent and
// returns the updated context plus the ID.
func EnsureRequestID(ctx context.Context) (context.Context, string) {
	if ctx == nil {
		ctx = context.Background()
	}
	if id := RequestIDFromContext(ctx); id != "" {
		return ctx, id
	}
	id := newRequestID()
	return context.WithValue(ctx, requestIDKey, id), id
}

// RequestIDFromContext extracts the request_id, or "" when unset.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// WithRequestLogger ensures a request_id exists and returns the updated
// context alongside a logger annotated with that ID.
func WithRequestLogger(ctx context.Context, base Logger) (context.Context, Logger) {
	if base == nil {
		base = Noop()
	}
	ctx, id := EnsureRequestID(ctx)
	return ctx, base.With(String("request_id", id))
}

func newRequestID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(b[:])
}
