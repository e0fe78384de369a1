package logger

import "context"

// ctxKey is unexported so only this package can place values under it.
type ctxKey int

const requestIDKey ctxKey = iota

// WithRequestID returns a context carrying the request correlation ID.
// The ID travels with the request through HTTP handlers and onto NATS
// message headers.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the correlation ID in ctx, or "" when there is none.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
