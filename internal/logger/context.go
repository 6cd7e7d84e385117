package logger

import "context"

type ctxKey struct{}

// WithContext returns a copy of ctx carrying l. Components that receive ctx log through
// l, so fields attached by the caller (run_id) follow the call chain.
func WithContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger carried by ctx, or fallback when there is none.
// A nil fallback yields a no-op logger.
func FromContext(ctx context.Context, fallback Logger) Logger {
	if l, ok := ctx.Value(ctxKey{}).(Logger); ok && l != nil {
		return l
	}
	if fallback == nil {
		return NewNop()
	}
	return fallback
}
