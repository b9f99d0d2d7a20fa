package ctxutil

import (
	"context"
	"time"
)

type traceDataKey struct{}

type TraceData struct {
	TraceID   string
	RequestID string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	val := ctx.Value(traceDataKey{})
	if td, ok := val.(*TraceData); ok {
		return td
	}
	return nil
}

// Default guards outbound calls made with a caller context that has no
// deadline. The cancel func is intentionally dropped; the deadline still
// fires and callers that care pass their own bounded context.
func Default(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx
	}
	bounded, _ := context.WithTimeout(ctx, 30*time.Second) //nolint:govet
	return bounded
}
