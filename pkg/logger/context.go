package logger

import (
	"context"
)

type ctxKey struct{}

var tracerKey = ctxKey{}

// Tracer is request-scoped data printed on every log line and returned in every response.
type Tracer struct {
	RemoteAddr string `json:"remote_addr,omitempty"`
	AppTraceID string `json:"app_trace_id,omitempty"`
}

// Inject puts Tracer into ctx.
func Inject(ctx context.Context, tracer Tracer) context.Context {
	return context.WithValue(ctx, tracerKey, tracer)
}

func Extract(ctx context.Context) (Tracer, bool) {
	if ctx == nil {
		return Tracer{}, false
	}

	tracer, ok := ctx.Value(tracerKey).(Tracer)
	return tracer, ok
}

// MustExtract returns an empty Tracer when ctx has none.
func MustExtract(ctx context.Context) Tracer {
	tracer, _ := Extract(ctx)
	return tracer
}
