package tracer_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yusufsyaifudin/bulkmail/pkg/tracer"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestInitTraceProvider(t *testing.T) {
	_, err := tracer.InitTraceProvider(tracer.Config{})
	assert.Error(t, err)

	shutdown, err := tracer.InitTraceProvider(tracer.Config{ServiceName: "bulkmail-test"})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestMiddleware(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	var spanCtx trace.SpanContext
	handler := tracer.Middleware(tracer.MiddlewareConfig{
		TracerName:     "test",
		TracerProvider: tp,
		TextPropagator: tracer.Propagator(),
		SkipFunc: func(r *http.Request) bool {
			return r.URL.Path == "/skip"
		},
	}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		spanCtx = trace.SpanContextFromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rw := httptest.NewRecorder()
	handler.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	assert.Equal(t, http.StatusTeapot, rw.Code)
	assert.True(t, spanCtx.IsValid())
	assert.NotEmpty(t, rw.Header().Get("traceparent"))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "/api/v1/health", spans[0].Name())

	rw = httptest.NewRecorder()
	handler.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/skip", nil))
	assert.Len(t, recorder.Ended(), 1)
}

func TestMiddleware_InvalidConfig(t *testing.T) {
	called := false
	handler := tracer.Middleware(tracer.MiddlewareConfig{}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
}
