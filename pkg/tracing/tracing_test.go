package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/psantana5/brevets/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

func newDisabledProvider(t *testing.T) *Provider {
	t.Helper()
	p, err := InitTracer(Config{ServiceName: "brevets-test"}, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { p.Shutdown(context.Background()) })
	return p
}

func TestDisabledProviderStillCreatesSpans(t *testing.T) {
	p := newDisabledProvider(t)

	ctx, span := p.StartSpan(context.Background(), "acp.window", attribute.Float64("acp.control_km", 200))
	defer span.End()

	assert.True(t, span.SpanContext().IsValid())
	assert.Equal(t, span.SpanContext().TraceID(), trace.SpanFromContext(ctx).SpanContext().TraceID())

	// must not panic on a live span
	SetError(ctx, errors.New("no band"))
}

func TestHTTPMiddlewarePropagatesTraceContext(t *testing.T) {
	p := newDisabledProvider(t)

	var seen trace.SpanContext
	router := mux.NewRouter()
	router.Use(HTTPMiddleware(p))
	router.HandleFunc("/_calc_times", func(w http.ResponseWriter, r *http.Request) {
		seen = trace.SpanFromContext(r.Context()).SpanContext()
		w.WriteHeader(http.StatusOK)
	})

	const parent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	req := httptest.NewRequest(http.MethodGet, "/_calc_times?km=100", nil)
	req.Header.Set("traceparent", parent)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.True(t, seen.IsValid())
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", seen.TraceID().String())
	assert.Contains(t, rr.Header().Get("traceparent"), "4bf92f3577b34da6a3ce929d0e0e4736")
}
