package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/psantana5/brevets/pkg/logging"
	"github.com/psantana5/brevets/pkg/metrics"
	"github.com/psantana5/brevets/pkg/ratelimit"
	"github.com/psantana5/brevets/pkg/tracing"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// RequestID makes sure every request carries an X-Request-ID, generating
// one when the client did not send it, and echoes it on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(logging.RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
			r.Header.Set(logging.RequestIDHeader, id)
		}
		w.Header().Set(logging.RequestIDHeader, id)

		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID extracts the request ID from request context
func GetRequestID(r *http.Request) string {
	if id, ok := r.Context().Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// RouterOptions selects the middleware wrapped around the API routes.
// Nil fields are skipped.
type RouterOptions struct {
	Logger  *logging.Logger
	Metrics *metrics.Collector
	Tracer  *tracing.Provider
	Limiter *ratelimit.Limiter

	// LimiterKey picks the rate limit bucket, ratelimit.IPKeyFunc by default
	LimiterKey func(*http.Request) string
}

// NewRouter builds the API router. Middleware runs in this order:
// request ID, access log, tracing, metrics, rate limit. mux skips Use
// middleware for unmatched requests, so the not found handler gets the
// same chain applied directly.
func NewRouter(h *CalcHandler, opts RouterOptions) *mux.Router {
	chain := []mux.MiddlewareFunc{RequestID}

	if opts.Logger != nil {
		chain = append(chain, logging.AccessLog(opts.Logger))
	}
	if opts.Tracer != nil {
		chain = append(chain, tracing.HTTPMiddleware(opts.Tracer))
		h.SetTracer(opts.Tracer)
	}
	if opts.Metrics != nil {
		chain = append(chain, opts.Metrics.Middleware)
		h.SetMetricsRecorder(opts.Metrics)
	}
	if opts.Limiter != nil {
		keyFunc := opts.LimiterKey
		if keyFunc == nil {
			keyFunc = ratelimit.IPKeyFunc
		}
		chain = append(chain, opts.Limiter.Middleware(keyFunc))
	}

	router := mux.NewRouter()
	router.Use(chain...)
	h.RegisterRoutes(router)

	notFound := router.NotFoundHandler
	for i := len(chain) - 1; i >= 0; i-- {
		notFound = chain[i](notFound)
	}
	router.NotFoundHandler = notFound

	return router
}
