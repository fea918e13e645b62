package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/psantana5/brevets/pkg/acp"
	"github.com/psantana5/brevets/pkg/logging"
	"github.com/psantana5/brevets/pkg/tracing"
)

// MetricsRecorder is an interface for recording metrics
type MetricsRecorder interface {
	RecordCalculation(kind, reason string)
}

// CalcHandler serves control time calculations over HTTP
type CalcHandler struct {
	calc            *acp.Calculator
	location        *time.Location
	logger          *logging.Logger
	metricsRecorder MetricsRecorder
	tracer          *tracing.Provider
}

// NewCalcHandler creates a handler. Date and time form fields are read in loc.
func NewCalcHandler(calc *acp.Calculator, loc *time.Location, logger *logging.Logger) *CalcHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &CalcHandler{
		calc:     calc,
		location: loc,
		logger:   logger,
	}
}

// SetMetricsRecorder sets the metrics recorder for the handler
func (h *CalcHandler) SetMetricsRecorder(recorder MetricsRecorder) {
	h.metricsRecorder = recorder
}

// SetTracer enables a span around every calculation
func (h *CalcHandler) SetTracer(p *tracing.Provider) {
	h.tracer = p
}

// RegisterRoutes registers all API routes
func (h *CalcHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/_calc_times", h.CalcTimes).Methods("GET")
	r.HandleFunc("/api/v1/times", h.Times).Methods("GET")
	r.HandleFunc("/health", h.Health).Methods("GET")
	r.NotFoundHandler = http.HandlerFunc(h.NotFound)
}

// CalcTimes answers the calculator page's AJAX request with the formatted
// open and close times of one control.
func (h *CalcHandler) CalcTimes(w http.ResponseWriter, r *http.Request) {
	q, err := parseCalcQuery(r, h.location)
	if err != nil {
		h.reject(w, r, err)
		return
	}

	start := q.start.Format(time.RFC3339)
	h.logger.Debug("Got a JSON request", logging.Fields{
		"km":    q.controlKm,
		"dist":  q.brevetKm,
		"start": start,
	})

	open, err := h.compute(r, "open", q, func() (string, error) {
		return h.calc.OpenTime(q.controlKm, q.brevetKm, start)
	})
	if err != nil {
		h.reject(w, r, err)
		return
	}
	closeAt, err := h.compute(r, "close", q, func() (string, error) {
		return h.calc.CloseTime(q.controlKm, q.brevetKm, start)
	})
	if err != nil {
		h.reject(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, CalcTimesResponse{
		Result: ControlTimes{Open: open, Close: closeAt},
	})
}

// Times returns both display strings and ISO timestamps, and lets the
// caller pick the rule set.
func (h *CalcHandler) Times(w http.ResponseWriter, r *http.Request) {
	q, err := parseCalcQuery(r, h.location)
	if err != nil {
		h.reject(w, r, err)
		return
	}

	calc := h.calc
	if raw := r.URL.Query().Get("rules"); raw != "" {
		rules, err := acp.ParseRules(raw)
		if err != nil {
			h.reject(w, r, badRequest(err.Error()))
			return
		}
		calc = acp.NewCalculator(rules)
	}

	var win acp.Window
	_, err = h.compute(r, "window", q, func() (string, error) {
		var werr error
		win, werr = calc.Window(q.controlKm, q.brevetKm, q.start)
		return "", werr
	})
	if err != nil {
		h.reject(w, r, err)
		return
	}

	open, closeAt := win.Format()
	writeJSON(w, http.StatusOK, TimesResponse{
		ControlKm: q.controlKm,
		BrevetKm:  q.brevetKm,
		Rules:     string(calc.Rules()),
		Open:      open,
		Close:     closeAt,
		OpenISO:   win.Open.Format(time.RFC3339),
		CloseISO:  win.Close.Format(time.RFC3339),
	})
}

// Health reports liveness
func (h *CalcHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// NotFound answers unknown routes
func (h *CalcHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.logger.Debug("Page not found", logging.Fields{"path": r.URL.Path})
	writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "page not found"})
}

// compute runs fn inside a span and records its outcome.
func (h *CalcHandler) compute(r *http.Request, kind string, q calcQuery, fn func() (string, error)) (string, error) {
	ctx := r.Context()
	if h.tracer != nil {
		var span trace.Span
		ctx, span = h.tracer.StartSpan(ctx, "acp."+kind, spanAttributes(kind, q)...)
		defer span.End()
	}

	out, err := fn()
	if h.metricsRecorder != nil {
		h.metricsRecorder.RecordCalculation(kind, errorReason(err))
	}
	if err != nil && h.tracer != nil {
		tracing.SetError(ctx, err)
	}
	return out, err
}

func (h *CalcHandler) reject(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	fields := logging.Fields{
		"path":   r.URL.Path,
		"query":  r.URL.RawQuery,
		"status": status,
		"error":  err,
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("Calculation failed", fields)
	} else {
		h.logger.Debug("Calculation rejected", fields)
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	var reqErr *RequestError
	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest
	case errors.Is(err, acp.ErrInvalidDistance),
		errors.Is(err, acp.ErrInvalidBrevetDistance),
		errors.Is(err, acp.ErrInvalidTimestamp):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func errorReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, acp.ErrInvalidDistance):
		return "invalid_distance"
	case errors.Is(err, acp.ErrInvalidBrevetDistance):
		return "invalid_brevet_distance"
	case errors.Is(err, acp.ErrInvalidTimestamp):
		return "invalid_timestamp"
	default:
		return "internal"
	}
}

func spanAttributes(kind string, q calcQuery) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("acp.kind", kind),
		attribute.Float64("acp.control_km", q.controlKm),
		attribute.Float64("acp.brevet_km", q.brevetKm),
		attribute.String("acp.start", q.start.Format(time.RFC3339)),
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
