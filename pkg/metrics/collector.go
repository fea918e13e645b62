package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/common/expfmt"
)

// Collector owns the service's Prometheus registry
type Collector struct {
	registry     *prometheus.Registry
	startTime    time.Time
	calculations *prometheus.CounterVec
	calcErrors   *prometheus.CounterVec
	requests     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
}

// NewCollector creates a collector with its own registry, including the Go
// runtime and process collectors.
func NewCollector() *Collector {
	c := &Collector{
		registry:  prometheus.NewRegistry(),
		startTime: time.Now(),
		calculations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "brevets_calculations_total",
				Help: "Control time calculations by kind (open, close, window) and result",
			},
			[]string{"kind", "result"},
		),
		calcErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "brevets_calculation_errors_total",
				Help: "Rejected calculations by reason",
			},
			[]string{"reason"},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "brevets_http_requests_total",
				Help: "HTTP requests by route, method and status",
			},
			[]string{"route", "method", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "brevets_http_request_duration_seconds",
				Help:    "HTTP request latency by route and method",
				Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
			},
			[]string{"route", "method"},
		),
	}

	uptime := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "brevets_uptime_seconds",
			Help: "Time since the service started",
		},
		func() float64 { return time.Since(c.startTime).Seconds() },
	)

	c.registry.MustRegister(
		c.calculations,
		c.calcErrors,
		c.requests,
		c.duration,
		uptime,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordCalculation counts one open or close computation. An empty reason
// means it succeeded.
func (c *Collector) RecordCalculation(kind, reason string) {
	if reason == "" {
		c.calculations.WithLabelValues(kind, "ok").Inc()
		return
	}
	c.calculations.WithLabelValues(kind, "error").Inc()
	c.calcErrors.WithLabelValues(reason).Inc()
}

// Middleware records request counts and latency. Routes are labelled with
// their mux path template to keep cardinality bounded.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tmpl, err := cur.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}

		c.requests.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
		c.duration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// ServeHTTP serves the registry in the Prometheus text format
func (c *Collector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	metricFamilies, err := c.registry.Gather()
	if err != nil {
		http.Error(w, fmt.Sprintf("Error gathering metrics: %v", err), http.StatusInternalServerError)
		return
	}

	format := expfmt.NewFormat(expfmt.TypeTextPlain)
	w.Header().Set("Content-Type", string(format))

	encoder := expfmt.NewEncoder(w, format)
	for _, mf := range metricFamilies {
		if err := encoder.Encode(mf); err != nil {
			fmt.Fprintf(w, "# Error encoding %s: %v\n", mf.GetName(), err)
			return
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
