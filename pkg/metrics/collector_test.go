package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordCalculation(t *testing.T) {
	c := NewCollector()

	c.RecordCalculation("open", "")
	c.RecordCalculation("open", "")
	c.RecordCalculation("close", "invalid_distance")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.calculations.WithLabelValues("open", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.calculations.WithLabelValues("close", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.calcErrors.WithLabelValues("invalid_distance")))
}

func TestMiddlewareUsesRouteTemplate(t *testing.T) {
	c := NewCollector()

	router := mux.NewRouter()
	router.Use(c.Middleware)
	router.HandleFunc("/api/v1/times", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}).Methods("GET")

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/times?km=5000", nil)
		router.ServeHTTP(httptest.NewRecorder(), req)
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(c.requests.WithLabelValues("/api/v1/times", "GET", "400")))
}

func TestServeHTTP(t *testing.T) {
	c := NewCollector()
	c.RecordCalculation("open", "")

	rr := httptest.NewRecorder()
	c.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/plain")
	body := rr.Body.String()
	assert.Contains(t, body, `brevets_calculations_total{kind="open",result="ok"} 1`)
	assert.Contains(t, body, "brevets_uptime_seconds")
	assert.Contains(t, body, "go_goroutines")
}
