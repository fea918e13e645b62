package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(rps float64, burst int) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewLimiter(rps, burst)
	l.now = clock.now
	return l, clock
}

func TestLimiter(t *testing.T) {
	// burst of 2: two immediate requests pass, the third waits for a refill
	limiter, clock := newTestLimiter(10, 2)

	if !limiter.Allow("test-key") {
		t.Error("First request should be allowed")
	}
	if !limiter.Allow("test-key") {
		t.Error("Second request should be allowed")
	}
	if limiter.Allow("test-key") {
		t.Error("Third request should be rate limited")
	}

	// 10 req/s = 100ms per token
	clock.advance(150 * time.Millisecond)

	if !limiter.Allow("test-key") {
		t.Error("Request after waiting should be allowed")
	}
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	limiter, _ := newTestLimiter(1, 1)

	if !limiter.Allow("a") {
		t.Error("first request for a should be allowed")
	}
	if !limiter.Allow("b") {
		t.Error("first request for b should be allowed")
	}
	if limiter.Allow("a") {
		t.Error("second request for a should be limited")
	}
}

func TestCleanupOldLimiters(t *testing.T) {
	limiter, clock := newTestLimiter(10, 2)

	limiter.Allow("idle")
	clock.advance(10 * time.Minute)
	limiter.Allow("active")

	if removed := limiter.CleanupOldLimiters(5 * time.Minute); removed != 1 {
		t.Errorf("Expected 1 limiter removed, got %d", removed)
	}
	if limiter.Len() != 1 {
		t.Errorf("Expected 1 limiter left, got %d", limiter.Len())
	}
}

func TestMiddleware(t *testing.T) {
	limiter, _ := newTestLimiter(10, 2)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	wrappedHandler := limiter.Middleware(func(r *http.Request) string {
		return "test-key"
	})(handler)

	want := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}
	for i, code := range want {
		req := httptest.NewRequest("GET", "/_calc_times?km=100", nil)
		rr := httptest.NewRecorder()
		wrappedHandler.ServeHTTP(rr, req)

		if rr.Code != code {
			t.Errorf("Request %d: expected status %d, got %d", i+1, code, rr.Code)
		}
	}
}

func TestKeyFunc(t *testing.T) {
	tests := []struct {
		name          string
		trustProxy    bool
		remoteAddr    string
		xForwardedFor string
		expectedKey   string
	}{
		{
			name:        "Direct connection",
			remoteAddr:  "192.168.1.1:12345",
			expectedKey: "192.168.1.1",
		},
		{
			name:          "Forwarded header ignored by default",
			remoteAddr:    "198.51.100.7:12345",
			xForwardedFor: "203.0.113.1",
			expectedKey:   "198.51.100.7",
		},
		{
			name:          "Behind trusted proxy",
			trustProxy:    true,
			remoteAddr:    "127.0.0.1:12345",
			xForwardedFor: "203.0.113.1",
			expectedKey:   "203.0.113.1",
		},
		{
			name:          "Trusted proxy chain",
			trustProxy:    true,
			remoteAddr:    "127.0.0.1:12345",
			xForwardedFor: "203.0.113.1, 10.0.0.2",
			expectedKey:   "203.0.113.1",
		},
		{
			name:        "Trusted proxy without header",
			trustProxy:  true,
			remoteAddr:  "127.0.0.1:12345",
			expectedKey: "127.0.0.1",
		},
		{
			name:        "Address without port",
			remoteAddr:  "unix-socket",
			expectedKey: "unix-socket",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/health", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xForwardedFor != "" {
				req.Header.Set("X-Forwarded-For", tt.xForwardedFor)
			}

			if key := KeyFunc(tt.trustProxy)(req); key != tt.expectedKey {
				t.Errorf("Expected key %s, got %s", tt.expectedKey, key)
			}
		})
	}
}

func TestSpoofedForwardedForSharesBucket(t *testing.T) {
	l, _ := newTestLimiter(1, 1)
	handler := l.Middleware(IPKeyFunc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 2)
	for _, xff := range []string{"203.0.113.1", "203.0.113.2"} {
		req := httptest.NewRequest("GET", "/_calc_times", nil)
		req.RemoteAddr = "198.51.100.7:4000"
		req.Header.Set("X-Forwarded-For", xff)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Errorf("Expected [200 429], got %v", codes)
	}
}
