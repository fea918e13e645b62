package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() time.Time {
	return time.Date(2023, 1, 1, 8, 0, 0, 0, time.UTC)
}

func newTestLogger(level Level, jsonFormat bool) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := NewLogger(level, jsonFormat)
	l.SetOutput(&buf)
	l.now = fixedClock
	return l, &buf
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", DEBUG},
		{"INFO", INFO},
		{"warning", WARN},
		{" error ", ERROR},
		{"fatal", FATAL},
		{"verbose", INFO},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTextFormat(t *testing.T) {
	l, buf := newTestLogger(INFO, false)

	l.Debug("hidden")
	l.WithField("km", 200).Info("computed", Fields{"rules": "reference"})

	assert.Equal(t, "[2023-01-01 08:00:00] INFO: computed km=200 rules=reference\n", buf.String())
}

func TestJSONFormat(t *testing.T) {
	l, buf := newTestLogger(DEBUG, true)

	l.Error("calculation failed", Fields{"error": errors.New("boom")})

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry.Level)
	assert.Equal(t, "calculation failed", entry.Message)
	assert.Equal(t, "boom", entry.Fields["error"])
	assert.Equal(t, "2023-01-01T08:00:00Z", entry.Timestamp)
}

func TestWithFieldDoesNotMutateParent(t *testing.T) {
	l, buf := newTestLogger(INFO, false)

	child := l.WithField("component", "api")
	l.Info("parent")
	child.Info("child")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.NotContains(t, lines[0], "component")
	assert.Contains(t, lines[1], "component=api")
}

func TestFatalExits(t *testing.T) {
	l, _ := newTestLogger(INFO, false)
	code := -1
	l.exit = func(c int) { code = c }

	l.Fatal("cannot listen")
	assert.Equal(t, 1, code)
}

func TestNewFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brevets", "api.log")

	l, err := NewFileLogger(path, INFO, false)
	require.NoError(t, err)
	l.Info("started")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "INFO: started")
}

func TestAccessLog(t *testing.T) {
	l, buf := newTestLogger(DEBUG, true)

	handler := AccessLog(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad distance", http.StatusBadRequest)
	}))

	req := httptest.NewRequest(http.MethodGet, "/_calc_times?km=5000", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry.Level)
	assert.Equal(t, "/_calc_times", entry.Fields["path"])
	assert.Equal(t, float64(http.StatusBadRequest), entry.Fields["status"])
	assert.Equal(t, "req-1", entry.Fields["request_id"])
}
