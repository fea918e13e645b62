package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/psantana5/brevets/pkg/acp"
)

const (
	// Mirrors the calculator page: a missing km field means 999.
	defaultControlKm = 999.0
	defaultBrevetKm  = 200.0

	formLayout = "2006-01-02 15:04"
)

// RequestError reports a malformed query parameter
type RequestError struct {
	Param  string
	Reason string
}

func (e *RequestError) Error() string {
	if e.Param == "" {
		return e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Param, e.Reason)
}

func badRequest(reason string) error {
	return &RequestError{Reason: reason}
}

type calcQuery struct {
	controlKm float64
	brevetKm  float64
	start     time.Time
}

// parseCalcQuery reads km, dist and either start (ISO 8601) or the date and
// time form fields, which are interpreted in tz when given and in loc otherwise.
func parseCalcQuery(r *http.Request, loc *time.Location) (calcQuery, error) {
	params := r.URL.Query()
	q := calcQuery{controlKm: defaultControlKm, brevetKm: defaultBrevetKm}

	if raw := strings.TrimSpace(params.Get("km")); raw != "" {
		km, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return q, &RequestError{Param: "km", Reason: fmt.Sprintf("%q is not a number", raw)}
		}
		q.controlKm = km
	}

	if raw := strings.TrimSpace(params.Get("dist")); raw != "" {
		dist, err := strconv.ParseFloat(raw, 64)
		if err != nil || !acp.ValidBrevetDistance(dist) {
			return q, &RequestError{Param: "dist", Reason: fmt.Sprintf("%q is not one of %v", raw, acp.BrevetDistances)}
		}
		q.brevetKm = dist
	}

	if raw := strings.TrimSpace(params.Get("start")); raw != "" {
		start, err := acp.ParseStart(raw)
		if err != nil {
			return q, err
		}
		q.start = start
		return q, nil
	}

	if tz := params.Get("tz"); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return q, &RequestError{Param: "tz", Reason: fmt.Sprintf("unknown time zone %q", tz)}
		}
		loc = l
	}

	date, clock := strings.TrimSpace(params.Get("date")), strings.TrimSpace(params.Get("time"))
	if date == "" || clock == "" {
		return q, &RequestError{Param: "date", Reason: "date and time are required when start is not given"}
	}
	start, err := time.ParseInLocation(formLayout, date+" "+clock, loc)
	if err != nil {
		return q, fmt.Errorf("%w: %q %q: %w", acp.ErrInvalidTimestamp, date, clock, err)
	}
	q.start = start
	return q, nil
}

// ControlTimes are the display strings of one control
type ControlTimes struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

// CalcTimesResponse is the body of /_calc_times
type CalcTimesResponse struct {
	Result ControlTimes `json:"result"`
}

// TimesResponse is the body of /api/v1/times
type TimesResponse struct {
	ControlKm float64 `json:"control_km"`
	BrevetKm  float64 `json:"brevet_km"`
	Rules     string  `json:"rules"`
	Open      string  `json:"open"`
	Close     string  `json:"close"`
	OpenISO   string  `json:"open_iso"`
	CloseISO  string  `json:"close_iso"`
}

// ErrorResponse is returned with every non-2xx status
type ErrorResponse struct {
	Error string `json:"error"`
}
