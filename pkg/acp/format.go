package acp

import (
	"fmt"
	"time"
)

// Layouts accepted for the brevet start. Timestamps without an offset are
// read as UTC.
var startLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// ParseStart parses an ISO 8601 start timestamp, keeping its offset.
func ParseStart(s string) (time.Time, error) {
	var firstErr error
	for _, layout := range startLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, fmt.Errorf("%w %q: %w", ErrInvalidTimestamp, s, firstErr)
}

// FormatDisplay renders t as "Sun 1/1 5:52": short weekday, month/day and
// an unpadded 24-hour clock. Seconds are dropped, not rounded.
func FormatDisplay(t time.Time) string {
	return fmt.Sprintf("%s %d/%d %d:%02d", t.Format("Mon"), int(t.Month()), t.Day(), t.Hour(), t.Minute())
}
