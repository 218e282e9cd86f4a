package domain

import (
	"strings"
	"time"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05 MST",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"1/2/2006 15:04",
	"01/02/2006",
	"1/2/2006",
}

// ParseTimestamp parses an exported timestamp. Values without a zone are
// taken as UTC. ok is false for blank or unrecognized values.
func ParseTimestamp(raw string) (time.Time, bool) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// ParseTimestampPtr is ParseTimestamp for optional columns.
func ParseTimestampPtr(raw string) *time.Time {
	t, ok := ParseTimestamp(raw)
	if !ok {
		return nil
	}
	return &t
}

// FirstTimestamp returns the first parseable value in order.
func FirstTimestamp(raws ...string) (time.Time, bool) {
	for _, raw := range raws {
		if t, ok := ParseTimestamp(raw); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// MonthKey formats the attribution month of t, e.g. "2026-02".
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}
