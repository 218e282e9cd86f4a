package domain

import (
	"testing"
	"time"
)

func TestParseTimestamp(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want time.Time
		ok   bool
	}{
		{name: "rfc3339", raw: "2026-02-10T23:30:00-05:00", want: time.Date(2026, 2, 11, 4, 30, 0, 0, time.UTC), ok: true},
		{name: "sql", raw: "2026-02-10 08:15:00", want: time.Date(2026, 2, 10, 8, 15, 0, 0, time.UTC), ok: true},
		{name: "date", raw: " 2026-02-10 ", want: time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC), ok: true},
		{name: "us", raw: "2/9/2026", want: time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC), ok: true},
		{name: "blank", raw: "", ok: false},
		{name: "garbage", raw: "not a date", ok: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseTimestamp(tc.raw)
			if ok != tc.ok {
				t.Fatalf("expected ok=%v, got %v", tc.ok, ok)
			}
			if ok && !got.Equal(tc.want) {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestFirstTimestampFallsThrough(t *testing.T) {
	got, ok := FirstTimestamp("", "garbage", "2026-03-01")
	if !ok {
		t.Fatalf("expected a timestamp")
	}
	if MonthKey(got) != "2026-03" {
		t.Fatalf("expected month 2026-03, got %s", MonthKey(got))
	}
}
