package clock

import (
	"testing"
	"time"
)

func TestTodayTruncatesToUTCMidnight(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	c := NewFakeClock(time.Date(2026, 2, 10, 22, 30, 0, 0, loc))

	got := Today(c)
	want := time.Date(2026, 2, 11, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}

	c.Advance(2 * time.Hour)
	if !Today(c).Equal(want) {
		t.Fatalf("expected same day after advance, got %s", Today(c))
	}
}
