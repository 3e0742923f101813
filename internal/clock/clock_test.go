package clock

import (
	"testing"
	"time"
)

func TestFakeClock_AdvanceMovesNow(t *testing.T) {
	start := time.Unix(1000, 0)
	c := NewFakeClock(start)

	if got := c.Now(); !got.Equal(start) {
		t.Fatalf("Now() = %v, want %v", got, start)
	}

	c.Advance(250 * time.Millisecond)
	want := start.Add(250 * time.Millisecond)
	if got := c.Now(); !got.Equal(want) {
		t.Errorf("Now() after Advance = %v, want %v", got, want)
	}
}

func TestDeadline_AllZeroReturnsZero(t *testing.T) {
	if got := Deadline(time.Time{}, time.Time{}); !got.IsZero() {
		t.Errorf("Deadline(zero, zero) = %v, want zero", got)
	}
}

func TestDeadline_SkipsZeroAndPicksEarliest(t *testing.T) {
	base := time.Unix(0, 0)
	earliest := base.Add(1 * time.Second)
	later := base.Add(5 * time.Second)

	got := Deadline(time.Time{}, later, earliest)
	if !got.Equal(earliest) {
		t.Errorf("Deadline() = %v, want %v (earliest non-zero)", got, earliest)
	}
}

func TestDeadline_SingleValue(t *testing.T) {
	base := time.Unix(0, 0).Add(2 * time.Second)
	if got := Deadline(time.Time{}, base); !got.Equal(base) {
		t.Errorf("Deadline() = %v, want %v", got, base)
	}
}

func TestDeadline_NoArgs(t *testing.T) {
	if got := Deadline(); !got.IsZero() {
		t.Errorf("Deadline() with no args = %v, want zero", got)
	}
}
