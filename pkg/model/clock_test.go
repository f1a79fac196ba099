package model

import "testing"

func TestClock_AddCarriesIntoSeconds(t *testing.T) {
	tests := []struct {
		start Clock
		delta uint64
		want  Clock
	}{
		{Clock{}, 100_000_000, Clock{0, 100_000_000}},
		{Clock{0, 900_000_000}, 100_000_000, Clock{1, 0}},
		{Clock{2, 999_999_999}, 1, Clock{3, 0}},
		{Clock{1, 500_000_000}, 2_700_000_000, Clock{4, 200_000_000}},
	}
	for _, tt := range tests {
		got := tt.start.Add(tt.delta)
		if got != tt.want {
			t.Errorf("%v.Add(%d) = %v, want %v", tt.start, tt.delta, got, tt.want)
		}
		if got.Nanoseconds >= NanosPerSecond {
			t.Errorf("nanoseconds out of range: %d", got.Nanoseconds)
		}
	}
}

func TestNewClock_Normalizes(t *testing.T) {
	got := NewClock(1, 2_500_000_000)
	want := Clock{Seconds: 3, Nanoseconds: 500_000_000}
	if got != want {
		t.Errorf("NewClock = %v, want %v", got, want)
	}
}

func TestClock_Compare(t *testing.T) {
	a := Clock{1, 0}
	b := Clock{1, 1}
	c := Clock{2, 0}
	if !a.Before(b) || !b.Before(c) || c.Before(a) {
		t.Error("ordering broken")
	}
	if a.Compare(a) != 0 {
		t.Error("Compare(self) != 0")
	}
}

func TestClock_AddBudget(t *testing.T) {
	start := Clock{Seconds: 3, Nanoseconds: 800_000_000}
	got := start.AddBudget(Budget{Seconds: 2, Nanoseconds: 300_000_000})
	want := Clock{Seconds: 6, Nanoseconds: 100_000_000}
	if got != want {
		t.Errorf("AddBudget = %v, want %v", got, want)
	}
	if start.AddBudget(Budget{}) != start {
		t.Error("zero budget must not move the deadline")
	}
}

func TestClock_Pack(t *testing.T) {
	c := Clock{Seconds: 4_000_000_000, Nanoseconds: 999_999_999}
	if got := UnpackClock(c.Pack()); got != c {
		t.Errorf("UnpackClock(Pack) = %v, want %v", got, c)
	}
}

func TestClock_String(t *testing.T) {
	if got := (Clock{Seconds: 2, Nanoseconds: 100000000}).String(); got != "2:100000000" {
		t.Errorf("String() = %q", got)
	}
}
