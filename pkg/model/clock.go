package model

import (
	"fmt"
	"math"
)

// NanosPerSecond is the point at which the nanosecond component of a Clock
// carries into seconds.
const NanosPerSecond = 1_000_000_000

// MaxBudgetSeconds caps the whole-second part of a task budget. Half the
// range of Clock.Seconds keeps start+budget from wrapping for any start
// reached in a run.
const MaxBudgetSeconds = math.MaxUint32 / 2

// Clock is a logical (seconds, nanoseconds) timestamp.
// Nanoseconds is always in [0, NanosPerSecond).
type Clock struct {
	Seconds     uint32 `json:"seconds"`
	Nanoseconds uint32 `json:"nanoseconds"`
}

// NewClock builds a normalized Clock, carrying excess nanoseconds into seconds.
func NewClock(seconds, nanos uint64) Clock {
	return Clock{}.Add(seconds*NanosPerSecond + nanos)
}

// Add returns c advanced by deltaNanos.
func (c Clock) Add(deltaNanos uint64) Clock {
	total := uint64(c.Nanoseconds) + deltaNanos
	return Clock{
		Seconds:     c.Seconds + uint32(total/NanosPerSecond),
		Nanoseconds: uint32(total % NanosPerSecond),
	}
}

// AddBudget returns the absolute deadline c + b.
func (c Clock) AddBudget(b Budget) Clock {
	return c.Add(b.Nanos())
}

// Compare returns -1, 0 or +1 depending on whether c is before, equal to or after o.
func (c Clock) Compare(o Clock) int {
	switch {
	case c.Seconds < o.Seconds:
		return -1
	case c.Seconds > o.Seconds:
		return 1
	case c.Nanoseconds < o.Nanoseconds:
		return -1
	case c.Nanoseconds > o.Nanoseconds:
		return 1
	}
	return 0
}

// Before reports whether c is strictly earlier than o.
func (c Clock) Before(o Clock) bool {
	return c.Compare(o) < 0
}

// Nanos returns c as a total number of nanoseconds.
func (c Clock) Nanos() uint64 {
	return uint64(c.Seconds)*NanosPerSecond + uint64(c.Nanoseconds)
}

// Pack encodes c into a single word so it can be published atomically.
func (c Clock) Pack() uint64 {
	return uint64(c.Seconds)<<32 | uint64(c.Nanoseconds)
}

// UnpackClock is the inverse of Clock.Pack.
func UnpackClock(w uint64) Clock {
	return Clock{Seconds: uint32(w >> 32), Nanoseconds: uint32(w)}
}

func (c Clock) String() string {
	return fmt.Sprintf("%d:%d", c.Seconds, c.Nanoseconds)
}

// Budget is the logical lifetime a task is given at launch.
type Budget struct {
	Seconds     uint32 `json:"seconds"`
	Nanoseconds uint32 `json:"nanoseconds"`
}

// Nanos returns the budget as a total number of nanoseconds.
func (b Budget) Nanos() uint64 {
	return uint64(b.Seconds)*NanosPerSecond + uint64(b.Nanoseconds)
}

func (b Budget) String() string {
	return fmt.Sprintf("%d:%d", b.Seconds, b.Nanoseconds)
}
