package scheduler

import (
	"errors"
	"sync/atomic"
)

// ErrNoPermitHeld is returned by Release when every permit is already free.
var ErrNoPermitHeld = errors.New("admission gate: release without a held permit")

// Gate is a counting admission gate bounding how many tasks may be active.
// Acquisition never blocks: a caller that finds the gate full retries on a
// later iteration.
type Gate struct {
	ch     chan struct{}
	closed atomic.Bool
}

// NewGate creates a gate with n permits.
func NewGate(n int) *Gate {
	if n < 0 {
		n = 0
	}
	return &Gate{ch: make(chan struct{}, n)}
}

// TryAcquire takes one permit if one is free. It reports false when the gate
// is full or closed.
func (g *Gate) TryAcquire() bool {
	if g.closed.Load() {
		return false
	}
	select {
	case g.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release returns one permit.
func (g *Gate) Release() error {
	select {
	case <-g.ch:
		return nil
	default:
		return ErrNoPermitHeld
	}
}

// Capacity returns the number of permits.
func (g *Gate) Capacity() int {
	return cap(g.ch)
}

// InUse returns the number of permits currently held.
func (g *Gate) InUse() int {
	return len(g.ch)
}

// Close stops further acquisition. Held permits may still be released.
func (g *Gate) Close() {
	g.closed.Store(true)
}
