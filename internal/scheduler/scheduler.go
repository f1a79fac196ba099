// Package scheduler implements the coordinator: admission, round-robin
// polling, exit reclamation and shutdown of a bounded pool of worker tasks.
package scheduler

import (
	"context"
	"time"

	"github.com/me/ossim/pkg/model"
)

// Scheduler drives worker tasks from first launch to an empty process table.
type Scheduler interface {
	// Run executes iterations until the quota is drained or ctx ends.
	Run(ctx context.Context) (Summary, error)

	// Tick runs a single coordinator iteration. Used for testing.
	Tick(ctx context.Context) (done bool, err error)

	// Latest returns the most recent process-table snapshot.
	Latest() *model.TableSnapshot
}

// Config holds coordinator configuration.
type Config struct {
	Total        int
	Simultaneous int

	// ClockStep is the logical time added each iteration.
	ClockStep time.Duration
	// SnapshotInterval is the logical time between periodic table snapshots.
	SnapshotInterval time.Duration
	// SnapshotJitter is the upper bound of the seeded random delay added to
	// each snapshot interval.
	SnapshotJitter time.Duration
	// ReplyTimeout bounds the real time spent waiting for one reply.
	// Zero waits until ctx ends.
	ReplyTimeout time.Duration
	// ReapAttempts and ReapBackoff bound the confirmation of an announced exit.
	ReapAttempts int
	ReapBackoff  time.Duration

	Seed          uint64
	RunID         string
	CoordinatorID int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Total:            1,
		Simultaneous:     1,
		ClockStep:        100 * time.Millisecond,
		SnapshotInterval: 500 * time.Millisecond,
		SnapshotJitter:   200 * time.Millisecond,
		ReplyTimeout:     5 * time.Second,
		ReapAttempts:     50,
		ReapBackoff:      2 * time.Millisecond,
	}
}

func (c Config) validate() error {
	var details []model.FieldError
	if c.Total <= 0 {
		details = append(details, model.FieldError{Field: "total", Message: "must be positive"})
	}
	if c.Simultaneous <= 0 {
		details = append(details, model.FieldError{Field: "simultaneous", Message: "must be positive"})
	}
	if c.ClockStep <= 0 {
		details = append(details, model.FieldError{Field: "clock_step", Message: "must be positive"})
	}
	if c.SnapshotInterval <= 0 {
		details = append(details, model.FieldError{Field: "snapshot_interval", Message: "must be positive"})
	}
	if c.SnapshotJitter < 0 || c.ReapAttempts < 0 || c.ReapBackoff < 0 || c.ReplyTimeout < 0 {
		details = append(details, model.FieldError{Message: "timing options must not be negative"})
	}
	if len(details) > 0 {
		return model.NewConfigError("invalid coordinator configuration", details...)
	}
	return nil
}

// Summary reports the outcome of a run.
type Summary struct {
	RunID      string
	FinalClock model.Clock
	Launched   int
	Reaped     int
	Occupied   int
	State      model.CoordinatorState
}
