// Package executor hosts worker tasks. The coordinator spawns, reaps and stops
// tasks through an Executor without knowing whether they are goroutines or OS
// processes.
package executor

import (
	"context"
	"errors"

	"github.com/me/ossim/internal/ipc"
	"github.com/me/ossim/pkg/model"
)

// ErrClosed is returned by Spawn after the executor has been closed.
var ErrClosed = errors.New("executor closed")

// Executor is a pluggable backend that runs worker tasks.
type Executor interface {
	// Mode returns the execution mode identifier.
	Mode() model.ExecutionMode

	// Spawn starts one task with the given budget and returns its id.
	Spawn(ctx context.Context, budget model.Budget) (model.TaskID, error)

	// TryReap returns one task that has exited since the last call, without
	// blocking. ok is false when no exit is pending.
	TryReap() (id model.TaskID, ok bool)

	// Stop asks a running task to exit. The exit is observed later via TryReap.
	Stop(id model.TaskID) error

	// Channel returns the coordinator's end of the message channel to the
	// tasks this executor hosts.
	Channel() ipc.Channel

	// Close stops every remaining task and waits for it to exit.
	Close() error
}
