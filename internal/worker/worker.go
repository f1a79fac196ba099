package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/me/ossim/internal/clock"
	"github.com/me/ossim/internal/ipc"
	"github.com/me/ossim/pkg/model"
)

// Config holds worker configuration. It mirrors the launch arguments of a
// process worker.
type Config struct {
	ID     model.TaskID
	Parent int
	Budget model.Budget
}

// Worker is a purely reactive task: it does nothing between polls and decides
// whether to exit only when the coordinator asks.
type Worker struct {
	cfg      Config
	clock    clock.Reader
	endpoint ipc.Endpoint
	logger   *slog.Logger

	state    model.WorkerState
	start    model.Clock
	deadline model.Clock
	lastSec  uint32
	polls    int
}

// New creates a worker reading time from clk and polls from ep.
func New(cfg Config, clk clock.Reader, ep ipc.Endpoint, logger *slog.Logger) *Worker {
	return &Worker{
		cfg:      cfg,
		clock:    clk,
		endpoint: ep,
		logger:   logger.With("component", "worker", "pid", int64(cfg.ID), "ppid", cfg.Parent),
		state:    model.WorkerStarting,
	}
}

// State returns the worker's lifecycle state.
func (w *Worker) State() model.WorkerState {
	return w.state
}

// Deadline returns the absolute logical time at which the worker terminates.
// It is zero until Run has started.
func (w *Worker) Deadline() model.Clock {
	return w.deadline
}

// Run executes the worker state machine until the deadline has passed and the
// coordinator has been told, or until receiving or replying fails.
func (w *Worker) Run(ctx context.Context) error {
	w.begin()
	for {
		done, err := w.handlePoll(ctx)
		if err != nil {
			w.transition(model.WorkerTerminating)
			w.logger.Error("worker failed",
				"sys_clock", w.clock.Snapshot().String(),
				"term_time", w.deadline.String(),
				"error", err,
			)
			return err
		}
		if done {
			w.logger.Info("terminating",
				"sys_clock", w.clock.Snapshot().String(),
				"term_time", w.deadline.String(),
				"polls", w.polls,
			)
			return nil
		}
	}
}

func (w *Worker) begin() {
	w.start = w.clock.Snapshot()
	w.deadline = w.start.AddBudget(w.cfg.Budget)
	w.lastSec = w.start.Seconds
	w.transition(model.WorkerAwaitingPoll)
	w.logger.Info("just starting",
		"sys_clock", w.start.String(),
		"term_time", w.deadline.String(),
	)
}

// handlePoll blocks for one poll, answers it and reports whether the worker
// should now exit.
func (w *Worker) handlePoll(ctx context.Context) (bool, error) {
	msg, err := w.endpoint.Receive(ctx)
	if err != nil {
		return false, fmt.Errorf("receive poll: %w", err)
	}
	if msg.Target != w.cfg.ID {
		return false, &model.ProtocolError{
			Op:     "receive poll",
			TaskID: w.cfg.ID,
			Err:    fmt.Errorf("poll addressed to task %d", msg.Target),
		}
	}
	w.polls++

	now := w.clock.Snapshot()
	if w.polls == 1 {
		w.logger.Info("received message", "sys_clock", now.String(), "term_time", w.deadline.String())
	}
	if now.Seconds != w.lastSec {
		w.lastSec = now.Seconds
		w.logger.Info("seconds have passed since starting",
			"elapsed", now.Seconds-w.start.Seconds,
			"sys_clock", now.String(),
			"term_time", w.deadline.String(),
		)
	}

	terminate := !now.Before(w.deadline)
	reply := model.ReplyMessage{From: w.cfg.ID, Seq: msg.Seq, ShouldTerminate: terminate}
	if err := w.endpoint.Reply(ctx, reply); err != nil {
		return false, fmt.Errorf("send reply: %w", err)
	}
	if terminate {
		w.transition(model.WorkerTerminating)
	}
	return terminate, nil
}

func (w *Worker) transition(next model.WorkerState) {
	if !w.state.CanTransitionTo(next) {
		w.logger.Debug("ignored state transition", "from", w.state, "to", next)
		return
	}
	w.state = next
}

// IsStopped reports whether err means the worker was stopped from outside
// rather than failing on its own.
func IsStopped(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, ipc.ErrClosed)
}
