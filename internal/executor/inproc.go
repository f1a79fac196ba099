package executor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/me/ossim/internal/clock"
	"github.com/me/ossim/internal/ipc"
	"github.com/me/ossim/internal/worker"
	"github.com/me/ossim/pkg/model"
)

// Inproc runs each task as a goroutine talking over an in-memory mailbox.
type Inproc struct {
	clock   clock.Reader
	logger  *slog.Logger
	mailbox *ipc.Mailbox
	channel *ipc.MailboxChannel
	parent  int

	mu      sync.Mutex
	lastID  model.TaskID
	running map[model.TaskID]context.CancelFunc
	exited  []model.TaskID
	closed  bool
	wg      sync.WaitGroup
}

// NewInproc creates an in-process executor whose tasks read time from clk.
func NewInproc(clk clock.Reader, logger *slog.Logger) (*Inproc, error) {
	mb := ipc.NewMailbox()
	ch, err := mb.Coordinator()
	if err != nil {
		return nil, fmt.Errorf("open coordinator mailbox: %w", err)
	}
	return &Inproc{
		clock:   clk,
		logger:  logger.With("component", "inproc-executor"),
		mailbox: mb,
		channel: ch,
		parent:  os.Getpid(),
		running: make(map[model.TaskID]context.CancelFunc),
	}, nil
}

// Mode returns model.ModeInproc.
func (e *Inproc) Mode() model.ExecutionMode {
	return model.ModeInproc
}

// Channel returns the coordinator side of the mailbox.
func (e *Inproc) Channel() ipc.Channel {
	return e.channel
}

// Spawn starts a worker goroutine. Task ids are assigned sequentially from 1.
func (e *Inproc) Spawn(_ context.Context, budget model.Budget) (model.TaskID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return model.NoTask, ErrClosed
	}
	id := e.lastID + 1
	if err := e.mailbox.Open(id); err != nil {
		return model.NoTask, fmt.Errorf("open mailbox for task %d: %w", id, err)
	}
	e.lastID = id

	// Tasks outlive the tick that spawned them, so they are not tied to the
	// caller's context.
	ctx, cancel := context.WithCancel(context.Background())
	e.running[id] = cancel
	w := worker.New(worker.Config{ID: id, Parent: e.parent, Budget: budget}, e.clock, e.mailbox.Endpoint(id), e.logger)

	e.wg.Add(1)
	go e.run(ctx, id, w)
	return id, nil
}

func (e *Inproc) run(ctx context.Context, id model.TaskID, w *worker.Worker) {
	defer e.wg.Done()
	err := w.Run(ctx)
	if err != nil && !worker.IsStopped(err) {
		e.logger.Error("task failed", "task_id", id, "error", err)
	}
	e.mailbox.Remove(id)

	e.mu.Lock()
	if cancel, ok := e.running[id]; ok {
		cancel()
		delete(e.running, id)
	}
	e.exited = append(e.exited, id)
	e.mu.Unlock()
}

// TryReap pops the oldest unreported exit.
func (e *Inproc) TryReap() (model.TaskID, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.exited) == 0 {
		return model.NoTask, false
	}
	id := e.exited[0]
	e.exited = e.exited[1:]
	return id, true
}

// Stop cancels the task's goroutine.
func (e *Inproc) Stop(id model.TaskID) error {
	e.mu.Lock()
	cancel, ok := e.running[id]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("task %d is not running", id)
	}
	cancel()
	return nil
}

// Close cancels every running task, waits for it to return and shuts the
// mailbox down.
func (e *Inproc) Close() error {
	e.mu.Lock()
	e.closed = true
	for _, cancel := range e.running {
		cancel()
	}
	e.mu.Unlock()

	e.wg.Wait()
	return e.mailbox.Close()
}
