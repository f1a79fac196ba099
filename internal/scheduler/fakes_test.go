package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/me/ossim/internal/clock"
	"github.com/me/ossim/internal/ipc"
	"github.com/me/ossim/pkg/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// countingStorage is clock storage that counts Close calls.
type countingStorage struct {
	*clock.Memory
	closes int
}

func (s *countingStorage) Close() error {
	s.closes++
	return nil
}

// fakeExecutor hosts scripted tasks that answer polls from their deadline and
// exit right after replying "terminate".
type fakeExecutor struct {
	mu        sync.Mutex
	clk       clock.Reader
	lastID    model.TaskID
	deadlines map[model.TaskID]model.Clock
	exited    []model.TaskID
	stopped   []model.TaskID
	polls     []model.TaskID
	spawns    int
	spawnErr  error
	closes    int
	chCloses  int
	badReply  bool
	zeroID    bool // hand out the unassigned sentinel id
}

func newFakeExecutor(clk clock.Reader) *fakeExecutor {
	return &fakeExecutor{clk: clk, deadlines: make(map[model.TaskID]model.Clock)}
}

func (f *fakeExecutor) Mode() model.ExecutionMode { return "fake" }

func (f *fakeExecutor) Spawn(_ context.Context, b model.Budget) (model.TaskID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.spawnErr != nil {
		return model.NoTask, f.spawnErr
	}
	f.spawns++
	if f.zeroID {
		f.deadlines[model.NoTask] = f.clk.Snapshot().AddBudget(b)
		return model.NoTask, nil
	}
	f.lastID += 100
	f.deadlines[f.lastID] = f.clk.Snapshot().AddBudget(b)
	return f.lastID, nil
}

func (f *fakeExecutor) TryReap() (model.TaskID, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.exited) == 0 {
		return model.NoTask, false
	}
	id := f.exited[0]
	f.exited = f.exited[1:]
	return id, true
}

func (f *fakeExecutor) Stop(id model.TaskID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.deadlines[id]; !ok {
		return errors.New("not running")
	}
	delete(f.deadlines, id)
	f.stopped = append(f.stopped, id)
	f.exited = append(f.exited, id)
	return nil
}

func (f *fakeExecutor) Channel() ipc.Channel { return &fakeChannel{f: f} }

func (f *fakeExecutor) Close() error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	return nil
}

type fakeChannel struct {
	f       *fakeExecutor
	pending *model.PollMessage
}

func (c *fakeChannel) Send(_ context.Context, msg model.PollMessage) error {
	c.f.mu.Lock()
	defer c.f.mu.Unlock()
	if _, ok := c.f.deadlines[msg.Target]; !ok {
		return &model.ProtocolError{Op: "send poll", TaskID: msg.Target, Err: ipc.ErrUndeliverable}
	}
	c.f.polls = append(c.f.polls, msg.Target)
	c.pending = &msg
	return nil
}

func (c *fakeChannel) Await(_ context.Context, from model.TaskID) (model.ReplyMessage, error) {
	c.f.mu.Lock()
	defer c.f.mu.Unlock()
	msg := c.pending
	c.pending = nil
	if msg == nil || msg.Target != from {
		return model.ReplyMessage{}, errors.New("no poll outstanding")
	}
	if c.f.badReply {
		return model.ReplyMessage{From: from + 1, Seq: msg.Seq}, nil
	}
	terminate := !c.f.clk.Snapshot().Before(c.f.deadlines[from])
	if terminate {
		delete(c.f.deadlines, from)
		c.f.exited = append(c.f.exited, from)
	}
	return model.ReplyMessage{From: from, Seq: msg.Seq, ShouldTerminate: terminate}, nil
}

func (c *fakeChannel) Close() error {
	c.f.mu.Lock()
	c.f.chCloses++
	c.f.mu.Unlock()
	return nil
}

// captureRecorder keeps every record in memory.
type captureRecorder struct {
	mu        sync.Mutex
	snapshots []model.TableSnapshot
	events    []model.Event
}

func (r *captureRecorder) RecordSnapshot(_ context.Context, s model.TableSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, s)
	return nil
}

func (r *captureRecorder) RecordEvent(_ context.Context, e model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *captureRecorder) count(kind model.EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

type harness struct {
	loop    *Loop
	exec    *fakeExecutor
	storage *countingStorage
	rec     *captureRecorder
}

func newHarness(cfg Config, budgets BudgetSource) (*harness, error) {
	storage := &countingStorage{Memory: clock.NewMemory()}
	clk := clock.New(storage)
	exec := newFakeExecutor(clk.Reader())
	rec := &captureRecorder{}
	loop, err := NewLoop(cfg, Deps{Clock: clk, Executor: exec, Budgets: budgets, Recorder: rec}, discardLogger())
	if err != nil {
		return nil, err
	}
	return &harness{loop: loop, exec: exec, storage: storage, rec: rec}, nil
}

func testConfig(total, simultaneous int) Config {
	cfg := DefaultConfig()
	cfg.Total = total
	cfg.Simultaneous = simultaneous
	cfg.ReapBackoff = 0
	cfg.RunID = "test-run"
	cfg.CoordinatorID = 42
	return cfg
}
