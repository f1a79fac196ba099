package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/me/ossim/internal/clock"
	"github.com/me/ossim/internal/executor"
	"github.com/me/ossim/internal/ipc"
	"github.com/me/ossim/internal/table"
	"github.com/me/ossim/pkg/model"
)

// Deps are the collaborators a Loop drives. The Loop takes ownership of the
// clock and the executor and releases both when it terminates.
type Deps struct {
	Clock    *clock.Clock
	Executor executor.Executor
	Budgets  BudgetSource
	Recorder Recorder
}

// Loop is the coordinator loop. It is driven from one goroutine; only Latest
// may be called concurrently.
type Loop struct {
	cfg     Config
	clock   *clock.Clock
	exec    executor.Executor
	channel ipc.Channel
	budgets BudgetSource
	rec     Recorder
	logger  *slog.Logger

	table *table.ProcessTable
	ring  table.Ring
	gate  *Gate

	state        model.CoordinatorState
	launched     int
	reaped       int
	seq          uint64
	exiting      map[model.TaskID]bool
	nextSnapshot model.Clock
	jitter       *rand.Rand

	latest      atomic.Pointer[model.TableSnapshot]
	releaseOnce sync.Once
	releaseErr  error
}

// NewLoop validates cfg and creates a coordinator loop. No task is started
// until Run or Tick.
func NewLoop(cfg Config, deps Deps, logger *slog.Logger) (*Loop, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if deps.Clock == nil || deps.Executor == nil || deps.Budgets == nil {
		return nil, errors.New("scheduler: clock, executor and budget source are required")
	}
	rec := deps.Recorder
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Loop{
		cfg:     cfg,
		clock:   deps.Clock,
		exec:    deps.Executor,
		channel: deps.Executor.Channel(),
		budgets: deps.Budgets,
		rec:     rec,
		logger:  logger.With("component", "scheduler", "run_id", cfg.RunID),
		table:   table.New(cfg.Simultaneous),
		gate:    NewGate(cfg.Simultaneous),
		state:   model.CoordinatorRunning,
		exiting: make(map[model.TaskID]bool),
		jitter:  rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x5851f42d4c957f2d)),
	}, nil
}

// Run executes iterations until the quota has drained, a fatal error occurs
// or ctx ends. Shared resources are released exactly once on every path.
func (l *Loop) Run(ctx context.Context) (Summary, error) {
	defer l.Close()

	l.logger.Info("coordinator started",
		"total", l.cfg.Total,
		"simultaneous", l.cfg.Simultaneous,
		"mode", l.exec.Mode(),
	)
	l.snapshot(ctx, "start")

	for {
		if ctx.Err() != nil {
			return l.interrupt(ctx)
		}
		done, err := l.Tick(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return l.interrupt(ctx)
			}
			return l.fail(ctx, err)
		}
		if done {
			l.logger.Info("coordinator finished",
				"clock", l.clock.Snapshot().String(),
				"launched", l.launched,
			)
			return l.summary(), nil
		}
	}
}

// Tick runs one iteration: advance the clock, emit a periodic snapshot, reap
// exited tasks, admit at most one task and poll at most one task. done is
// true once the loop has terminated.
func (l *Loop) Tick(ctx context.Context) (bool, error) {
	if l.state.IsTerminal() {
		return true, nil
	}

	now := l.clock.Advance(uint64(l.cfg.ClockStep.Nanoseconds()))

	if !now.Before(l.nextSnapshot) {
		l.snapshot(ctx, "periodic")
		l.nextSnapshot = now.Add(l.snapshotDelay())
	}

	if err := l.reapAll(ctx); err != nil {
		return false, fmt.Errorf("reap: %w", err)
	}
	if err := l.admit(ctx); err != nil {
		return false, err
	}
	if err := l.pollNext(ctx); err != nil {
		return false, err
	}

	if l.state == model.CoordinatorDraining && l.table.Occupied() == 0 {
		l.transition(ctx, model.CoordinatorTerminated)
		return true, nil
	}
	return false, nil
}

// Latest returns the most recent snapshot, or nil before the first one.
func (l *Loop) Latest() *model.TableSnapshot {
	return l.latest.Load()
}

// State returns the coordinator state. Not safe for use while Run is active.
func (l *Loop) State() model.CoordinatorState {
	return l.state
}

// Close releases the message channel, the executor, the clock storage and the
// admission gate. Only the first call has an effect.
func (l *Loop) Close() error {
	l.releaseOnce.Do(func() {
		var errs []error
		if err := l.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
		if err := l.exec.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close executor: %w", err))
		}
		if err := l.clock.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close clock: %w", err))
		}
		l.gate.Close()
		l.releaseErr = errors.Join(errs...)
		if l.releaseErr != nil {
			l.logger.Warn("release resources", "error", l.releaseErr)
		} else {
			l.logger.Debug("resources released")
		}
	})
	return l.releaseErr
}

func (l *Loop) snapshotDelay() uint64 {
	d := uint64(l.cfg.SnapshotInterval.Nanoseconds())
	if j := l.cfg.SnapshotJitter.Nanoseconds(); j > 0 {
		d += l.jitter.Uint64N(uint64(j) + 1)
	}
	return d
}

// reapAll reclaims every task that has exited since the last check.
func (l *Loop) reapAll(ctx context.Context) error {
	for {
		id, ok := l.exec.TryReap()
		if !ok {
			return nil
		}
		if err := l.reclaim(ctx, id); err != nil {
			return err
		}
	}
}

// reclaim frees the slot of an exited task and returns its admission permit.
func (l *Loop) reclaim(ctx context.Context, id model.TaskID) error {
	i, ok := l.table.IndexOf(id)
	if !ok {
		l.logger.Warn("reaped task not in process table", "task_id", id)
		return nil
	}
	if err := l.table.Free(i); err != nil {
		return err
	}
	if err := l.gate.Release(); err != nil {
		return err
	}
	delete(l.exiting, id)
	l.reaped++

	l.logger.Debug("task reaped", "slot", i, "task_id", id, "clock", l.clock.Snapshot().String())
	l.event(ctx, model.EventReap, i, id, "")
	l.snapshot(ctx, "reap")
	return nil
}

// admit spawns one task when quota, the concurrency bound, a free slot and an
// admission permit all allow it. Otherwise it defers to a later iteration.
func (l *Loop) admit(ctx context.Context) error {
	if l.state != model.CoordinatorRunning || l.launched >= l.cfg.Total {
		return nil
	}
	if l.table.Occupied() >= l.cfg.Simultaneous {
		return nil
	}
	i, ok := l.table.FindFree()
	if !ok {
		return nil
	}
	if !l.gate.TryAcquire() {
		return nil
	}

	budget := l.budgets.Next()
	start := l.clock.Snapshot()
	id, err := l.exec.Spawn(ctx, budget)
	if err != nil {
		if ctx.Err() == nil {
			err = &model.SpawnError{Err: err}
		}
		if rerr := l.gate.Release(); rerr != nil {
			err = errors.Join(err, fmt.Errorf("release permit: %w", rerr))
		}
		return err
	}
	if err := l.table.Allocate(i, id, start, budget); err != nil {
		errs := []error{fmt.Errorf("record task %d: %w", id, err)}
		if serr := l.exec.Stop(id); serr != nil {
			errs = append(errs, fmt.Errorf("stop unrecorded task %d: %w", id, serr))
		}
		if rerr := l.gate.Release(); rerr != nil {
			errs = append(errs, fmt.Errorf("release permit: %w", rerr))
		}
		return errors.Join(errs...)
	}
	l.launched++

	l.logger.Debug("task spawned",
		"slot", i,
		"task_id", id,
		"budget", budget.String(),
		"launched", l.launched,
	)
	l.event(ctx, model.EventSpawn, i, id, "budget "+budget.String())
	l.snapshot(ctx, "spawn")

	if l.launched == l.cfg.Total {
		l.transition(ctx, model.CoordinatorDraining)
	}
	return nil
}

// pollNext sends one poll to the next task in round-robin order and waits for
// its reply. Tasks that have announced their exit are skipped.
func (l *Loop) pollNext(ctx context.Context) error {
	i, ok := l.ring.Next(l.table, func(s model.TaskSlot) bool { return l.exiting[s.TaskID] })
	if !ok {
		return nil
	}
	id := l.table.Slot(i).TaskID
	l.seq++
	msg := model.PollMessage{Target: id, Seq: l.seq}

	l.event(ctx, model.EventSend, i, id, "")

	pctx := ctx
	if l.cfg.ReplyTimeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, l.cfg.ReplyTimeout)
		defer cancel()
	}
	if err := l.channel.Send(pctx, msg); err != nil {
		return protocolError("send poll", id, err)
	}
	reply, err := l.channel.Await(pctx, id)
	if err != nil {
		return protocolError("await reply", id, err)
	}
	if reply.From != id || reply.Seq != msg.Seq {
		return &model.ProtocolError{
			Op:     "await reply",
			TaskID: id,
			Err:    fmt.Errorf("reply from task %d seq %d does not answer poll seq %d", reply.From, reply.Seq, msg.Seq),
		}
	}

	l.event(ctx, model.EventReceive, i, id, "")
	if !reply.ShouldTerminate {
		return nil
	}

	l.exiting[id] = true
	l.event(ctx, model.EventTerminate, i, id, "")
	return l.confirmExit(ctx, id)
}

// confirmExit gives a task that announced its exit a bounded number of
// non-blocking reap checks. An exit not seen yet is picked up by a later
// iteration.
func (l *Loop) confirmExit(ctx context.Context, id model.TaskID) error {
	for attempt := 0; attempt < l.cfg.ReapAttempts; attempt++ {
		for {
			got, ok := l.exec.TryReap()
			if !ok {
				break
			}
			if err := l.reclaim(ctx, got); err != nil {
				return err
			}
			if got == id {
				return nil
			}
		}
		if l.cfg.ReapBackoff <= 0 {
			continue
		}
		select {
		case <-time.After(l.cfg.ReapBackoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	l.logger.Debug("exit not yet observed", "task_id", id)
	return nil
}

// interrupt hard-stops every active task and terminates the loop.
func (l *Loop) interrupt(ctx context.Context) (Summary, error) {
	cause := context.Cause(ctx)
	rctx := context.WithoutCancel(ctx)
	l.logger.Warn("coordinator interrupted", "cause", cause, "active", l.table.Occupied())
	l.stopAll(rctx)
	l.transition(rctx, model.CoordinatorTerminated)
	return l.summary(), &model.InterruptError{Cause: cause}
}

// fail stops every active task after a fatal error and terminates the loop.
func (l *Loop) fail(ctx context.Context, err error) (Summary, error) {
	l.logger.Error("coordinator failed", "error", err)
	l.stopAll(ctx)
	l.transition(ctx, model.CoordinatorTerminated)
	return l.summary(), err
}

func (l *Loop) stopAll(ctx context.Context) {
	for _, row := range l.table.Rows() {
		if !row.Occupied {
			continue
		}
		if err := l.exec.Stop(row.TaskID); err != nil {
			l.logger.Warn("hard stop", "task_id", row.TaskID, "error", err)
			continue
		}
		l.event(ctx, model.EventStop, row.Index, row.TaskID, "")
	}
}

func (l *Loop) transition(ctx context.Context, next model.CoordinatorState) {
	if !l.state.CanTransitionTo(next) {
		l.logger.Warn("ignored state transition", "from", l.state, "to", next)
		return
	}
	l.logger.Info("state transition", "from", l.state, "to", next, "clock", l.clock.Snapshot().String())
	l.state = next
	l.event(ctx, model.EventState, -1, model.NoTask, next.String())
	l.snapshot(ctx, "state "+next.String())
}

func (l *Loop) snapshot(ctx context.Context, reason string) {
	snap := &model.TableSnapshot{
		RunID:         l.cfg.RunID,
		CoordinatorID: l.cfg.CoordinatorID,
		Clock:         l.clock.Snapshot(),
		State:         l.state,
		Launched:      l.launched,
		Reason:        reason,
		Rows:          l.table.Rows(),
	}
	l.latest.Store(snap)
	if err := l.rec.RecordSnapshot(context.WithoutCancel(ctx), *snap); err != nil {
		l.logger.Warn("record snapshot", "error", err)
	}
}

func (l *Loop) event(ctx context.Context, kind model.EventKind, slot int, id model.TaskID, detail string) {
	ev := model.Event{
		RunID:  l.cfg.RunID,
		Kind:   kind,
		Clock:  l.clock.Snapshot(),
		Slot:   slot,
		TaskID: id,
		Detail: detail,
	}
	if err := l.rec.RecordEvent(context.WithoutCancel(ctx), ev); err != nil {
		l.logger.Warn("record event", "kind", kind, "error", err)
	}
}

func (l *Loop) summary() Summary {
	return Summary{
		RunID:      l.cfg.RunID,
		FinalClock: l.clock.Snapshot(),
		Launched:   l.launched,
		Reaped:     l.reaped,
		Occupied:   l.table.Occupied(),
		State:      l.state,
	}
}

func protocolError(op string, id model.TaskID, err error) error {
	var perr *model.ProtocolError
	if errors.As(err, &perr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("no reply in time: %w", err)
	}
	return &model.ProtocolError{Op: op, TaskID: id, Err: err}
}

var _ Scheduler = (*Loop)(nil)
