package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"

	"github.com/me/ossim/internal/ipc"
	"github.com/me/ossim/pkg/model"
)

// ProcessConfig configures the process executor.
type ProcessConfig struct {
	// Binary is the executable started for each task. Empty means the
	// running executable.
	Binary string
	// Args precede the budget and clock flags. Empty means ["worker"].
	Args []string
	// ClockPath is the shared clock file tasks map read-only.
	ClockPath string
	// Env is the task environment. Nil inherits the coordinator's.
	Env []string
	// Stderr receives task diagnostics. Nil discards them.
	Stderr io.Writer
}

type proc struct {
	cmd   *exec.Cmd
	conn  *ipc.StreamConn
	stdin io.WriteCloser
}

// Process runs each task as a child OS process. Polls travel over the child's
// stdin and replies over its stdout; the task id is the child's pid.
type Process struct {
	cfg    ProcessConfig
	logger *slog.Logger

	mu     sync.Mutex
	procs  map[model.TaskID]*proc
	exited []model.TaskID
	closed bool
	wg     sync.WaitGroup

	channel *processChannel
}

// NewProcess creates a process executor.
func NewProcess(cfg ProcessConfig, logger *slog.Logger) (*Process, error) {
	if cfg.ClockPath == "" {
		return nil, errors.New("process executor: no shared clock path")
	}
	if cfg.Binary == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("process executor: locate executable: %w", err)
		}
		cfg.Binary = exe
	}
	if len(cfg.Args) == 0 {
		cfg.Args = []string{"worker"}
	}
	if cfg.Stderr == nil {
		cfg.Stderr = io.Discard
	}
	p := &Process{
		cfg:    cfg,
		logger: logger.With("component", "process-executor"),
		procs:  make(map[model.TaskID]*proc),
	}
	p.channel = &processChannel{exec: p, done: make(chan struct{})}
	return p, nil
}

// Mode returns model.ModeProcess.
func (p *Process) Mode() model.ExecutionMode {
	return model.ModeProcess
}

// Channel returns the coordinator side of the per-task pipes.
func (p *Process) Channel() ipc.Channel {
	return p.channel
}

// Spawn starts one worker process.
func (p *Process) Spawn(_ context.Context, budget model.Budget) (model.TaskID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return model.NoTask, ErrClosed
	}

	args := append([]string{}, p.cfg.Args...)
	args = append(args,
		"--seconds", strconv.FormatUint(uint64(budget.Seconds), 10),
		"--nanos", strconv.FormatUint(uint64(budget.Nanoseconds), 10),
		"--clock", p.cfg.ClockPath,
	)
	// Tasks are stopped through Stop and Close, never through a context.
	cmd := exec.Command(p.cfg.Binary, args...)
	cmd.Env = p.cfg.Env
	cmd.Stderr = p.cfg.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return model.NoTask, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return model.NoTask, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		stdin.Close()
		return model.NoTask, fmt.Errorf("start %s: %w", p.cfg.Binary, err)
	}

	id := model.TaskID(cmd.Process.Pid)
	pr := &proc{cmd: cmd, conn: ipc.NewStreamConn(id, stdin), stdin: stdin}
	p.procs[id] = pr

	p.wg.Add(1)
	go p.supervise(id, pr, stdout)

	p.logger.Debug("task started", "task_id", id, "budget", budget.String())
	return id, nil
}

// supervise feeds replies to the conn until the child closes stdout, then
// collects its exit status.
func (p *Process) supervise(id model.TaskID, pr *proc, stdout io.Reader) {
	defer p.wg.Done()
	pr.conn.Pump(stdout)
	err := pr.cmd.Wait()
	pr.conn.Close()

	if err != nil {
		p.logger.Debug("task exited", "task_id", id, "error", err)
	} else {
		p.logger.Debug("task exited", "task_id", id)
	}

	p.mu.Lock()
	p.exited = append(p.exited, id)
	p.mu.Unlock()
}

// TryReap pops the oldest unreported exit and forgets the task.
func (p *Process) TryReap() (model.TaskID, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.exited) == 0 {
		return model.NoTask, false
	}
	id := p.exited[0]
	p.exited = p.exited[1:]
	if pr, ok := p.procs[id]; ok {
		pr.stdin.Close()
		delete(p.procs, id)
	}
	return id, true
}

// Stop sends SIGTERM to the task.
func (p *Process) Stop(id model.TaskID) error {
	pr, ok := p.lookup(id)
	if !ok {
		return fmt.Errorf("task %d is not running", id)
	}
	if err := pr.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("signal task %d: %w", id, err)
	}
	return nil
}

// Close kills every task still running and waits for it to be collected.
func (p *Process) Close() error {
	p.mu.Lock()
	p.closed = true
	for _, pr := range p.procs {
		pr.stdin.Close()
		pr.conn.Close()
		if err := pr.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			p.logger.Warn("kill task", "pid", pr.cmd.Process.Pid, "error", err)
		}
	}
	p.mu.Unlock()

	p.wg.Wait()
	return nil
}

func (p *Process) lookup(id model.TaskID) (*proc, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pr, ok := p.procs[id]
	return pr, ok
}

// processChannel routes polls to the child addressed by the poll's target.
type processChannel struct {
	exec *Process
	once sync.Once
	done chan struct{}
}

func (c *processChannel) Send(_ context.Context, msg model.PollMessage) error {
	select {
	case <-c.done:
		return &model.ProtocolError{Op: "send poll", TaskID: msg.Target, Err: ipc.ErrClosed}
	default:
	}
	pr, ok := c.exec.lookup(msg.Target)
	if !ok {
		return &model.ProtocolError{Op: "send poll", TaskID: msg.Target, Err: ipc.ErrUndeliverable}
	}
	if err := pr.conn.Send(msg); err != nil {
		return &model.ProtocolError{Op: "send poll", TaskID: msg.Target, Err: err}
	}
	return nil
}

func (c *processChannel) Await(ctx context.Context, from model.TaskID) (model.ReplyMessage, error) {
	pr, ok := c.exec.lookup(from)
	if !ok {
		return model.ReplyMessage{}, &model.ProtocolError{Op: "await reply", TaskID: from, Err: ipc.ErrUndeliverable}
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return pr.conn.Await(ctx)
}

// Close closes every child's stdin. Children read EOF and exit.
func (c *processChannel) Close() error {
	c.once.Do(func() {
		close(c.done)
		c.exec.mu.Lock()
		defer c.exec.mu.Unlock()
		for _, pr := range c.exec.procs {
			pr.stdin.Close()
		}
	})
	return nil
}
