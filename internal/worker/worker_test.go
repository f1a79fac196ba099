package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/me/ossim/internal/clock"
	"github.com/me/ossim/internal/ipc"
	"github.com/me/ossim/pkg/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// harness runs one worker over an in-memory mailbox and lets the test act as
// the coordinator.
type harness struct {
	clk    *clock.Clock
	ch     *ipc.MailboxChannel
	worker *Worker
	errc   chan error
	seq    uint64
}

func startWorker(t *testing.T, id model.TaskID, budget model.Budget, advance uint64) *harness {
	t.Helper()
	clk := clock.New(clock.NewMemory())
	clk.Advance(advance)

	mb := ipc.NewMailbox()
	ch, err := mb.Coordinator()
	if err != nil {
		t.Fatalf("Coordinator: %v", err)
	}
	if err := mb.Open(id); err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { mb.Close() })

	h := &harness{
		clk:    clk,
		ch:     ch,
		worker: New(Config{ID: id, Parent: 1, Budget: budget}, clk.Reader(), mb.Endpoint(id), discardLogger()),
		errc:   make(chan error, 1),
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { h.errc <- h.worker.Run(ctx) }()
	return h
}

func (h *harness) poll(t *testing.T, id model.TaskID) model.ReplyMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	h.seq++
	if err := h.ch.Send(ctx, model.PollMessage{Target: id, Seq: h.seq}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	reply, err := h.ch.Await(ctx, id)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if reply.Seq != h.seq {
		t.Fatalf("reply seq = %d, want %d", reply.Seq, h.seq)
	}
	return reply
}

func (h *harness) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.errc:
		return err
	case <-time.After(time.Second):
		t.Fatal("worker did not exit")
		return nil
	}
}

func TestWorker_ZeroBudgetTerminatesOnFirstPoll(t *testing.T) {
	h := startWorker(t, 3, model.Budget{}, 100_000_000)

	reply := h.poll(t, 3)
	if !reply.ShouldTerminate {
		t.Fatal("first reply should request termination for a zero budget")
	}
	if err := h.wait(t); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if h.worker.State() != model.WorkerTerminating {
		t.Errorf("state = %s, want TERMINATING", h.worker.State())
	}
}

func TestWorker_ContinuesUntilDeadline(t *testing.T) {
	budget := model.Budget{Seconds: 0, Nanoseconds: 300_000_000}
	h := startWorker(t, 4, budget, 0)

	// The deadline is fixed when the worker starts at 0:0.
	for i := 0; i < 2; i++ {
		h.clk.Advance(100_000_000)
		if reply := h.poll(t, 4); reply.ShouldTerminate {
			t.Fatalf("poll %d at %v: terminated before deadline", i, h.clk.Snapshot())
		}
	}
	if got := h.worker.Deadline(); got != (model.Clock{Nanoseconds: 300_000_000}) {
		t.Errorf("Deadline = %v, want 0:300000000", got)
	}

	h.clk.Advance(100_000_000)
	if reply := h.poll(t, 4); !reply.ShouldTerminate {
		t.Fatalf("poll at %v should terminate (deadline reached)", h.clk.Snapshot())
	}
	if err := h.wait(t); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestWorker_MisaddressedPollIsProtocolError(t *testing.T) {
	clk := clock.New(clock.NewMemory())
	mb := ipc.NewMailbox()
	defer mb.Close()
	mb.Open(5)

	// Deliver a poll meant for another task straight into task 5's inbox.
	ch, _ := mb.Coordinator()
	w := New(Config{ID: 5, Budget: model.Budget{Seconds: 1}}, clk.Reader(), &misaddressed{ep: mb.Endpoint(5)}, discardLogger())
	go ch.Send(context.Background(), model.PollMessage{Target: 5, Seq: 1})

	err := w.Run(context.Background())
	var perr *model.ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("Run err = %v, want ProtocolError", err)
	}
}

// misaddressed rewrites the target of every received poll.
type misaddressed struct {
	ep ipc.Endpoint
}

func (m *misaddressed) Receive(ctx context.Context) (model.PollMessage, error) {
	msg, err := m.ep.Receive(ctx)
	msg.Target = 99
	return msg, err
}

func (m *misaddressed) Reply(ctx context.Context, msg model.ReplyMessage) error {
	return m.ep.Reply(ctx, msg)
}

func TestWorker_StopWhileAwaitingPoll(t *testing.T) {
	clk := clock.New(clock.NewMemory())
	mb := ipc.NewMailbox()
	defer mb.Close()
	mb.Open(6)

	w := New(Config{ID: 6, Budget: model.Budget{Seconds: 5}}, clk.Reader(), mb.Endpoint(6), discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()

	cancel()
	select {
	case err := <-errc:
		if !IsStopped(err) {
			t.Errorf("Run err = %v, want a stop error", err)
		}
	case <-time.After(time.Second):
		t.Fatal("worker ignored cancellation")
	}
}
