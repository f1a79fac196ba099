// Package tablelog writes the coordinator's audit trail to the run log in a
// tab-separated text form that is easy to read and diff between runs.
package tablelog

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/me/ossim/pkg/model"
)

// Writer appends process-table snapshots and message records to a log
// destination, optionally echoing every record to a second writer.
type Writer struct {
	mu     sync.Mutex
	out    io.Writer
	echo   io.Writer
	closer io.Closer
}

// Open opens path for append, creating it if needed.
func Open(path string, echo io.Writer) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log %s: %w", path, err)
	}
	w := New(f, echo)
	w.closer = f
	return w, nil
}

// New wraps an existing writer. echo may be nil.
func New(out io.Writer, echo io.Writer) *Writer {
	return &Writer{out: out, echo: echo}
}

// RecordSnapshot writes the table.
func (w *Writer) RecordSnapshot(_ context.Context, snap model.TableSnapshot) error {
	return w.write(FormatSnapshot(snap))
}

// RecordEvent writes one message record. Events without a text form are
// skipped.
func (w *Writer) RecordEvent(_ context.Context, ev model.Event) error {
	line := FormatEvent(ev)
	if line == "" {
		return nil
	}
	return w.write(line)
}

// Close closes the log file if Open created it.
func (w *Writer) Close() error {
	if w.closer == nil {
		return nil
	}
	return w.closer.Close()
}

func (w *Writer) write(s string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := io.WriteString(w.out, s); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	if w.echo != nil {
		io.WriteString(w.echo, s)
	}
	return nil
}

// FormatSnapshot renders a snapshot as a header and one row per slot.
func FormatSnapshot(snap model.TableSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n\nOSS PID: \t%d SysClockS: \t%d SysclockNano: \t%d\n",
		snap.CoordinatorID, snap.Clock.Seconds, snap.Clock.Nanoseconds)
	b.WriteString("Process Table: \nEntry\tOccupied\tPID\tStartS\tStartN\n\n")
	for _, r := range snap.Rows {
		occupied := 0
		if r.Occupied {
			occupied = 1
		}
		fmt.Fprintf(&b, "%d\t%d\t%d\t\t%d\t%d\n", r.Index, occupied, r.TaskID, r.StartSeconds, r.StartNanos)
	}
	return b.String()
}

// FormatEvent renders one event as a single line.
func FormatEvent(ev model.Event) string {
	c := ev.Clock
	switch ev.Kind {
	case model.EventSpawn:
		return fmt.Sprintf("OSS: Launching worker %d PID %d at time %d:%d (%s)\n", ev.Slot, ev.TaskID, c.Seconds, c.Nanoseconds, ev.Detail)
	case model.EventSend:
		return fmt.Sprintf("OSS: Sending message to worker %d PID %d at time %d:%d\n", ev.Slot, ev.TaskID, c.Seconds, c.Nanoseconds)
	case model.EventReceive:
		return fmt.Sprintf("OSS: Receiving message from worker %d PID %d at time %d:%d\n", ev.Slot, ev.TaskID, c.Seconds, c.Nanoseconds)
	case model.EventTerminate:
		return fmt.Sprintf("OSS: Worker %d PID %d is about to terminate.\n", ev.Slot, ev.TaskID)
	case model.EventReap:
		return fmt.Sprintf("OSS: Worker %d PID %d has terminated at time %d:%d\n", ev.Slot, ev.TaskID, c.Seconds, c.Nanoseconds)
	case model.EventStop:
		return fmt.Sprintf("OSS: Stopping worker %d PID %d at time %d:%d\n", ev.Slot, ev.TaskID, c.Seconds, c.Nanoseconds)
	case model.EventState:
		return fmt.Sprintf("OSS: Entering state %s at time %d:%d\n", ev.Detail, c.Seconds, c.Nanoseconds)
	}
	return ""
}
