package model

import "time"

// SlotRow is one process-table row as it appears in the audit trail.
type SlotRow struct {
	Index        int    `json:"index"`
	Occupied     bool   `json:"occupied"`
	TaskID       TaskID `json:"task_id"`
	StartSeconds uint32 `json:"start_seconds"`
	StartNanos   uint32 `json:"start_nanos"`
}

// TableSnapshot is the process-table record emitted periodically and on every
// state change.
type TableSnapshot struct {
	RunID         string           `json:"run_id"`
	CoordinatorID int              `json:"coordinator_id"`
	Clock         Clock            `json:"clock"`
	State         CoordinatorState `json:"state"`
	Launched      int              `json:"launched"`
	Reason        string           `json:"reason"`
	Rows          []SlotRow        `json:"rows"`
}

// OccupiedCount returns the number of occupied rows.
func (s TableSnapshot) OccupiedCount() int {
	n := 0
	for _, r := range s.Rows {
		if r.Occupied {
			n++
		}
	}
	return n
}

// EventKind classifies coordinator audit events.
type EventKind string

const (
	EventSpawn     EventKind = "spawn"
	EventSend      EventKind = "send"
	EventReceive   EventKind = "receive"
	EventTerminate EventKind = "terminate"
	EventReap      EventKind = "reap"
	EventStop      EventKind = "stop"
	EventState     EventKind = "state"
)

// Event is a single coordinator audit record.
type Event struct {
	RunID  string    `json:"run_id"`
	Kind   EventKind `json:"kind"`
	Clock  Clock     `json:"clock"`
	Slot   int       `json:"slot"`
	TaskID TaskID    `json:"task_id"`
	Detail string    `json:"detail,omitempty"`
}

// Run is the persisted summary of one coordinator execution.
type Run struct {
	ID            string        `json:"id"`
	CoordinatorID int           `json:"coordinator_id"`
	Mode          ExecutionMode `json:"mode"`
	Total         int           `json:"total"`
	Simultaneous  int           `json:"simultaneous"`
	TimeLimit     int           `json:"time_limit"`
	Seed          uint64        `json:"seed"`
	State         RunState      `json:"state"`
	Launched      int           `json:"launched"`
	FinalClock    Clock         `json:"final_clock"`
	Error         string        `json:"error,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
}
