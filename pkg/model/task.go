package model

import "strconv"

// TaskID identifies one spawned task. For process workers it is the OS pid.
type TaskID int64

// NoTask is the sentinel id carried by unoccupied slots.
const NoTask TaskID = 0

func (id TaskID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// TaskSlot is one row of the coordinator's process table.
// An unoccupied slot has TaskID == NoTask and zero time fields.
type TaskSlot struct {
	Occupied  bool   `json:"occupied"`
	TaskID    TaskID `json:"task_id"`
	StartTime Clock  `json:"start_time"`
	Budget    Budget `json:"budget"`
}

// IsZero reports whether every field of the slot is cleared.
func (s TaskSlot) IsZero() bool {
	return s == TaskSlot{}
}

// PollMessage is sent from the coordinator to exactly one task.
type PollMessage struct {
	Target TaskID `json:"target"`
	Seq    uint64 `json:"seq"`
}

// ReplyMessage is a task's answer to a PollMessage. ShouldTerminate means the
// task's budget is exhausted and it exits right after replying.
type ReplyMessage struct {
	From            TaskID `json:"from"`
	Seq             uint64 `json:"seq"`
	ShouldTerminate bool   `json:"should_terminate"`
}
