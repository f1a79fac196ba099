// Package table holds the coordinator's process table and the round-robin
// dispatch ring over its occupied slots.
package table

import (
	"errors"
	"fmt"

	"github.com/me/ossim/pkg/model"
)

var (
	ErrSlotOccupied = errors.New("table: slot already occupied")
	ErrSlotFree     = errors.New("table: slot is not occupied")
	ErrNoSuchSlot   = errors.New("table: slot index out of range")
	ErrNoTaskID     = errors.New("table: task id is the unassigned sentinel")
)

// ProcessTable is a fixed-capacity sequence of task slots. It is owned by the
// coordinator and is not safe for concurrent use.
type ProcessTable struct {
	slots    []model.TaskSlot
	occupied int
}

// New creates a table with capacity slots, all free.
func New(capacity int) *ProcessTable {
	return &ProcessTable{slots: make([]model.TaskSlot, capacity)}
}

// Capacity returns the fixed number of slots.
func (t *ProcessTable) Capacity() int {
	return len(t.slots)
}

// Occupied returns the number of occupied slots.
func (t *ProcessTable) Occupied() int {
	return t.occupied
}

// FindFree returns the lowest-indexed free slot.
func (t *ProcessTable) FindFree() (int, bool) {
	for i := range t.slots {
		if !t.slots[i].Occupied {
			return i, true
		}
	}
	return -1, false
}

// Allocate records a newly spawned task in slot i.
func (t *ProcessTable) Allocate(i int, id model.TaskID, start model.Clock, budget model.Budget) error {
	if err := t.check(i); err != nil {
		return err
	}
	if id == model.NoTask {
		return ErrNoTaskID
	}
	if t.slots[i].Occupied {
		return fmt.Errorf("%w: slot %d holds task %d", ErrSlotOccupied, i, t.slots[i].TaskID)
	}
	t.slots[i] = model.TaskSlot{Occupied: true, TaskID: id, StartTime: start, Budget: budget}
	t.occupied++
	return nil
}

// Free clears slot i. Freeing a free slot is a caller error and leaves the
// table unchanged.
func (t *ProcessTable) Free(i int) error {
	if err := t.check(i); err != nil {
		return err
	}
	if !t.slots[i].Occupied {
		return fmt.Errorf("%w: slot %d", ErrSlotFree, i)
	}
	t.slots[i] = model.TaskSlot{}
	t.occupied--
	return nil
}

// IndexOf returns the slot holding task id.
func (t *ProcessTable) IndexOf(id model.TaskID) (int, bool) {
	if id == model.NoTask {
		return -1, false
	}
	for i := range t.slots {
		if t.slots[i].Occupied && t.slots[i].TaskID == id {
			return i, true
		}
	}
	return -1, false
}

// Slot returns a copy of slot i.
func (t *ProcessTable) Slot(i int) model.TaskSlot {
	return t.slots[i]
}

// Active returns the ids of occupied slots in ascending slot order.
func (t *ProcessTable) Active() []model.TaskID {
	ids := make([]model.TaskID, 0, t.occupied)
	for _, s := range t.slots {
		if s.Occupied {
			ids = append(ids, s.TaskID)
		}
	}
	return ids
}

// Rows renders every slot for a snapshot record.
func (t *ProcessTable) Rows() []model.SlotRow {
	rows := make([]model.SlotRow, len(t.slots))
	for i, s := range t.slots {
		rows[i] = model.SlotRow{
			Index:        i,
			Occupied:     s.Occupied,
			TaskID:       s.TaskID,
			StartSeconds: s.StartTime.Seconds,
			StartNanos:   s.StartTime.Nanoseconds,
		}
	}
	return rows
}

func (t *ProcessTable) check(i int) error {
	if i < 0 || i >= len(t.slots) {
		return fmt.Errorf("%w: %d (capacity %d)", ErrNoSuchSlot, i, len(t.slots))
	}
	return nil
}
