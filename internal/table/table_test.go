package table

import (
	"errors"
	"testing"

	"github.com/me/ossim/pkg/model"
)

func TestProcessTable_FirstFit(t *testing.T) {
	tbl := New(3)

	for want := 0; want < 3; want++ {
		i, ok := tbl.FindFree()
		if !ok || i != want {
			t.Fatalf("FindFree = (%d, %v), want (%d, true)", i, ok, want)
		}
		if err := tbl.Allocate(i, model.TaskID(100+want), model.Clock{Seconds: 1}, model.Budget{Seconds: 2}); err != nil {
			t.Fatalf("Allocate(%d): %v", i, err)
		}
	}
	if _, ok := tbl.FindFree(); ok {
		t.Error("FindFree on a full table should report none")
	}

	// Freeing the middle slot makes it the next first fit.
	if err := tbl.Free(1); err != nil {
		t.Fatalf("Free(1): %v", err)
	}
	if i, ok := tbl.FindFree(); !ok || i != 1 {
		t.Errorf("FindFree after Free(1) = (%d, %v), want (1, true)", i, ok)
	}
	if tbl.Occupied() != 2 {
		t.Errorf("Occupied = %d, want 2", tbl.Occupied())
	}
}

func TestProcessTable_AllocateOccupied(t *testing.T) {
	tbl := New(1)
	if err := tbl.Allocate(0, 7, model.Clock{}, model.Budget{}); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	err := tbl.Allocate(0, 8, model.Clock{}, model.Budget{})
	if !errors.Is(err, ErrSlotOccupied) {
		t.Fatalf("Allocate on occupied slot err = %v, want ErrSlotOccupied", err)
	}
	if got := tbl.Slot(0).TaskID; got != 7 {
		t.Errorf("slot 0 task = %d, want 7 (unchanged)", got)
	}
}

func TestProcessTable_FreeFreeSlotIsRejected(t *testing.T) {
	tbl := New(2)
	err := tbl.Free(1)
	if !errors.Is(err, ErrSlotFree) {
		t.Fatalf("Free on free slot err = %v, want ErrSlotFree", err)
	}
	if tbl.Occupied() != 0 {
		t.Errorf("Occupied = %d after rejected Free, want 0", tbl.Occupied())
	}

	tbl.Allocate(1, 3, model.Clock{}, model.Budget{})
	if err := tbl.Free(1); err != nil {
		t.Fatalf("Free: %v", err)
	}
	if err := tbl.Free(1); !errors.Is(err, ErrSlotFree) {
		t.Errorf("second Free err = %v, want ErrSlotFree", err)
	}
	if tbl.Occupied() != 0 {
		t.Errorf("Occupied = %d, want 0", tbl.Occupied())
	}
}

func TestProcessTable_FreeZeroesSlot(t *testing.T) {
	tbl := New(1)
	tbl.Allocate(0, 11, model.Clock{Seconds: 4, Nanoseconds: 5}, model.Budget{Seconds: 6, Nanoseconds: 7})
	tbl.Free(0)
	if s := tbl.Slot(0); !s.IsZero() {
		t.Errorf("freed slot = %+v, want zero value", s)
	}
}

func TestProcessTable_BadIndex(t *testing.T) {
	tbl := New(2)
	if err := tbl.Allocate(2, 1, model.Clock{}, model.Budget{}); !errors.Is(err, ErrNoSuchSlot) {
		t.Errorf("Allocate(2) err = %v, want ErrNoSuchSlot", err)
	}
	if err := tbl.Free(-1); !errors.Is(err, ErrNoSuchSlot) {
		t.Errorf("Free(-1) err = %v, want ErrNoSuchSlot", err)
	}
	if err := tbl.Allocate(0, model.NoTask, model.Clock{}, model.Budget{}); !errors.Is(err, ErrNoTaskID) {
		t.Errorf("Allocate(NoTask) err = %v, want ErrNoTaskID", err)
	}
}

func TestProcessTable_IndexOfAndRows(t *testing.T) {
	tbl := New(3)
	tbl.Allocate(0, 10, model.Clock{Seconds: 1, Nanoseconds: 100}, model.Budget{})
	tbl.Allocate(2, 30, model.Clock{Seconds: 3, Nanoseconds: 300}, model.Budget{})

	if i, ok := tbl.IndexOf(30); !ok || i != 2 {
		t.Errorf("IndexOf(30) = (%d, %v), want (2, true)", i, ok)
	}
	if _, ok := tbl.IndexOf(20); ok {
		t.Error("IndexOf(20) should not be found")
	}
	if _, ok := tbl.IndexOf(model.NoTask); ok {
		t.Error("IndexOf(NoTask) should not match free slots")
	}

	rows := tbl.Rows()
	if len(rows) != 3 {
		t.Fatalf("Rows len = %d, want 3", len(rows))
	}
	if rows[1].Occupied || rows[1].TaskID != model.NoTask {
		t.Errorf("row 1 = %+v, want free", rows[1])
	}
	if rows[2].StartSeconds != 3 || rows[2].StartNanos != 300 {
		t.Errorf("row 2 = %+v", rows[2])
	}

	active := tbl.Active()
	if len(active) != 2 || active[0] != 10 || active[1] != 30 {
		t.Errorf("Active = %v, want [10 30]", active)
	}
}
