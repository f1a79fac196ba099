package store

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/me/ossim/pkg/model"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
	st, err := NewSQLiteStore(":memory:", logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func sampleRun(id string, created time.Time) *model.Run {
	return &model.Run{
		ID:            id,
		CoordinatorID: 4242,
		Mode:          model.ModeInproc,
		Total:         5,
		Simultaneous:  2,
		TimeLimit:     3,
		Seed:          1 << 63,
		State:         model.RunStateRunning,
		CreatedAt:     created,
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	st := testStore(t)
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestRunLifecycle(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	run := sampleRun("run-1", now)
	if err := st.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	got, err := st.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got == nil {
		t.Fatal("GetRun returned nil")
	}
	if got.State != model.RunStateRunning || got.Seed != 1<<63 || got.Mode != model.ModeInproc {
		t.Errorf("run = %+v", got)
	}
	if got.CompletedAt != nil {
		t.Error("CompletedAt should be nil for a running run")
	}

	done := now.Add(time.Second)
	run.State = model.RunStateCompleted
	run.Launched = 5
	run.FinalClock = model.Clock{Seconds: 7, Nanoseconds: 300}
	run.CompletedAt = &done
	if err := st.FinishRun(ctx, run); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	got, _ = st.GetRun(ctx, "run-1")
	if got.State != model.RunStateCompleted || got.Launched != 5 {
		t.Errorf("finished run = %+v", got)
	}
	if got.FinalClock != run.FinalClock {
		t.Errorf("FinalClock = %v, want %v", got.FinalClock, run.FinalClock)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(done) {
		t.Errorf("CompletedAt = %v, want %v", got.CompletedAt, done)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	st := testStore(t)
	got, err := st.GetRun(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got != nil {
		t.Errorf("GetRun = %+v, want nil", got)
	}
	if err := st.FinishRun(context.Background(), &model.Run{ID: "missing"}); err == nil {
		t.Error("FinishRun of a missing run should fail")
	}
}

func TestListRuns_Pagination(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		if err := st.CreateRun(ctx, sampleRun(fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("CreateRun: %v", err)
		}
	}

	runs, total, err := st.ListRuns(ctx, model.ListOptions{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(runs) != 2 {
		t.Fatalf("len = %d, want 2", len(runs))
	}
	if runs[0].ID != "run-3" || runs[1].ID != "run-2" {
		t.Errorf("order = %s, %s; want newest first", runs[0].ID, runs[1].ID)
	}
}

func TestListRuns_StateFilter(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	base := time.Now().UTC()
	states := []model.RunState{model.RunStateCompleted, model.RunStateFailed, model.RunStateCompleted}
	for i, state := range states {
		run := sampleRun(fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Second))
		if err := st.CreateRun(ctx, run); err != nil {
			t.Fatalf("CreateRun: %v", err)
		}
		run.State = state
		if err := st.FinishRun(ctx, run); err != nil {
			t.Fatalf("FinishRun: %v", err)
		}
	}

	runs, total, err := st.ListRuns(ctx, model.ListOptions{State: model.RunStateCompleted})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if total != 2 || len(runs) != 2 {
		t.Fatalf("total=%d len=%d, want 2 completed runs", total, len(runs))
	}
	for _, r := range runs {
		if r.State != model.RunStateCompleted {
			t.Errorf("run %s state = %s", r.ID, r.State)
		}
	}
}

func TestAuditRecords(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	if err := st.CreateRun(ctx, sampleRun("run-a", time.Now().UTC())); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	snap := model.TableSnapshot{
		RunID:         "run-a",
		CoordinatorID: 4242,
		Clock:         model.Clock{Seconds: 1, Nanoseconds: 500_000_000},
		State:         model.CoordinatorDraining,
		Launched:      2,
		Reason:        "periodic",
		Rows: []model.SlotRow{
			{Index: 0, Occupied: true, TaskID: 12, StartSeconds: 0, StartNanos: 100},
			{Index: 1},
		},
	}
	if err := st.RecordSnapshot(ctx, snap); err != nil {
		t.Fatalf("RecordSnapshot: %v", err)
	}
	events := []model.Event{
		{RunID: "run-a", Kind: model.EventSend, Slot: 0, TaskID: 12},
		{RunID: "run-a", Kind: model.EventState, Slot: -1, Detail: "TERMINATED"},
	}
	for _, ev := range events {
		if err := st.RecordEvent(ctx, ev); err != nil {
			t.Fatalf("RecordEvent: %v", err)
		}
	}

	snaps, err := st.ListSnapshots(ctx, "run-a")
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("snapshots = %d, want 1", len(snaps))
	}
	got := snaps[0]
	if got.Clock != snap.Clock || got.State != snap.State || got.Reason != "periodic" || got.OccupiedCount() != 1 {
		t.Errorf("snapshot = %+v", got)
	}
	if len(got.Rows) != 2 || got.Rows[0].TaskID != 12 {
		t.Errorf("rows = %+v", got.Rows)
	}

	gotEvents, err := st.ListEvents(ctx, "run-a")
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(gotEvents) != 2 || gotEvents[0].Kind != model.EventSend || gotEvents[1].Detail != "TERMINATED" {
		t.Errorf("events = %+v", gotEvents)
	}
}

func TestRecordSnapshot_UnknownRun(t *testing.T) {
	st := testStore(t)
	err := st.RecordSnapshot(context.Background(), model.TableSnapshot{RunID: "nope"})
	if err == nil {
		t.Error("expected foreign key violation for unknown run")
	}
}
