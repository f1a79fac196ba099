package ui

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/me/ossim/internal/store"
	"github.com/me/ossim/pkg/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type staticSource struct {
	snap *model.TableSnapshot
}

func (s staticSource) Latest() *model.TableSnapshot { return s.snap }

func newRouter(ui *UI) http.Handler {
	r := chi.NewRouter()
	r.Route("/ui", ui.RegisterRoutes)
	return r
}

func get(t *testing.T, h http.Handler, path string, wantStatus int) string {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
	if w.Code != wantStatus {
		t.Fatalf("GET %s: status=%d, want %d, body=%s", path, w.Code, wantStatus, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("GET %s: Content-Type=%q", path, ct)
	}
	return w.Body.String()
}

func sampleSnapshot() *model.TableSnapshot {
	return &model.TableSnapshot{
		RunID:         "run-1",
		CoordinatorID: 4242,
		Clock:         model.Clock{Seconds: 3, Nanoseconds: 500},
		State:         model.CoordinatorRunning,
		Launched:      2,
		Rows: []model.SlotRow{
			{Index: 0, Occupied: true, TaskID: 101, StartSeconds: 1, StartNanos: 200},
			{Index: 1},
		},
	}
}

func TestDashboard(t *testing.T) {
	tests := []struct {
		name  string
		src   Source
		wants []string
	}{
		{"live table", staticSource{sampleSnapshot()}, []string{"OSS PID 4242", "1 occupied, 2 launched", "<td class=\"px-2\">101</td>"}},
		{"no run", nil, []string{"No run is attached."}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := get(t, newRouter(New(tt.src, nil, testLogger())), "/ui/", http.StatusOK)
			for _, want := range tt.wants {
				if !strings.Contains(body, want) {
					t.Errorf("body missing %q", want)
				}
			}
			if strings.Contains(body, "Recent Runs") {
				t.Error("runs section should be hidden without a store")
			}
		})
	}
}

func TestTablePartial(t *testing.T) {
	body := get(t, newRouter(New(staticSource{sampleSnapshot()}, nil, testLogger())), "/ui/table", http.StatusOK)
	if strings.Contains(body, "<html") {
		t.Error("partial should not include the layout")
	}
	if !strings.Contains(body, `id="process-table"`) {
		t.Errorf("partial missing table: %s", body)
	}
}

func TestRunDetail(t *testing.T) {
	st, err := store.NewSQLiteStore(":memory:", testLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	ctx := context.Background()
	if err := st.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	run := &model.Run{ID: "run-1", CoordinatorID: 4242, Mode: model.ModeInproc, Total: 2, Simultaneous: 1, TimeLimit: 1, CreatedAt: time.Now().UTC()}
	if err := st.CreateRun(ctx, run); err != nil {
		t.Fatalf("create run: %v", err)
	}
	if err := st.RecordSnapshot(ctx, *sampleSnapshot()); err != nil {
		t.Fatalf("record snapshot: %v", err)
	}
	if err := st.RecordEvent(ctx, model.Event{RunID: "run-1", Kind: model.EventSpawn, TaskID: 101}); err != nil {
		t.Fatalf("record event: %v", err)
	}

	h := newRouter(New(nil, st, testLogger()))

	body := get(t, h, "/ui/", http.StatusOK)
	if !strings.Contains(body, `href="/ui/runs/run-1"`) {
		t.Error("dashboard should link the stored run")
	}

	body = get(t, h, "/ui/runs/run-1", http.StatusOK)
	for _, want := range []string{"Run run-1", "Events (1)", "Snapshots (1)", "OSS PID 4242"} {
		if !strings.Contains(body, want) {
			t.Errorf("detail missing %q", want)
		}
	}

	get(t, h, "/ui/runs/missing", http.StatusNotFound)
}

func TestRunDetail_NoStore(t *testing.T) {
	get(t, newRouter(New(nil, nil, testLogger())), "/ui/runs/x", http.StatusNotFound)
}
