// Package ui renders a read-only HTML dashboard of the live process table and
// the recorded runs.
package ui

import (
	"bytes"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/me/ossim/internal/store"
	"github.com/me/ossim/pkg/model"
)

// Source provides the coordinator's latest process-table snapshot.
type Source interface {
	Latest() *model.TableSnapshot
}

// UI handles the web user interface.
type UI struct {
	source    Source      // nil when no run is attached
	store     store.Store // nil without an audit database
	logger    *slog.Logger
	startTime time.Time
}

// New creates a new UI handler. src and st may be nil.
func New(src Source, st store.Store, logger *slog.Logger) *UI {
	return &UI{
		source:    src,
		store:     st,
		logger:    logger.With("component", "ui"),
		startTime: time.Now(),
	}
}

// RegisterRoutes registers all UI routes on the given router.
func (ui *UI) RegisterRoutes(r chi.Router) {
	r.Get("/", ui.HandleDashboard)
	r.Get("/table", ui.HandleTable)
	r.Get("/runs/{id}", ui.HandleRunDetail)
}

// HandleDashboard renders the live table and the most recent runs.
func (ui *UI) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{
		"Title":  "Dashboard - oss",
		"Table":  ui.latest(),
		"Uptime": time.Since(ui.startTime).Round(time.Second).String(),
	}
	if ui.store != nil {
		runs, total, err := ui.store.ListRuns(r.Context(), model.ListOptions{Limit: 10})
		if err != nil {
			ui.renderError(w, "Failed to list runs", err)
			return
		}
		data["Runs"] = runs
		data["RunCount"] = total
		data["HasStore"] = true
	}
	ui.render(w, "dashboard", data)
}

// HandleTable renders only the live table; the dashboard polls it.
func (ui *UI) HandleTable(w http.ResponseWriter, r *http.Request) {
	ui.renderPartial(w, "table", map[string]any{"Table": ui.latest()})
}

// HandleRunDetail renders one stored run with its snapshots and events.
func (ui *UI) HandleRunDetail(w http.ResponseWriter, r *http.Request) {
	if ui.store == nil {
		ui.renderNotFound(w, "No audit database is configured.")
		return
	}
	id := chi.URLParam(r, "id")
	run, err := ui.store.GetRun(r.Context(), id)
	if err != nil {
		ui.renderError(w, "Failed to load run", err)
		return
	}
	if run == nil {
		ui.renderNotFound(w, "Run "+id+" not found.")
		return
	}
	snaps, err := ui.store.ListSnapshots(r.Context(), id)
	if err != nil {
		ui.renderError(w, "Failed to load snapshots", err)
		return
	}
	events, err := ui.store.ListEvents(r.Context(), id)
	if err != nil {
		ui.renderError(w, "Failed to load events", err)
		return
	}

	ui.render(w, "runs/detail", map[string]any{
		"Title":     "Run " + run.ID + " - oss",
		"Run":       run,
		"Snapshots": snaps,
		"Events":    events,
	})
}

func (ui *UI) latest() *model.TableSnapshot {
	if ui.source == nil {
		return nil
	}
	return ui.source.Latest()
}

func (ui *UI) render(w http.ResponseWriter, template string, data map[string]any) {
	var buf bytes.Buffer
	if err := renderTemplate(&buf, template, data); err != nil {
		ui.logger.Error("template render failed", "template", template, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

func (ui *UI) renderPartial(w http.ResponseWriter, name string, data map[string]any) {
	var buf bytes.Buffer
	if err := renderComponent(&buf, name, data); err != nil {
		ui.logger.Error("template render failed", "template", name, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

func (ui *UI) renderError(w http.ResponseWriter, message string, err error) {
	ui.logger.Error(message, "error", err)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusInternalServerError)
	ui.render(w, "error", map[string]any{
		"Title":   "Error - oss",
		"Message": message,
	})
}

func (ui *UI) renderNotFound(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	ui.render(w, "error", map[string]any{
		"Title":   "Not Found - oss",
		"Message": message,
	})
}
