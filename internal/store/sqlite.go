package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/ossim/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// One connection: the coordinator is the only writer, and ":memory:"
	// databases are private to their connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// --- Runs ---

func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.Run) error {
	s.logger.Debug("sql", "op", "insert", "table", "runs", "id", run.ID)

	state := run.State
	if state == "" {
		state = model.RunStateRunning
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, coordinator_id, mode, total, simultaneous, time_limit, seed, state, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.CoordinatorID, string(run.Mode), run.Total, run.Simultaneous, run.TimeLimit,
		int64(run.Seed), string(state), run.CreatedAt.Format(time.RFC3339Nano),
	)
	return err
}

// FinishRun records the outcome of a run.
func (s *SQLiteStore) FinishRun(ctx context.Context, run *model.Run) error {
	s.logger.Debug("sql", "op", "update", "table", "runs", "id", run.ID, "state", run.State)

	var completedAt *string
	if run.CompletedAt != nil {
		v := run.CompletedAt.Format(time.RFC3339Nano)
		completedAt = &v
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET state = ?, launched = ?, final_seconds = ?, final_nanos = ?, error = ?, completed_at = ?
		 WHERE id = ?`,
		string(run.State), run.Launched, run.FinalClock.Seconds, run.FinalClock.Nanoseconds,
		run.Error, completedAt, run.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s not found", run.ID)
	}
	return nil
}

const runColumns = `id, coordinator_id, mode, total, simultaneous, time_limit, seed, state, launched,
	final_seconds, final_nanos, error, created_at, completed_at`

// GetRun returns the run with the given id, or nil if none exists.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	s.logger.Debug("sql", "op", "select", "table", "runs", "id", id)

	run, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

// ListRuns returns runs newest first together with the total count.
func (s *SQLiteStore) ListRuns(ctx context.Context, opts model.ListOptions) ([]*model.Run, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "runs", "limit", opts.Limit, "offset", opts.Offset, "state", opts.State)
	opts.Clamp()

	where := ""
	var args []any
	if opts.State != "" {
		where = ` WHERE state = ?`
		args = append(args, string(opts.State))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs`+where+` ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		append(args, opts.Limit, opts.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, run)
	}
	return runs, total, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*model.Run, error) {
	var run model.Run
	var mode, state, createdAt string
	var seed int64
	var completedAt *string

	if err := row.Scan(&run.ID, &run.CoordinatorID, &mode, &run.Total, &run.Simultaneous, &run.TimeLimit,
		&seed, &state, &run.Launched, &run.FinalClock.Seconds, &run.FinalClock.Nanoseconds,
		&run.Error, &createdAt, &completedAt); err != nil {
		return nil, err
	}
	run.Mode = model.ExecutionMode(mode)
	run.State = model.RunState(state)
	run.Seed = uint64(seed)
	run.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if completedAt != nil {
		t, _ := time.Parse(time.RFC3339Nano, *completedAt)
		run.CompletedAt = &t
	}
	return &run, nil
}

// --- Audit records ---

// RecordSnapshot appends one process-table snapshot.
func (s *SQLiteStore) RecordSnapshot(ctx context.Context, snap model.TableSnapshot) error {
	rowsJSON, err := json.Marshal(snap.Rows)
	if err != nil {
		return fmt.Errorf("marshal rows: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots (run_id, coordinator_id, clock_seconds, clock_nanos, state, launched, rows, reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.RunID, snap.CoordinatorID, snap.Clock.Seconds, snap.Clock.Nanoseconds,
		string(snap.State), snap.Launched, string(rowsJSON), snap.Reason,
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// RecordEvent appends one coordinator event.
func (s *SQLiteStore) RecordEvent(ctx context.Context, ev model.Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (run_id, kind, clock_seconds, clock_nanos, slot, task_id, detail)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.RunID, string(ev.Kind), ev.Clock.Seconds, ev.Clock.Nanoseconds, ev.Slot, int64(ev.TaskID), ev.Detail,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// ListSnapshots returns a run's snapshots in recording order.
func (s *SQLiteStore) ListSnapshots(ctx context.Context, runID string) ([]model.TableSnapshot, error) {
	s.logger.Debug("sql", "op", "list", "table", "snapshots", "run_id", runID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, coordinator_id, clock_seconds, clock_nanos, state, launched, rows, reason
		 FROM snapshots WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []model.TableSnapshot
	for rows.Next() {
		var snap model.TableSnapshot
		var state, rowsJSON string
		if err := rows.Scan(&snap.RunID, &snap.CoordinatorID, &snap.Clock.Seconds, &snap.Clock.Nanoseconds,
			&state, &snap.Launched, &rowsJSON, &snap.Reason); err != nil {
			return nil, err
		}
		snap.State = model.CoordinatorState(state)
		if err := json.Unmarshal([]byte(rowsJSON), &snap.Rows); err != nil {
			return nil, fmt.Errorf("unmarshal rows: %w", err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// ListEvents returns a run's events in recording order.
func (s *SQLiteStore) ListEvents(ctx context.Context, runID string) ([]model.Event, error) {
	s.logger.Debug("sql", "op", "list", "table", "events", "run_id", runID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, kind, clock_seconds, clock_nanos, slot, task_id, detail
		 FROM events WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var ev model.Event
		var kind string
		var taskID int64
		if err := rows.Scan(&ev.RunID, &kind, &ev.Clock.Seconds, &ev.Clock.Nanoseconds,
			&ev.Slot, &taskID, &ev.Detail); err != nil {
			return nil, err
		}
		ev.Kind = model.EventKind(kind)
		ev.TaskID = model.TaskID(taskID)
		events = append(events, ev)
	}
	return events, rows.Err()
}

var _ Store = (*SQLiteStore)(nil)
