package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver (pure Go)

	sweepv1 "github.com/kination/sweeper/api/v1"
)

// Fixed width so that start_time orders lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var schema = []string{`
CREATE TABLE IF NOT EXISTS runs (
  run_id       TEXT PRIMARY KEY,
  suite        TEXT,
  state        TEXT,
  jobs         INTEGER,
  completed    INTEGER,
  failed       INTEGER,
  workers_lost INTEGER,
  start_time   TEXT,
  end_time     TEXT
)`, `
CREATE TABLE IF NOT EXISTS jobs (
  run_id     TEXT,
  idx        INTEGER,
  label      TEXT,
  state      TEXT,
  worker     TEXT,
  exit_code  INTEGER,
  message    TEXT,
  start_time TEXT,
  end_time   TEXT,
  PRIMARY KEY (run_id, idx)
)`}

// SQLiteStore keeps run history in a SQLite database file
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and creates if needed) the database at path
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer at a time; SQLite serializes anyway.
	db.SetMaxOpenConns(1)
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run *sweepv1.RunStatus) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO runs (run_id, suite, state, jobs, completed, failed, workers_lost, start_time, end_time)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(run_id) DO UPDATE SET
  suite = excluded.suite, state = excluded.state, jobs = excluded.jobs,
  completed = excluded.completed, failed = excluded.failed, workers_lost = excluded.workers_lost,
  start_time = excluded.start_time, end_time = excluded.end_time`,
		run.RunID, run.Suite, string(run.State), run.Jobs, run.Completed, run.Failed, run.WorkersLost,
		formatTime(&run.StartTime), formatTime(run.EndTime))
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.RunID, err)
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*sweepv1.RunStatus, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT run_id, suite, state, jobs, completed, failed, workers_lost, start_time, end_time
FROM runs WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return run, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, opts ListOptions) ([]*sweepv1.RunStatus, error) {
	var (
		where []string
		args  []any
	)
	if opts.Suite != "" {
		where = append(where, "suite = ?")
		args = append(args, opts.Suite)
	}
	if opts.State != "" {
		where = append(where, "state = ?")
		args = append(args, string(opts.State))
	}

	query := `SELECT run_id, suite, state, jobs, completed, failed, workers_lost, start_time, end_time FROM runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY start_time DESC, run_id ASC"
	if opts.Limit > 0 || opts.Offset > 0 {
		limit := opts.Limit
		if limit <= 0 {
			limit = -1
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*sweepv1.RunStatus
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) SaveJobStatus(ctx context.Context, runID string, status *sweepv1.JobStatus) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO jobs (run_id, idx, label, state, worker, exit_code, message, start_time, end_time)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(run_id, idx) DO UPDATE SET
  label = excluded.label, state = excluded.state, worker = excluded.worker,
  exit_code = excluded.exit_code, message = excluded.message,
  start_time = excluded.start_time, end_time = excluded.end_time`,
		runID, status.Index, status.Label, string(status.State), status.Worker, status.ExitCode, status.Message,
		formatTime(status.StartTime), formatTime(status.EndTime))
	if err != nil {
		return fmt.Errorf("failed to save job %d of run %s: %w", status.Index, runID, err)
	}
	return nil
}

func (s *SQLiteStore) ListJobStatuses(ctx context.Context, runID string) ([]sweepv1.JobStatus, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT idx, label, state, worker, exit_code, message, start_time, end_time
FROM jobs WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []sweepv1.JobStatus
	for rows.Next() {
		var (
			j          sweepv1.JobStatus
			state      string
			start, end sql.NullString
		)
		if err := rows.Scan(&j.Index, &j.Label, &state, &j.Worker, &j.ExitCode, &j.Message, &start, &end); err != nil {
			return nil, err
		}
		j.State = sweepv1.JobState(state)
		j.StartTime = parseTime(start)
		j.EndTime = parseTime(end)
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*sweepv1.RunStatus, error) {
	var (
		run        sweepv1.RunStatus
		state      string
		start, end sql.NullString
	)
	if err := row.Scan(&run.RunID, &run.Suite, &state, &run.Jobs, &run.Completed, &run.Failed,
		&run.WorkersLost, &start, &end); err != nil {
		return nil, err
	}
	run.State = sweepv1.RunState(state)
	if t := parseTime(start); t != nil {
		run.StartTime = *t
	}
	run.EndTime = parseTime(end)
	return &run, nil
}

func formatTime(t *time.Time) sql.NullString {
	if t == nil || t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeLayout), Valid: true}
}

func parseTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return nil
	}
	return &t
}
