// Package history keeps finished worker tasks in a SQLite database.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/omnitool/omnitool/internal/model"

	_ "modernc.org/sqlite"
)

const timeLayout = time.RFC3339Nano

// Store is a model.RecordCloser backed by SQLite.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating history dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("opening history: %w", err)
	}
	// a single connection serializes writers from concurrent exit funcs
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `
		PRAGMA busy_timeout = 5000;
		PRAGMA journal_mode = WAL;
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configuring history: %w", err)
	}

	s := &Store{db: db}
	if err := s.initTable(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating history tables: %w", err)
	}
	return s, nil
}

func (s *Store) initTable(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		correlation_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		args TEXT NOT NULL,
		pid INTEGER,
		state TEXT NOT NULL,
		exit_code INTEGER,
		signal TEXT,
		error TEXT,
		started TEXT NOT NULL,
		stopped TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_correlation_id ON tasks(correlation_id);
	`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// Record stores one finished task.
func (s *Store) Record(ctx context.Context, rec model.TaskRecord) error {
	args, err := json.Marshal(rec.Args)
	if err != nil {
		return fmt.Errorf("encoding args: %w", err)
	}
	query := `INSERT INTO tasks (correlation_id, kind, args, pid, state, exit_code, signal, error, started, stopped) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		rec.CorrelationID,
		rec.Kind.String(),
		string(args),
		rec.PID,
		rec.State.String(),
		rec.ExitCode,
		rec.Signal,
		rec.Error,
		rec.Started.UTC().Format(timeLayout),
		rec.Stopped.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("recording task %s: %w", rec.CorrelationID, err)
	}
	return nil
}

// List returns up to limit records, newest first. A limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]model.TaskRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `SELECT correlation_id, kind, args, pid, state, exit_code, signal, error, started, stopped FROM tasks ORDER BY id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.TaskRecord
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Get returns the latest record of a correlation id or model.ErrNotFound.
func (s *Store) Get(ctx context.Context, correlationID string) (model.TaskRecord, error) {
	query := `SELECT correlation_id, kind, args, pid, state, exit_code, signal, error, started, stopped FROM tasks WHERE correlation_id = ? ORDER BY id DESC LIMIT 1`
	rec, err := scan(s.db.QueryRowContext(ctx, query, correlationID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.TaskRecord{}, fmt.Errorf("task %s: %w", correlationID, model.ErrNotFound)
	}
	return rec, err
}

func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (model.TaskRecord, error) {
	var (
		rec              model.TaskRecord
		kind, state      string
		args             string
		signal, errMsg   sql.NullString
		pid, exitCode    sql.NullInt64
		started, stopped string
	)
	if err := row.Scan(&rec.CorrelationID, &kind, &args, &pid, &state, &exitCode, &signal, &errMsg, &started, &stopped); err != nil {
		return model.TaskRecord{}, err
	}
	if err := json.Unmarshal([]byte(args), &rec.Args); err != nil {
		return model.TaskRecord{}, fmt.Errorf("decoding args of %s: %w", rec.CorrelationID, err)
	}
	rec.Kind = parseKind(kind)
	rec.State = parseState(state)
	rec.PID = int(pid.Int64)
	rec.ExitCode = int(exitCode.Int64)
	rec.Signal = signal.String
	rec.Error = errMsg.String

	var err error
	if rec.Started, err = time.Parse(timeLayout, started); err != nil {
		return model.TaskRecord{}, fmt.Errorf("parsing started: %w", err)
	}
	if rec.Stopped, err = time.Parse(timeLayout, stopped); err != nil {
		return model.TaskRecord{}, fmt.Errorf("parsing stopped: %w", err)
	}
	return rec, nil
}

func parseKind(s string) model.Kind {
	for _, k := range []model.Kind{model.KindFetchInfo, model.KindDownload} {
		if k.String() == s {
			return k
		}
	}
	return 0
}

func parseState(s string) model.State {
	for _, st := range []model.State{model.StateSucceeded, model.StateFailed, model.StateCancelled} {
		if st.String() == s {
			return st
		}
	}
	return model.StateRunning
}
