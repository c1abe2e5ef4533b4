// Package history persists run outcomes to a local SQLite database so
// past cycles stay inspectable after the process exits.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// ErrDisabled is returned by every method of a nil Store, so callers
// that run without history can hold a nil pointer and not care.
var ErrDisabled = errors.New("history is disabled")

// Run is one recorded job execution.
type Run struct {
	ID         uuid.UUID
	Job        string
	Status     string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens the history database at path, creating the file and
// schema as needed.
func Open(path string, log zerolog.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("history path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, _ = db.Exec("PRAGMA busy_timeout = 5000")
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(schemaRuns); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	return s.db.PingContext(ctx)
}

// Record inserts one run. A zero ID is assigned on the way in.
func (s *Store) Record(ctx context.Context, run Run) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx, queryInsertRun,
		run.ID.String(),
		run.Job,
		run.Status,
		nullStr(run.Error),
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx, queryRecentRuns, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRuns(rows)
}

// RecentForJob returns up to limit runs of one job, newest first.
func (s *Store) RecentForJob(ctx context.Context, job string, limit int) ([]Run, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx, queryRecentRunsForJob, job, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRuns(rows)
}

// PruneBefore deletes up to batchSize runs that finished before
// cutoff and reports how many went.
func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	result, err := s.db.ExecContext(ctx, queryPruneRuns,
		cutoff.UTC().Format(time.RFC3339Nano), batchSize)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanRuns(rows *sql.Rows) ([]Run, error) {
	var result []Run
	for rows.Next() {
		var (
			run        Run
			id         string
			errMsg     sql.NullString
			startedAt  string
			finishedAt string
		)
		if err := rows.Scan(&id, &run.Job, &run.Status, &errMsg, &startedAt, &finishedAt); err != nil {
			return nil, err
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("run id %q: %w", id, err)
		}
		run.ID = parsed
		run.Error = errMsg.String
		if run.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
			return nil, fmt.Errorf("run %s started_at: %w", id, err)
		}
		if run.FinishedAt, err = time.Parse(time.RFC3339Nano, finishedAt); err != nil {
			return nil, fmt.Errorf("run %s finished_at: %w", id, err)
		}
		result = append(result, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
