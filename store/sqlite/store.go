// Package sqlite implements store.Store on a single SQLite file using the
// pure-Go modernc.org/sqlite driver. Records survive a restart of the
// process but are not shared between hosts.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/xraph/jobrunner"
	"github.com/xraph/jobrunner/id"
	"github.com/xraph/jobrunner/job"
	"github.com/xraph/jobrunner/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
  id         TEXT PRIMARY KEY,
  kind       TEXT NOT NULL,
  status     TEXT NOT NULL,
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL,
  work_dir   TEXT NOT NULL,
  error      TEXT,
  result     BLOB
);
`

// Store is a SQLite-backed job record store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("jobrunner/sqlite: open: %w", err)
	}
	// A single connection serializes writers inside the process.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("jobrunner/sqlite: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Ping checks the database handle.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// CreateJob inserts a new record.
func (s *Store) CreateJob(ctx context.Context, r *job.Record) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, kind, status, created_at, updated_at, work_dir, error, result)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO NOTHING`,
		r.ID.String(),
		r.Kind,
		string(r.Status),
		r.CreatedAt.UnixNano(),
		r.UpdatedAt.UnixNano(),
		r.WorkDir,
		nullString(r.Error),
		nullBytes(r.Result),
	)
	if err != nil {
		return fmt.Errorf("jobrunner/sqlite: create job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("jobrunner/sqlite: create job: %w", err)
	}
	if n == 0 {
		return jobrunner.ErrJobAlreadyExists
	}
	return nil
}

// GetJob retrieves a record by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, kind, status, created_at, updated_at, work_dir, error, result
       FROM jobs WHERE id = ?`, jobID.String(),
	)
	var (
		rawID, kind, status, workDir string
		createdNs, updatedNs         int64
		errMsg                       sql.NullString
		result                       []byte
	)
	if err := row.Scan(&rawID, &kind, &status, &createdNs, &updatedNs, &workDir, &errMsg, &result); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, jobrunner.ErrJobNotFound
		}
		return nil, fmt.Errorf("jobrunner/sqlite: get job: %w", err)
	}
	parsed, err := id.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("jobrunner/sqlite: parse job id: %w", err)
	}
	r := &job.Record{
		ID:        parsed,
		Kind:      kind,
		Status:    job.Status(status),
		CreatedAt: time.Unix(0, createdNs).UTC(),
		UpdatedAt: time.Unix(0, updatedNs).UTC(),
		WorkDir:   workDir,
		Error:     errMsg.String,
	}
	if result != nil {
		r.Result = result
	}
	return r, nil
}

// UpdateJob applies u with a single statement guarded by the predecessor
// status, so the check and the write are one atomic step.
func (s *Store) UpdateJob(ctx context.Context, jobID id.JobID, u job.Update) error {
	prev, ok := u.Status.Predecessor()
	if !ok {
		return jobrunner.ErrInvalidState
	}

	var (
		query string
		args  []any
		at    = u.At.UTC().UnixNano()
	)
	switch u.Status {
	case job.StatusFinished:
		query = `UPDATE jobs SET status = ?, updated_at = MAX(updated_at, ?), result = ?, error = NULL
                 WHERE id = ? AND status = ?`
		args = []any{string(u.Status), at, nullBytes(u.Result), jobID.String(), string(prev)}
	case job.StatusFailed:
		query = `UPDATE jobs SET status = ?, updated_at = MAX(updated_at, ?), error = ?, result = NULL
                 WHERE id = ? AND status = ?`
		args = []any{string(u.Status), at, u.Error, jobID.String(), string(prev)}
	default:
		query = `UPDATE jobs SET status = ?, updated_at = MAX(updated_at, ?)
                 WHERE id = ? AND status = ?`
		args = []any{string(u.Status), at, jobID.String(), string(prev)}
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("jobrunner/sqlite: update job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("jobrunner/sqlite: update job: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM jobs WHERE id = ?`, jobID.String()).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return jobrunner.ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("jobrunner/sqlite: update job: %w", err)
	}
	return jobrunner.ErrInvalidState
}

// DeleteJob removes a record and reports whether it existed.
func (s *Store) DeleteJob(ctx context.Context, jobID id.JobID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, jobID.String())
	if err != nil {
		return false, fmt.Errorf("jobrunner/sqlite: delete job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("jobrunner/sqlite: delete job: %w", err)
	}
	return n > 0, nil
}

// ListJobIDs returns the ids of all records.
func (s *Store) ListJobIDs(ctx context.Context) ([]id.JobID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM jobs ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("jobrunner/sqlite: list job ids: %w", err)
	}
	defer rows.Close()

	var ids []id.JobID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("jobrunner/sqlite: list job ids: %w", err)
		}
		parsed, err := id.Parse(raw)
		if err != nil {
			continue
		}
		ids = append(ids, parsed)
	}
	return ids, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullBytes(b []byte) any {
	if b == nil {
		return nil
	}
	return b
}
