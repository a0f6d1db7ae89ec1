// Package sqlite implements jobs.Repository on SQLite via modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/3leaps/edison/pkg/jobs"
	"github.com/3leaps/edison/pkg/jobstore"
)

const driverName = "sqlite"

var _ jobs.Repository = (*Store)(nil)

// Store persists job records in a single SQLite table.
type Store struct {
	db *sql.DB
}

// Open opens (and creates if needed) the database at path and applies the
// schema. Use ":memory:" for a throwaway database.
//
// Notes:
// - Parent directories of local paths are created.
// - A single connection is kept; WAL and busy_timeout are applied to files.
func Open(ctx context.Context, path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite job store path is required")
	}

	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create job store dir: %w", err)
		}
		dsn = "file:" + filepath.Clean(path)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	// One connection: ":memory:" databases are per connection, and a single
	// writer avoids SQLITE_BUSY for files.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping job store: %w", err)
	}
	if path != ":memory:" {
		if err := configureLocal(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func configureLocal(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var journalMode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode=WAL").Scan(&journalMode); err != nil {
		return fmt.Errorf("enable WAL mode: %w", err)
	}
	var busyTimeout int
	if err := db.QueryRowContext(ctx, "PRAGMA busy_timeout=5000").Scan(&busyTimeout); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	return nil
}

// Migrate creates the jobs table and its indexes.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			uri TEXT NOT NULL,
			job_type TEXT NOT NULL,
			started_ns INTEGER NOT NULL,
			-- stopped_ns is NULL while the job is running.
			stopped_ns INTEGER,
			status TEXT NOT NULL,
			last_updated_ns INTEGER NOT NULL,
			hostname TEXT NOT NULL DEFAULT '',
			-- messages is a JSON array in emission order.
			messages TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_type_started ON jobs(job_type, started_ns);`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_stopped ON jobs(stopped_ns);`,
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate job store: %w", err)
		}
	}
	return tx.Commit()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const selectColumns = `SELECT id, uri, job_type, started_ns, stopped_ns, status, last_updated_ns, hostname, messages FROM jobs`

const newestFirst = ` ORDER BY started_ns DESC, id DESC`

func (s *Store) CreateOrUpdate(ctx context.Context, record *jobs.Record) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("job record with id is required")
	}
	msgs, err := json.Marshal(record.Messages)
	if err != nil {
		return fmt.Errorf("marshal job messages: %w", err)
	}

	var stopped sql.NullInt64
	if record.Stopped != nil {
		stopped = sql.NullInt64{Int64: record.Stopped.UnixNano(), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, uri, job_type, started_ns, stopped_ns, status, last_updated_ns, hostname, messages)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			uri = excluded.uri,
			job_type = excluded.job_type,
			started_ns = excluded.started_ns,
			stopped_ns = excluded.stopped_ns,
			status = excluded.status,
			last_updated_ns = excluded.last_updated_ns,
			hostname = excluded.hostname,
			messages = excluded.messages`,
		record.ID, record.URI, record.JobType, record.Started.UnixNano(), stopped,
		string(record.Status), record.LastUpdated.UnixNano(), record.Hostname, string(msgs),
	)
	if err != nil {
		return s.wrap("CreateOrUpdate", record.ID, err)
	}
	return nil
}

func (s *Store) FindOne(ctx context.Context, id string) (*jobs.Record, error) {
	rows, err := s.query(ctx, "FindOne", selectColumns+` WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", jobs.ErrJobNotFound, id)
	}
	return rows[0], nil
}

func (s *Store) FindAll(ctx context.Context) ([]*jobs.Record, error) {
	return s.query(ctx, "FindAll", selectColumns+newestFirst)
}

func (s *Store) FindByType(ctx context.Context, jobType string) ([]*jobs.Record, error) {
	return s.query(ctx, "FindByType", selectColumns+` WHERE job_type = ?`+newestFirst, jobType)
}

func (s *Store) FindLatest(ctx context.Context, n int) ([]*jobs.Record, error) {
	if n <= 0 {
		return s.FindAll(ctx)
	}
	return s.query(ctx, "FindLatest", selectColumns+newestFirst+` LIMIT ?`, n)
}

func (s *Store) FindLatestBy(ctx context.Context, jobType string, n int) ([]*jobs.Record, error) {
	if n <= 0 {
		return s.FindByType(ctx, jobType)
	}
	return s.query(ctx, "FindLatestBy", selectColumns+` WHERE job_type = ?`+newestFirst+` LIMIT ?`, jobType, n)
}

func (s *Store) FindRunning(ctx context.Context) ([]*jobs.Record, error) {
	return s.query(ctx, "FindRunning", selectColumns+` WHERE stopped_ns IS NULL`+newestFirst)
}

func (s *Store) RemoveIfStopped(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ? AND stopped_ns IS NOT NULL`, id); err != nil {
		return s.wrap("RemoveIfStopped", id, err)
	}
	return nil
}

func (s *Store) DeleteAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM jobs`); err != nil {
		return s.wrap("DeleteAll", "", err)
	}
	return nil
}

func (s *Store) query(ctx context.Context, op, q string, args ...any) ([]*jobs.Record, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, s.wrap(op, "", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]*jobs.Record, 0)
	for rows.Next() {
		var (
			r           jobs.Record
			startedNS   int64
			stoppedNS   sql.NullInt64
			status      string
			lastUpdated int64
			msgs        string
		)
		if err := rows.Scan(&r.ID, &r.URI, &r.JobType, &startedNS, &stoppedNS, &status, &lastUpdated, &r.Hostname, &msgs); err != nil {
			return nil, s.wrap(op, "", fmt.Errorf("scan job row: %w", err))
		}
		r.Started = time.Unix(0, startedNS).UTC()
		if stoppedNS.Valid {
			t := time.Unix(0, stoppedNS.Int64).UTC()
			r.Stopped = &t
		}
		r.Status = jobs.Status(status)
		r.LastUpdated = time.Unix(0, lastUpdated).UTC()
		r.Messages = []jobs.Message{}
		if err := json.Unmarshal([]byte(msgs), &r.Messages); err != nil {
			return nil, s.wrap(op, r.ID, fmt.Errorf("parse job messages: %w", err))
		}
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap(op, "", err)
	}
	return out, nil
}

func (s *Store) wrap(op, id string, err error) error {
	return &jobstore.StoreError{Op: op, Backend: jobstore.BackendSQLite, ID: id, Err: err}
}
