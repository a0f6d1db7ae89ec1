// Package file implements jobs.Repository on the local filesystem.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/3leaps/edison/pkg/jobs"
	"github.com/3leaps/edison/pkg/jobstore"
)

var _ jobs.Repository = (*Store)(nil)

// Store persists job records in an on-disk directory.
//
// Directory layout:
//
//	<root>/<job_id>/job.json
//
// Each write goes to a temp file in the job directory and is renamed over
// job.json, so readers never see a partially written record.
type Store struct {
	root string
}

// New creates a Store rooted at root. The directory is created on first write.
func New(root string) *Store {
	return &Store{root: strings.TrimSpace(root)}
}

func (s *Store) RootDir() string {
	return s.root
}

func (s *Store) JobDir(jobID string) string {
	return filepath.Join(s.root, jobID)
}

func (s *Store) JobPath(jobID string) string {
	return filepath.Join(s.JobDir(jobID), "job.json")
}

func (s *Store) ensureRoot() error {
	if s.root == "" {
		return fmt.Errorf("job store root dir is empty")
	}
	return os.MkdirAll(s.root, 0755)
}

func (s *Store) CreateOrUpdate(_ context.Context, record *jobs.Record) error {
	if record == nil {
		return fmt.Errorf("job record is nil")
	}
	jobID := strings.TrimSpace(record.ID)
	if jobID == "" || jobID != filepath.Base(jobID) {
		return fmt.Errorf("invalid job id %q", record.ID)
	}
	if err := s.ensureRoot(); err != nil {
		return s.wrap("CreateOrUpdate", jobID, err)
	}

	jobDir := s.JobDir(jobID)
	if err := os.MkdirAll(jobDir, 0755); err != nil {
		return s.wrap("CreateOrUpdate", jobID, fmt.Errorf("create job dir: %w", err))
	}

	b, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal job record: %w", err)
	}
	b = append(b, '\n')

	tmp, err := os.CreateTemp(jobDir, "job.json.tmp.*")
	if err != nil {
		return s.wrap("CreateOrUpdate", jobID, fmt.Errorf("create temp file: %w", err))
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return s.wrap("CreateOrUpdate", jobID, fmt.Errorf("write temp job file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		return s.wrap("CreateOrUpdate", jobID, fmt.Errorf("close temp job file: %w", err))
	}

	if err := os.Rename(tmpName, s.JobPath(jobID)); err != nil {
		return s.wrap("CreateOrUpdate", jobID, fmt.Errorf("rename job file: %w", err))
	}
	return nil
}

func (s *Store) FindOne(_ context.Context, id string) (*jobs.Record, error) {
	return s.read(id)
}

func (s *Store) read(jobID string) (*jobs.Record, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" || jobID != filepath.Base(jobID) {
		return nil, fmt.Errorf("%w: %q", jobs.ErrJobNotFound, jobID)
	}
	b, err := os.ReadFile(s.JobPath(jobID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", jobs.ErrJobNotFound, jobID)
		}
		return nil, s.wrap("FindOne", jobID, err)
	}

	trimmed := strings.TrimSpace(string(b))
	if trimmed == "" {
		return nil, s.wrap("FindOne", jobID, fmt.Errorf("job.json is empty"))
	}

	var record jobs.Record
	if err := json.Unmarshal([]byte(trimmed), &record); err != nil {
		return nil, s.wrap("FindOne", jobID, fmt.Errorf("parse job.json: %w", err))
	}
	return &record, nil
}

func (s *Store) FindAll(_ context.Context) ([]*jobs.Record, error) {
	return s.list(func(*jobs.Record) bool { return true })
}

func (s *Store) FindByType(_ context.Context, jobType string) ([]*jobs.Record, error) {
	return s.list(func(r *jobs.Record) bool { return r.JobType == jobType })
}

func (s *Store) FindLatest(ctx context.Context, n int) ([]*jobs.Record, error) {
	all, err := s.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	return jobs.Limit(all, n), nil
}

func (s *Store) FindLatestBy(ctx context.Context, jobType string, n int) ([]*jobs.Record, error) {
	byType, err := s.FindByType(ctx, jobType)
	if err != nil {
		return nil, err
	}
	return jobs.Limit(byType, n), nil
}

func (s *Store) FindRunning(_ context.Context) ([]*jobs.Record, error) {
	return s.list(func(r *jobs.Record) bool { return !r.IsStopped() })
}

func (s *Store) RemoveIfStopped(_ context.Context, id string) error {
	rec, err := s.read(id)
	if err != nil {
		if jobs.IsNotFound(err) {
			return nil
		}
		return err
	}
	if !rec.IsStopped() {
		return nil
	}
	if err := os.RemoveAll(s.JobDir(rec.ID)); err != nil {
		return s.wrap("RemoveIfStopped", id, fmt.Errorf("remove job dir: %w", err))
	}
	return nil
}

func (s *Store) DeleteAll(_ context.Context) error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return s.wrap("DeleteAll", "", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.root, entry.Name())); err != nil {
			return s.wrap("DeleteAll", entry.Name(), err)
		}
	}
	return nil
}

func (s *Store) list(keep func(*jobs.Record) bool) ([]*jobs.Record, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []*jobs.Record{}, nil
		}
		return nil, s.wrap("List", "", fmt.Errorf("read jobs root: %w", err))
	}

	out := make([]*jobs.Record, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		r, err := s.read(entry.Name())
		if err != nil {
			// Directories without a readable job.json are skipped, e.g. a
			// record being removed concurrently.
			continue
		}
		if keep(r) {
			out = append(out, r)
		}
	}

	jobs.SortNewestFirst(out)
	return out, nil
}

func (s *Store) wrap(op, id string, err error) error {
	return &jobstore.StoreError{Op: op, Backend: jobstore.BackendFile, ID: id, Err: err}
}
