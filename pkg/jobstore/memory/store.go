// Package memory implements jobs.Repository in process memory.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/3leaps/edison/pkg/jobs"
)

var _ jobs.Repository = (*Store)(nil)

// Store keeps job records in a map guarded by a RWMutex.
type Store struct {
	mu      sync.RWMutex
	records map[string]*jobs.Record
}

// New creates an empty Store.
func New() *Store {
	return &Store{records: make(map[string]*jobs.Record)}
}

func (s *Store) CreateOrUpdate(_ context.Context, record *jobs.Record) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("job record with id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ID] = record.Clone()
	return nil
}

func (s *Store) FindOne(_ context.Context, id string) (*jobs.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", jobs.ErrJobNotFound, id)
	}
	return r.Clone(), nil
}

func (s *Store) FindAll(_ context.Context) ([]*jobs.Record, error) {
	return s.filter(func(*jobs.Record) bool { return true }), nil
}

func (s *Store) FindByType(_ context.Context, jobType string) ([]*jobs.Record, error) {
	return s.filter(func(r *jobs.Record) bool { return r.JobType == jobType }), nil
}

func (s *Store) FindLatest(ctx context.Context, n int) ([]*jobs.Record, error) {
	all, _ := s.FindAll(ctx)
	return jobs.Limit(all, n), nil
}

func (s *Store) FindLatestBy(ctx context.Context, jobType string, n int) ([]*jobs.Record, error) {
	byType, _ := s.FindByType(ctx, jobType)
	return jobs.Limit(byType, n), nil
}

func (s *Store) FindRunning(_ context.Context) ([]*jobs.Record, error) {
	return s.filter(func(r *jobs.Record) bool { return !r.IsStopped() }), nil
}

func (s *Store) RemoveIfStopped(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.records[id]; ok && r.IsStopped() {
		delete(s.records, id)
	}
	return nil
}

func (s *Store) DeleteAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*jobs.Record)
	return nil
}

// Size returns the number of stored records.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *Store) filter(keep func(*jobs.Record) bool) []*jobs.Record {
	s.mu.RLock()
	out := make([]*jobs.Record, 0, len(s.records))
	for _, r := range s.records {
		if keep(r) {
			out = append(out, r.Clone())
		}
	}
	s.mu.RUnlock()
	jobs.SortNewestFirst(out)
	return out
}
