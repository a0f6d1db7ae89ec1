package jobs_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/3leaps/edison/pkg/jobs"
	"github.com/3leaps/edison/pkg/jobstore/memory"
)

var base = time.Date(2026, 1, 19, 12, 0, 0, 0, time.UTC)

var errStoreDown = errors.New("store down")

// tickingClock advances by one second on every call.
type tickingClock struct {
	n atomic.Int64
}

func (c *tickingClock) Now() time.Time {
	return base.Add(time.Duration(c.n.Add(1)) * time.Second)
}

func fixedClock(t time.Time) jobs.Clock {
	return func() time.Time { return t }
}

// flakyRepo wraps a memory store and fails writes while failWrites is set.
type flakyRepo struct {
	*memory.Store
	failWrites atomic.Bool

	mu     sync.Mutex
	writes int
}

func newFlakyRepo() *flakyRepo {
	return &flakyRepo{Store: memory.New()}
}

func (r *flakyRepo) CreateOrUpdate(ctx context.Context, rec *jobs.Record) error {
	r.mu.Lock()
	r.writes++
	r.mu.Unlock()
	if r.failWrites.Load() {
		return errStoreDown
	}
	return r.Store.CreateOrUpdate(ctx, rec)
}

func (r *flakyRepo) Writes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

func sequentialIDs(prefix string) func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("%s-%d", prefix, n.Add(1))
	}
}

func def(jobType string) jobs.Definition {
	return jobs.Definition{Type: jobType, Name: jobType + " job"}
}
