// Package storetest is a conformance suite for jobs.Repository backends.
//
// Usage:
//
//	func TestStore(t *testing.T) {
//	    storetest.Run(t, func(t *testing.T) jobs.Repository { return New() })
//	}
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/edison/pkg/jobs"
)

// Factory returns an empty repository for one subtest.
type Factory func(t *testing.T) jobs.Repository

var base = time.Date(2026, 1, 19, 12, 0, 0, 0, time.UTC)

// Record builds a record of jobType started minutes after a fixed base time.
func Record(id, jobType string, minutes int) *jobs.Record {
	return jobs.NewRecord(id, jobs.DefaultURIBase+"/"+id, jobType, "test-host", base.Add(time.Duration(minutes)*time.Minute))
}

// Stopped builds a stopped record with the given status.
func Stopped(id, jobType string, minutes int, st jobs.Status) *jobs.Record {
	r := Record(id, jobType, minutes)
	r.Stop(st, r.Started.Add(30*time.Second))
	return r
}

// Run executes the conformance suite.
func Run(t *testing.T, newRepo Factory) {
	ctx := context.Background()

	t.Run("CreateOrUpdateRoundTrip", func(t *testing.T) {
		repo := newRepo(t)
		rec := Record("job-1", "Foo", 0)
		rec.AppendMessage(jobs.LevelInfo, "first", base)
		rec.AppendMessage(jobs.LevelWarning, "second", base.Add(time.Second))

		require.NoError(t, repo.CreateOrUpdate(ctx, rec))

		got, err := repo.FindOne(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, "job-1", got.ID)
		assert.Equal(t, rec.URI, got.URI)
		assert.Equal(t, "Foo", got.JobType)
		assert.Equal(t, jobs.StatusOK, got.Status)
		assert.Equal(t, jobs.StateRunning, got.State())
		assert.True(t, rec.Started.Equal(got.Started))
		assert.Equal(t, "test-host", got.Hostname)
		require.Len(t, got.Messages, 2)
		assert.Equal(t, "first", got.Messages[0].Text)
		assert.Equal(t, jobs.LevelWarning, got.Messages[1].Level)
		assert.Equal(t, "second", got.Messages[1].Text)
	})

	t.Run("UpdateReplacesRecord", func(t *testing.T) {
		repo := newRepo(t)
		rec := Record("job-1", "Foo", 0)
		require.NoError(t, repo.CreateOrUpdate(ctx, rec))

		rec.Stop(jobs.StatusError, base.Add(time.Minute))
		require.NoError(t, repo.CreateOrUpdate(ctx, rec))

		got, err := repo.FindOne(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, jobs.StatusError, got.Status)
		require.NotNil(t, got.Stopped)
		assert.True(t, base.Add(time.Minute).Equal(*got.Stopped))

		all, err := repo.FindAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("FindOneMissing", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.FindOne(ctx, "does-not-exist")
		require.Error(t, err)
		assert.True(t, jobs.IsNotFound(err), "expected ErrJobNotFound, got %v", err)
	})

	t.Run("ReturnedRecordsAreCopies", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.CreateOrUpdate(ctx, Record("job-1", "Foo", 0)))

		got, err := repo.FindOne(ctx, "job-1")
		require.NoError(t, err)
		got.AppendMessage(jobs.LevelInfo, "local only", base)

		again, err := repo.FindOne(ctx, "job-1")
		require.NoError(t, err)
		assert.Empty(t, again.Messages)
	})

	t.Run("ListingsNewestFirst", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.CreateOrUpdate(ctx, Stopped("a", "Foo", 1, jobs.StatusOK)))
		require.NoError(t, repo.CreateOrUpdate(ctx, Stopped("b", "Bar", 2, jobs.StatusOK)))
		require.NoError(t, repo.CreateOrUpdate(ctx, Record("c", "Foo", 3)))
		require.NoError(t, repo.CreateOrUpdate(ctx, Stopped("d", "Foo", 4, jobs.StatusError)))

		all, err := repo.FindAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"d", "c", "b", "a"}, ids(all))

		foos, err := repo.FindByType(ctx, "Foo")
		require.NoError(t, err)
		assert.Equal(t, []string{"d", "c", "a"}, ids(foos))

		latest, err := repo.FindLatest(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"d", "c"}, ids(latest))

		latestFoo, err := repo.FindLatestBy(ctx, "Foo", 1)
		require.NoError(t, err)
		assert.Equal(t, []string{"d"}, ids(latestFoo))

		none, err := repo.FindLatestBy(ctx, "Baz", 5)
		require.NoError(t, err)
		assert.Empty(t, none)

		running, err := repo.FindRunning(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"c"}, ids(running))
	})

	t.Run("RemoveIfStopped", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.CreateOrUpdate(ctx, Stopped("stopped", "Foo", 1, jobs.StatusOK)))
		require.NoError(t, repo.CreateOrUpdate(ctx, Record("running", "Foo", 2)))

		require.NoError(t, repo.RemoveIfStopped(ctx, "stopped"))
		require.NoError(t, repo.RemoveIfStopped(ctx, "running"))

		_, err := repo.FindOne(ctx, "stopped")
		assert.True(t, jobs.IsNotFound(err))
		_, err = repo.FindOne(ctx, "running")
		assert.NoError(t, err)

		// Removing an already removed record is a no-op.
		assert.NoError(t, repo.RemoveIfStopped(ctx, "stopped"))
		assert.NoError(t, repo.RemoveIfStopped(ctx, "never-existed"))
	})

	t.Run("DeleteAll", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.CreateOrUpdate(ctx, Record("a", "Foo", 1)))
		require.NoError(t, repo.CreateOrUpdate(ctx, Stopped("b", "Foo", 2, jobs.StatusOK)))

		require.NoError(t, repo.DeleteAll(ctx))

		all, err := repo.FindAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("ConcurrentWritersOnDifferentRecords", func(t *testing.T) {
		repo := newRepo(t)
		const workers = 8

		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				rec := Record(fmt.Sprintf("job-%d", i), "Foo", i)
				for m := 0; m < 5; m++ {
					rec.AppendMessage(jobs.LevelInfo, fmt.Sprintf("msg-%d", m), base)
					assert.NoError(t, repo.CreateOrUpdate(ctx, rec))
				}
			}(i)
		}
		wg.Wait()

		all, err := repo.FindAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, workers)
		for _, r := range all {
			assert.Len(t, r.Messages, 5, "record %s", r.ID)
		}
	})
}

func ids(records []*jobs.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}
