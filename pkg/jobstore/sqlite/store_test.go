package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/edison/pkg/jobs"
	"github.com/3leaps/edison/pkg/jobstore/storetest"
)

func TestStore_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) jobs.Repository {
		s, err := Open(context.Background(), filepath.Join(t.TempDir(), "jobs.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestStore_InMemory(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, ":memory:")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	require.NoError(t, s.CreateOrUpdate(ctx, storetest.Record("job-1", "Foo", 0)))
	got, err := s.FindOne(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "Foo", got.JobType)
	assert.NoError(t, s.Ping(ctx))
}

func TestStore_ReopenKeepsRecords(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "jobs.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.CreateOrUpdate(ctx, storetest.Stopped("job-1", "Foo", 0, jobs.StatusOK)))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	got, err := s.FindOne(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, jobs.StateStopped, got.State())
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(context.Background(), "  ")
	assert.Error(t, err)
}
