package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/edison/pkg/jobs"
	"github.com/3leaps/edison/pkg/jobstore/storetest"
)

func TestStore_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) jobs.Repository { return New(t.TempDir()) })
}

func TestStore_WritesJobJSON(t *testing.T) {
	root := t.TempDir()
	s := New(root)

	require.NoError(t, s.CreateOrUpdate(context.Background(), storetest.Record("job-1", "Foo", 0)))

	b, err := os.ReadFile(filepath.Join(root, "job-1", "job.json"))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"job_type": "Foo"`)

	// No temp files are left behind.
	entries, err := os.ReadDir(filepath.Join(root, "job-1"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStore_SkipsUnreadableEntries(t *testing.T) {
	root := t.TempDir()
	s := New(root)
	ctx := context.Background()

	require.NoError(t, s.CreateOrUpdate(ctx, storetest.Record("job-1", "Foo", 0)))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "broken"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "broken", "job.json"), []byte("   "), 0644))

	all, err := s.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "job-1", all[0].ID)
}

func TestStore_RejectsPathLikeIDs(t *testing.T) {
	s := New(t.TempDir())
	err := s.CreateOrUpdate(context.Background(), storetest.Record("../escape", "Foo", 0))
	assert.Error(t, err)
}

func TestStore_EmptyRoot(t *testing.T) {
	s := New("")
	err := s.CreateOrUpdate(context.Background(), storetest.Record("job-1", "Foo", 0))
	assert.Error(t, err)
}

func TestStore_MissingRootListsNothing(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "not-created"))
	all, err := s.FindAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}
