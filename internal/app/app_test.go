package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/3leaps/edison/internal/config"
	"github.com/3leaps/edison/pkg/jobs"
	"github.com/3leaps/edison/pkg/jobstore/memory"
	"github.com/3leaps/edison/pkg/status"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Jobs.URIBase = "/internal/jobs"
	cfg.Jobs.Repository.Kind = "memory"
	cfg.Jobs.HeartbeatInterval = time.Minute
	cfg.Jobs.MaxConcurrent = 2
	cfg.Jobs.Cleanup.KeepLast = config.KeepLastConfig{Enabled: true, Count: 3, JobTypes: "*", Schedule: "@every 1h"}
	cfg.Jobs.Cleanup.StopDead = config.StopDeadConfig{Enabled: true, MaxAge: 30 * time.Minute, Schedule: "@every 1m"}
	cfg.Status.RefreshInterval = 10 * time.Second
	return cfg
}

func entryNames(a *App) []string {
	var names []string
	for _, e := range a.Scheduler.Entries() {
		names = append(names, e.Name)
	}
	sort.Strings(names)
	return names
}

func TestBuild_WiresComponents(t *testing.T) {
	ctx := context.Background()
	scheduled := jobs.NewRunnable(jobs.Definition{Type: "import", Name: "Import", FixedDelay: time.Hour, MaxAge: 2 * time.Hour},
		func(context.Context, jobs.EventPublisher) error { return nil })
	manual := jobs.NewRunnable(jobs.Definition{Type: "export", Name: "Export"},
		func(context.Context, jobs.EventPublisher) error { return nil })

	a, err := Build(ctx, testConfig(), zaptest.NewLogger(t), WithRunnables(scheduled, manual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	assert.Equal(t, []string{"export", "import"}, a.Service.JobTypes())
	assert.Len(t, a.Strategies, 2)
	assert.Equal(t, []string{"job:import", "keep-last-jobs", StatusRefreshEntry, "stop-dead-jobs"}, entryNames(a))

	_, ok := a.Strategy("stop-dead-jobs")
	assert.True(t, ok)
	_, ok = a.Strategy("nope")
	assert.False(t, ok)
}

func TestBuild_CleanupDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Jobs.Cleanup.KeepLast.Enabled = false
	cfg.Jobs.Cleanup.StopDead.Enabled = false

	a, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	assert.Empty(t, a.Strategies)
	assert.Equal(t, []string{StatusRefreshEntry}, entryNames(a))
}

func TestBuild_StatusReflectsLatestJobs(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	now := time.Date(2026, 1, 19, 12, 0, 0, 0, time.UTC)
	failed := jobs.NewRecord("j1", "/internal/jobs/j1", "import", "host", now.Add(-time.Minute))
	failed.Stop(jobs.StatusError, now)
	require.NoError(t, repo.CreateOrUpdate(ctx, failed))

	def := jobs.NewRunnable(jobs.Definition{Type: "import", Name: "Import"},
		func(context.Context, jobs.EventPublisher) error { return nil })
	a, err := Build(ctx, testConfig(), nil,
		WithRunnables(def),
		WithRepository(repo),
		WithClock(func() time.Time { return now }),
		WithIndicators(status.IndicatorFunc(func(context.Context) []status.Detail {
			return []status.Detail{{Name: "extra", Status: status.OK, Message: "fine"}}
		})))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	// Nothing is aggregated before the first refresh.
	assert.Equal(t, status.OK, a.Status.Snapshot().Status)

	require.NoError(t, a.Scheduler.Trigger(ctx, StatusRefreshEntry))
	snap := a.Status.Snapshot()
	assert.Equal(t, status.Warning, snap.Status)
	require.Len(t, snap.Details, 2)
	assert.Equal(t, "extra", snap.Details[0].Name)
	assert.Equal(t, "Import", snap.Details[1].Name)
}

func TestBuild_TriggerCleanup(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	now := time.Date(2026, 1, 19, 12, 0, 0, 0, time.UTC)
	stale := jobs.NewRecord("j1", "/internal/jobs/j1", "import", "host", now.Add(-2*time.Hour))
	require.NoError(t, repo.CreateOrUpdate(ctx, stale))

	a, err := Build(ctx, testConfig(), nil, WithRepository(repo), WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	require.NoError(t, a.Scheduler.Trigger(ctx, "stop-dead-jobs"))

	got, err := repo.FindOne(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusDead, got.Status)
	assert.True(t, got.IsStopped())
}

func TestBuild_DefinitionsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
jobs:
  - type: reindex
    name: Reindex
    cron: "0 3 * * *"
    command: ["true"]
  - type: backup
    name: Backup
    command: ["true"]
mutex_groups:
  - name: maintenance
    job_types: [reindex, backup]
`), 0o644))

	cfg := testConfig()
	cfg.Jobs.DefinitionsFile = path
	a, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	assert.Equal(t, []string{"backup", "reindex"}, a.Service.JobTypes())
	assert.Contains(t, entryNames(a), "job:reindex")
	assert.NotContains(t, entryNames(a), "job:backup")
}

func TestBuild_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := Build(ctx, nil, nil)
	assert.Error(t, err)

	cfg := testConfig()
	cfg.Jobs.Repository.Kind = "cassandra"
	_, err = Build(ctx, cfg, nil)
	assert.ErrorContains(t, err, "unknown repository kind")

	cfg = testConfig()
	cfg.Jobs.DefinitionsFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = Build(ctx, cfg, nil)
	assert.Error(t, err)

	cfg = testConfig()
	cfg.Jobs.Cleanup.KeepLast.Count = 0
	_, err = Build(ctx, cfg, nil)
	var cfgErr *jobs.ConfigError
	assert.ErrorAs(t, err, &cfgErr)

	cfg = testConfig()
	cfg.Jobs.MutexGroups = []jobs.MutexGroup{{Name: "g", JobTypes: []string{"unknown", "other"}}}
	_, err = Build(ctx, cfg, nil)
	assert.ErrorAs(t, err, &cfgErr)

	cfg = testConfig()
	cfg.Jobs.Cleanup.StopDead.Schedule = "not a schedule"
	_, err = Build(ctx, cfg, nil)
	assert.ErrorContains(t, err, "invalid spec")
}

func TestAbort_ReportsCloseError(t *testing.T) {
	ctx := context.Background()
	buildErr := errors.New("bad schedule")
	closeErr := errors.New("disk detached")

	closed := 0
	a := &App{closeRepo: func(context.Context) error {
		closed++
		return closeErr
	}}
	err := a.abort(ctx, buildErr)
	assert.ErrorIs(t, err, buildErr)
	assert.ErrorIs(t, err, closeErr)
	assert.ErrorContains(t, err, "close repository")
	assert.Equal(t, 1, closed)

	a.closeRepo = noClose
	assert.Equal(t, buildErr, a.abort(ctx, buildErr))
}

func TestOpenRepository_FileAndSQLite(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	for _, rc := range []config.RepositoryConfig{
		{Kind: "file", Path: filepath.Join(dir, "records")},
		{Kind: "SQLite", Path: filepath.Join(dir, "jobs.db")},
	} {
		t.Run(rc.Kind, func(t *testing.T) {
			repo, closeRepo, err := OpenRepository(ctx, rc)
			require.NoError(t, err)
			defer func() { assert.NoError(t, closeRepo(ctx)) }()

			rec := jobs.NewRecord("j1", "/internal/jobs/j1", "import", "host", time.Now().UTC())
			require.NoError(t, repo.CreateOrUpdate(ctx, rec))
			got, err := repo.FindOne(ctx, "j1")
			require.NoError(t, err)
			assert.Equal(t, "import", got.JobType)
		})
	}
}

func TestShutdown_WaitsForJobs(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	slow := jobs.NewRunnable(jobs.Definition{Type: "slow", Name: "Slow"},
		func(context.Context, jobs.EventPublisher) error {
			<-release
			return nil
		})

	a, err := Build(ctx, testConfig(), nil, WithRunnables(slow))
	require.NoError(t, err)
	a.Start(ctx)

	id, err := a.Service.StartAsyncJob(ctx, "slow")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- a.Shutdown(context.Background()) }()

	select {
	case <-done:
		t.Fatal("shutdown returned while a job was running")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	require.NoError(t, <-done)

	got, err := a.Repository.FindOne(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusOK, got.Status)
}
