package jobs_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/edison/pkg/jobs"
	"github.com/3leaps/edison/pkg/jobstore/memory"
	"github.com/3leaps/edison/pkg/status"
)

type brokenRepo struct{ *memory.Store }

func (brokenRepo) FindLatestBy(context.Context, string, int) ([]*jobs.Record, error) {
	return nil, errStoreDown
}

func TestStatusDetailIndicator(t *testing.T) {
	ctx := context.Background()
	now := base.Add(24 * time.Hour)
	maxAge := time.Hour

	stoppedAt := func(id string, st jobs.Status, ago time.Duration) *jobs.Record {
		r := jobs.NewRecord(id, "/internal/jobs/"+id, "Bar", "", now.Add(-ago-time.Minute))
		r.Stop(st, now.Add(-ago))
		return r
	}

	tests := []struct {
		name        string
		records     []*jobs.Record
		wantStatus  status.Level
		wantMessage string
	}{
		{
			name:        "no job yet",
			wantStatus:  status.OK,
			wantMessage: "No job run yet",
		},
		{
			name:        "latest ok and recent",
			records:     []*jobs.Record{stoppedAt("j1", jobs.StatusOK, 10*time.Minute)},
			wantStatus:  status.OK,
			wantMessage: "successful",
		},
		{
			name:        "latest ok but too old",
			records:     []*jobs.Record{stoppedAt("j1", jobs.StatusOK, 2*time.Hour)},
			wantStatus:  status.Warning,
			wantMessage: "too old",
		},
		{
			name:        "latest error",
			records:     []*jobs.Record{stoppedAt("j1", jobs.StatusError, time.Minute)},
			wantStatus:  status.Warning,
			wantMessage: "ERROR",
		},
		{
			name:        "latest dead",
			records:     []*jobs.Record{stoppedAt("j1", jobs.StatusDead, time.Minute)},
			wantStatus:  status.Warning,
			wantMessage: "DEAD",
		},
		{
			name: "only latest counts",
			records: []*jobs.Record{
				stoppedAt("j1", jobs.StatusError, 3*time.Hour),
				stoppedAt("j2", jobs.StatusOK, time.Minute),
			},
			wantStatus: status.OK,
		},
		{
			name:        "running",
			records:     []*jobs.Record{jobs.NewRecord("j1", "/internal/jobs/j1", "Bar", "", now.Add(-5*time.Hour))},
			wantStatus:  status.OK,
			wantMessage: "running",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := memory.New()
			for _, r := range tt.records {
				require.NoError(t, repo.CreateOrUpdate(ctx, r))
			}
			// Other job types never influence the detail.
			other := jobs.NewRecord("x", "/internal/jobs/x", "Foo", "", now)
			other.Stop(jobs.StatusError, now)
			require.NoError(t, repo.CreateOrUpdate(ctx, other))

			ind := jobs.NewStatusDetailIndicator(repo, "Bar job", "Bar", maxAge).WithClock(fixedClock(now))
			details := ind.StatusDetails(ctx)

			require.Len(t, details, 1)
			assert.Equal(t, "Bar job", details[0].Name)
			assert.Equal(t, tt.wantStatus, details[0].Status)
			assert.Contains(t, details[0].Message, tt.wantMessage)
		})
	}
}

func TestStatusDetailIndicator_Attributes(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	rec := jobs.NewRecord("j1", "/internal/jobs/j1", "Bar", "", base)
	require.NoError(t, repo.CreateOrUpdate(ctx, rec))

	ind := jobs.NewStatusDetailIndicator(repo, "Bar job", "Bar", 0)
	d := ind.StatusDetails(ctx)[0]
	assert.Equal(t, "/internal/jobs/j1", d.Attributes["uri"])
	assert.Equal(t, "true", d.Attributes["running"])
	assert.NotContains(t, d.Attributes, "stopped")

	rec.Stop(jobs.StatusOK, base.Add(time.Minute))
	require.NoError(t, repo.CreateOrUpdate(ctx, rec))
	d = ind.StatusDetails(ctx)[0]
	assert.Equal(t, "2026-01-19T12:01:00Z", d.Attributes["stopped"])
	assert.NotContains(t, d.Attributes, "running")
}

func TestStatusDetailIndicator_ZeroMaxAgeNeverTooOld(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	rec := jobs.NewRecord("j1", "/internal/jobs/j1", "Bar", "", base)
	rec.Stop(jobs.StatusOK, base)
	require.NoError(t, repo.CreateOrUpdate(ctx, rec))

	ind := jobs.NewStatusDetailIndicator(repo, "Bar job", "Bar", 0).WithClock(fixedClock(base.Add(1000 * time.Hour)))
	assert.Equal(t, status.OK, ind.StatusDetails(ctx)[0].Status)
}

func TestStatusDetailIndicator_RepositoryError(t *testing.T) {
	ind := jobs.NewStatusDetailIndicator(brokenRepo{memory.New()}, "Bar job", "Bar", time.Hour)
	d := ind.StatusDetails(context.Background())
	require.Len(t, d, 1)
	assert.Equal(t, status.Error, d[0].Status)
	assert.Contains(t, d[0].Message, errStoreDown.Error())
}

func TestStatusDetailIndicator_Aggregates(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	failed := jobs.NewRecord("j1", "/internal/jobs/j1", "Bar", "", base)
	failed.Stop(jobs.StatusError, base)
	require.NoError(t, repo.CreateOrUpdate(ctx, failed))

	snap := status.Aggregate(ctx,
		jobs.NewStatusDetailIndicator(repo, "Foo job", "Foo", time.Hour),
		jobs.NewStatusDetailIndicator(repo, "Bar job", "Bar", time.Hour),
	)
	assert.Equal(t, status.Warning, snap.Status)
	assert.Len(t, snap.Details, 2)
}
