package cleanup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/edison/pkg/jobs"
)

// StopDeadJobs marks running jobs DEAD when their record has not been
// updated for longer than maxAge. maxAge should be well above the runner's
// heartbeat interval.
type StopDeadJobs struct {
	repo   jobs.Repository
	maxAge time.Duration
	opts   options
}

// NewStopDeadJobs creates the strategy.
func NewStopDeadJobs(repo jobs.Repository, maxAge time.Duration, opts ...Option) (*StopDeadJobs, error) {
	if maxAge <= 0 {
		return nil, &jobs.ConfigError{Field: "cleanup.stop_dead.max_age", Message: "max age must be positive"}
	}
	return &StopDeadJobs{repo: repo, maxAge: maxAge, opts: newOptions(opts)}, nil
}

// Name implements Strategy.
func (s *StopDeadJobs) Name() string { return "stop-dead-jobs" }

// DoCleanUp implements Strategy.
func (s *StopDeadJobs) DoCleanUp(ctx context.Context) error {
	running, err := s.repo.FindRunning(ctx)
	if err != nil {
		return fmt.Errorf("stop dead jobs: %w", err)
	}

	now := s.opts.clock()
	deadline := now.Add(-s.maxAge)

	var errs []error
	for _, rec := range running {
		if rec.IsStopped() || !rec.LastUpdated.Before(deadline) {
			continue
		}
		lastUpdated := rec.LastUpdated
		rec.AppendMessage(jobs.LevelError, fmt.Sprintf("Job didn't receive updates for %s", s.maxAge), now)
		rec.Stop(jobs.StatusDead, now)
		if err := s.repo.CreateOrUpdate(ctx, rec); err != nil {
			errs = append(errs, fmt.Errorf("mark job %s dead: %w", rec.ID, err))
			continue
		}
		s.opts.logger.Warn("Marked job dead",
			zap.String("job_id", rec.ID),
			zap.String("job_type", rec.JobType),
			zap.Time("last_updated", lastUpdated),
			zap.Duration("max_age", s.maxAge))
	}
	return errors.Join(errs...)
}
