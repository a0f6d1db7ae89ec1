// Package app assembles the job subsystem from configuration.
//
// Build is the only place components are wired together; each component
// receives its collaborators explicitly.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/edison/internal/config"
	"github.com/3leaps/edison/pkg/jobs"
	"github.com/3leaps/edison/pkg/jobs/cleanup"
	"github.com/3leaps/edison/pkg/jobs/execjob"
	"github.com/3leaps/edison/pkg/schedule"
	"github.com/3leaps/edison/pkg/status"
)

// StatusRefreshEntry is the scheduler entry refreshing the status cache.
const StatusRefreshEntry = "status-refresh"

// Option configures Build.
type Option func(*buildOptions)

type buildOptions struct {
	runnables  []jobs.Runnable
	indicators []status.Indicator
	repo       jobs.Repository
	clock      jobs.Clock
}

// WithRunnables registers job types implemented in code, in addition to
// those in the definitions file.
func WithRunnables(r ...jobs.Runnable) Option {
	return func(o *buildOptions) { o.runnables = append(o.runnables, r...) }
}

// WithIndicators adds status indicators to the aggregate.
func WithIndicators(ind ...status.Indicator) Option {
	return func(o *buildOptions) { o.indicators = append(o.indicators, ind...) }
}

// WithRepository uses repo instead of opening the configured backend.
func WithRepository(repo jobs.Repository) Option {
	return func(o *buildOptions) { o.repo = repo }
}

// WithClock sets the clock for job timestamps, cleanup and status checks.
func WithClock(clock jobs.Clock) Option {
	return func(o *buildOptions) { o.clock = clock }
}

// App holds the assembled components.
type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	Repository jobs.Repository
	Runner     *jobs.Runner
	Executor   *jobs.PoolExecutor
	Service    *jobs.Service
	Strategies []cleanup.Strategy
	Status     *status.CachedAggregator
	Scheduler  *schedule.Scheduler

	closeRepo CloseFunc
}

// Build wires every component. Configuration errors are returned here.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	o := buildOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg, Logger: logger, closeRepo: noClose}

	runnables := append([]jobs.Runnable(nil), o.runnables...)
	groups := append([]jobs.MutexGroup(nil), cfg.Jobs.MutexGroups...)
	if cfg.Jobs.DefinitionsFile != "" {
		f, err := execjob.Load(cfg.Jobs.DefinitionsFile)
		if err != nil {
			return nil, err
		}
		fileRunnables, err := f.Runnables()
		if err != nil {
			return nil, err
		}
		runnables = append(runnables, fileRunnables...)
		groups = append(groups, f.MutexGroups...)
		logger.Info("Loaded job definitions",
			zap.String("path", cfg.Jobs.DefinitionsFile),
			zap.Int("jobs", len(fileRunnables)))
	}
	mutex, err := jobs.NewMutexGroups(groups...)
	if err != nil {
		return nil, err
	}

	if o.repo != nil {
		a.Repository = o.repo
	} else {
		repo, closeRepo, err := OpenRepository(ctx, cfg.Jobs.Repository)
		if err != nil {
			return nil, fmt.Errorf("open job repository: %w", err)
		}
		a.Repository, a.closeRepo = repo, closeRepo
	}

	a.Runner = jobs.NewRunner(a.Repository,
		jobs.WithRunnerLogger(logger.Named("jobs")),
		jobs.WithRunnerClock(o.clock),
		jobs.WithHeartbeatInterval(cfg.Jobs.HeartbeatInterval))
	a.Executor = jobs.NewPoolExecutor(cfg.Jobs.MaxConcurrent)

	a.Service, err = jobs.NewService(a.Repository, a.Runner, runnables,
		jobs.WithExecutor(a.Executor),
		jobs.WithMutexGroups(mutex),
		jobs.WithServiceLogger(logger.Named("jobs")),
		jobs.WithServiceClock(o.clock),
		jobs.WithURIBase(cfg.Jobs.URIBase))
	if err != nil {
		return nil, a.abort(ctx, err)
	}

	if err := a.buildCleanup(o); err != nil {
		return nil, a.abort(ctx, err)
	}

	indicators := append([]status.Indicator(nil), o.indicators...)
	for _, def := range a.Service.Definitions() {
		indicators = append(indicators,
			jobs.NewStatusDetailIndicator(a.Repository, def.Name, def.Type, def.MaxAge).WithClock(o.clock))
	}
	a.Status = status.NewCachedAggregator(logger.Named("status"), indicators...)

	if err := a.buildScheduler(); err != nil {
		return nil, a.abort(ctx, err)
	}
	return a, nil
}

func (a *App) buildCleanup(o buildOptions) error {
	c := a.Config.Jobs.Cleanup
	cleanupOpts := []cleanup.Option{
		cleanup.WithLogger(a.Logger.Named("cleanup")),
		cleanup.WithClock(o.clock),
	}
	if c.KeepLast.Enabled {
		k, err := cleanup.NewKeepLastJobs(a.Repository, c.KeepLast.Count, c.KeepLast.JobTypes, cleanupOpts...)
		if err != nil {
			return err
		}
		a.Strategies = append(a.Strategies, k)
	}
	if c.StopDead.Enabled {
		s, err := cleanup.NewStopDeadJobs(a.Repository, c.StopDead.MaxAge, cleanupOpts...)
		if err != nil {
			return err
		}
		a.Strategies = append(a.Strategies, s)
	}
	return nil
}

func (a *App) buildScheduler() error {
	a.Scheduler = schedule.New(a.Logger.Named("schedule"))

	c := a.Config.Jobs.Cleanup
	for _, st := range a.Strategies {
		spec := c.KeepLast.Schedule
		if _, ok := st.(*cleanup.StopDeadJobs); ok {
			spec = c.StopDead.Schedule
		}
		if err := a.Scheduler.AddStrategy(spec, st); err != nil {
			return err
		}
	}
	for _, def := range a.Service.Definitions() {
		if err := a.Scheduler.AddDefinition(a.Service, def); err != nil {
			return err
		}
	}

	refresh := a.Config.Status.RefreshInterval
	if refresh <= 0 {
		refresh = 10 * time.Second
	}
	return a.Scheduler.AddFunc(StatusRefreshEntry, "@every "+refresh.String(), func(ctx context.Context) error {
		a.Status.Refresh(ctx)
		return nil
	})
}

// Start refreshes the status cache once and starts the scheduler.
func (a *App) Start(ctx context.Context) {
	a.Status.Refresh(ctx)
	a.Scheduler.Start()
}

// Shutdown stops the scheduler, waits for running jobs, and closes the
// repository.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if err := a.Scheduler.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
	}
	if err := a.Executor.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("wait for jobs: %w", err))
	}
	if err := a.closeRepo(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close repository: %w", err))
	}
	return errors.Join(errs...)
}

// abort closes the repository opened by a failed Build.
func (a *App) abort(ctx context.Context, err error) error {
	if cerr := a.closeRepo(ctx); cerr != nil {
		return errors.Join(err, fmt.Errorf("close repository: %w", cerr))
	}
	return err
}

// Strategy returns the cleanup strategy with the given name.
func (a *App) Strategy(name string) (cleanup.Strategy, bool) {
	for _, s := range a.Strategies {
		if s.Name() == name {
			return s, true
		}
	}
	return nil, false
}
