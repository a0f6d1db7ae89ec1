package jobs

import (
	"context"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultURIBase is the collection path job URIs are built from.
const DefaultURIBase = "/internal/jobs"

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithExecutor sets the executor job bodies run on.
func WithExecutor(e Executor) ServiceOption {
	return func(s *Service) {
		if e != nil {
			s.executor = e
		}
	}
}

// WithMutexGroups sets the mutex groups consulted before starting a job.
func WithMutexGroups(groups MutexGroups) ServiceOption {
	return func(s *Service) { s.mutex = groups }
}

// WithServiceLogger sets the logger.
func WithServiceLogger(logger *zap.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithServiceClock sets the clock used for record timestamps.
func WithServiceClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithURIBase sets the collection path job URIs are built from.
func WithURIBase(base string) ServiceOption {
	return func(s *Service) { s.uriBase = strings.TrimRight(base, "/") }
}

// WithHostname overrides the hostname recorded on new jobs.
func WithHostname(hostname string) ServiceOption {
	return func(s *Service) { s.hostname = hostname }
}

// WithIDGenerator overrides job id generation.
func WithIDGenerator(fn func() string) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// Service is the entry point for starting and inspecting jobs.
type Service struct {
	repo      Repository
	runner    *Runner
	executor  Executor
	runnables map[string]Runnable
	mutex     MutexGroups
	logger    *zap.Logger
	clock     Clock
	uriBase   string
	hostname  string
	newID     func() string
}

// NewService registers runnables and validates their definitions and the
// mutex groups against them. Configuration errors are returned here, not
// when a job is started.
func NewService(repo Repository, runner *Runner, runnables []Runnable, opts ...ServiceOption) (*Service, error) {
	if repo == nil {
		return nil, &ConfigError{Field: "repository", Message: "job repository is required"}
	}
	if runner == nil {
		runner = NewRunner(repo)
	}

	hostname, _ := os.Hostname()
	s := &Service{
		repo:      repo,
		runner:    runner,
		executor:  NewPoolExecutor(0),
		runnables: make(map[string]Runnable, len(runnables)),
		logger:    zap.NewNop(),
		clock:     systemClock,
		uriBase:   DefaultURIBase,
		hostname:  hostname,
		newID:     func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, r := range runnables {
		def := r.Definition()
		if err := def.Validate(); err != nil {
			return nil, err
		}
		if _, dup := s.runnables[def.Type]; dup {
			return nil, &ConfigError{Field: def.Type, Message: "duplicate job type"}
		}
		s.runnables[def.Type] = r
	}

	if err := s.mutex.ValidateJobTypes(s.JobTypes()); err != nil {
		return nil, err
	}
	return s, nil
}

// JobTypes returns the registered job types in sorted order.
func (s *Service) JobTypes() []string {
	out := make([]string, 0, len(s.runnables))
	for t := range s.runnables {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Definitions returns the registered job definitions sorted by type.
func (s *Service) Definitions() []Definition {
	types := s.JobTypes()
	out := make([]Definition, 0, len(types))
	for _, t := range types {
		out = append(out, s.runnables[t].Definition())
	}
	return out
}

// Definition returns the definition for a job type.
func (s *Service) Definition(jobType string) (Definition, bool) {
	r, ok := s.runnables[jobType]
	if !ok {
		return Definition{}, false
	}
	return r.Definition(), true
}

// StartAsyncJob starts the registered runnable for jobType and returns the
// URI of its record. The record is persisted before StartAsyncJob returns;
// the job body runs on the executor.
func (s *Service) StartAsyncJob(ctx context.Context, jobType string) (string, error) {
	r, ok := s.runnables[jobType]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownJobType, jobType)
	}
	return s.start(ctx, r)
}

// StartAsyncJobFunc starts an ad-hoc job body under jobType.
func (s *Service) StartAsyncJobFunc(ctx context.Context, jobType string, fn ExecuteFunc) (string, error) {
	def, ok := s.Definition(jobType)
	if !ok {
		def = Definition{Type: jobType, Name: jobType}
	}
	if err := def.Validate(); err != nil {
		return "", err
	}
	return s.start(ctx, NewRunnable(def, fn))
}

func (s *Service) start(ctx context.Context, r Runnable) (string, error) {
	jobType := r.Definition().Type

	running, err := s.repo.FindRunning(ctx)
	if err != nil {
		return "", fmt.Errorf("find running jobs: %w", err)
	}
	for _, rec := range running {
		if rec.JobType == jobType {
			s.logger.Info("Job not started: already running",
				zap.String("job_type", jobType),
				zap.String("running_job_id", rec.ID))
			return "", fmt.Errorf("%w: %s (%s)", ErrJobAlreadyRunning, jobType, rec.ID)
		}
	}
	if group, blocker, blocked := s.mutex.Blocking(jobType, running); blocked {
		s.logger.Info("Job not started: blocked by mutex group",
			zap.String("job_type", jobType),
			zap.String("mutex_group", group.Name),
			zap.String("blocking_job_type", blocker.JobType),
			zap.String("blocking_job_id", blocker.ID))
		return "", fmt.Errorf("%w: %s blocked by running %s in group %s", ErrJobBlocked, jobType, blocker.JobType, group.Name)
	}

	id := s.newID()
	rec := NewRecord(id, s.uriBase+"/"+id, jobType, s.hostname, s.clock())
	if err := s.runner.Start(ctx, rec); err != nil {
		return "", fmt.Errorf("create job record: %w", err)
	}

	// The job outlives the triggering request.
	bg := context.WithoutCancel(ctx)
	if err := s.executor.Submit(func() { s.runner.Execute(bg, rec, r) }); err != nil {
		s.runner.Abort(bg, rec, err)
		return "", fmt.Errorf("submit job: %w", err)
	}
	return rec.URI, nil
}

// IDFromURI returns the job id of a job URI. Plain ids are returned as is.
func IDFromURI(uriOrID string) string {
	return path.Base(strings.TrimRight(strings.TrimSpace(uriOrID), "/"))
}

// FindJob returns the record for a job id or URI.
func (s *Service) FindJob(ctx context.Context, idOrURI string) (*Record, error) {
	return s.repo.FindOne(ctx, IDFromURI(idOrURI))
}

// FindJobs returns the n latest jobs of jobType, or of any type when jobType
// is empty. n <= 0 returns all.
func (s *Service) FindJobs(ctx context.Context, jobType string, n int) ([]*Record, error) {
	if jobType == "" {
		if n <= 0 {
			return s.repo.FindAll(ctx)
		}
		return s.repo.FindLatest(ctx, n)
	}
	if n <= 0 {
		return s.repo.FindByType(ctx, jobType)
	}
	return s.repo.FindLatestBy(ctx, jobType, n)
}

// DeleteJobs removes the stopped jobs of jobType, or of every type when
// jobType is empty, and returns how many were removed.
func (s *Service) DeleteJobs(ctx context.Context, jobType string) (int, error) {
	records, err := s.FindJobs(ctx, jobType, 0)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, rec := range records {
		if !rec.IsStopped() {
			continue
		}
		if err := s.repo.RemoveIfStopped(ctx, rec.ID); err != nil {
			return deleted, fmt.Errorf("remove job %s: %w", rec.ID, err)
		}
		deleted++
	}
	return deleted, nil
}

// KillJob marks a running job DEAD. Killing a stopped job is a no-op.
//
// The job body is not interrupted; this only corrects the record, like
// cleanup.StopDeadJobs does for jobs whose process is gone.
func (s *Service) KillJob(ctx context.Context, idOrURI string) error {
	rec, err := s.FindJob(ctx, idOrURI)
	if err != nil {
		return err
	}
	if rec.IsStopped() {
		return nil
	}
	now := s.clock()
	rec.AppendMessage(LevelError, "Job was killed", now)
	rec.Stop(StatusDead, now)
	if err := s.repo.CreateOrUpdate(ctx, rec); err != nil {
		return fmt.Errorf("persist killed job: %w", err)
	}
	s.logger.Warn("Job killed", zap.String("job_id", rec.ID), zap.String("job_type", rec.JobType))
	return nil
}
