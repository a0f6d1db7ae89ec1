// Package schedule triggers periodic work: cleanup sweeps, scheduled job
// definitions, and status refreshes.
//
// Schedules use standard 5-field cron expressions or descriptors such as
// "@hourly" and "@every 5m". Intervals below one second are rounded up.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/3leaps/edison/pkg/jobs"
	"github.com/3leaps/edison/pkg/jobs/cleanup"
)

// ErrUnknownEntry is returned by Trigger for names never added.
var ErrUnknownEntry = errors.New("unknown schedule entry")

// ErrDuplicateEntry is returned when an entry name is added twice.
var ErrDuplicateEntry = errors.New("duplicate schedule entry")

var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression or descriptor.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// TaskFunc is the body of a scheduled entry.
type TaskFunc func(ctx context.Context) error

// JobStarter starts jobs by type. jobs.Service satisfies it.
type JobStarter interface {
	StartAsyncJob(ctx context.Context, jobType string) (string, error)
}

// Entry describes a registered schedule.
type Entry struct {
	Name string    `json:"name"`
	Spec string    `json:"spec"`
	Next time.Time `json:"next,omitempty"`
	Prev time.Time `json:"prev,omitempty"`
}

type entry struct {
	id   cronlib.EntryID
	spec string
	task TaskFunc
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLocation sets the time zone cron expressions are evaluated in.
// Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.location = loc
		}
	}
}

// Scheduler runs named entries on cron schedules. An entry is skipped while
// its previous run is still in progress.
type Scheduler struct {
	logger   *zap.Logger
	location *time.Location
	cron     *cronlib.Cron

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	entries map[string]*entry
	started bool
}

// New creates a stopped Scheduler.
func New(logger *zap.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		logger:   logger,
		location: time.UTC,
		entries:  make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}

	cl := cronLogger{s.logger.Sugar()}
	s.cron = cronlib.New(
		cronlib.WithParser(cronParser),
		cronlib.WithLocation(s.location),
		cronlib.WithLogger(cl),
		cronlib.WithChain(cronlib.Recover(cl), cronlib.SkipIfStillRunning(cl)),
	)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// AddFunc registers task under name.
func (s *Scheduler) AddFunc(name, spec string, task TaskFunc) error {
	if name == "" {
		return errors.New("schedule entry name is required")
	}
	if _, err := ParseSchedule(spec); err != nil {
		return fmt.Errorf("schedule %s: invalid spec %q: %w", name, spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.entries[name]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateEntry, name)
	}

	e := &entry{spec: spec, task: task}
	id, err := s.cron.AddFunc(spec, func() { _ = s.run(s.ctx, name, e) })
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	e.id = id
	s.entries[name] = e
	return nil
}

// AddStrategy registers a cleanup sweep under its strategy name.
func (s *Scheduler) AddStrategy(spec string, strategy cleanup.Strategy) error {
	return s.AddFunc(strategy.Name(), spec, strategy.DoCleanUp)
}

// AddDefinition starts def's job type on its declared schedule. Definitions
// without a schedule are ignored. A start refused because the job is running
// or blocked is not an error.
func (s *Scheduler) AddDefinition(starter JobStarter, def jobs.Definition) error {
	spec := def.Schedule()
	if spec == "" {
		return nil
	}
	return s.AddFunc("job:"+def.Type, spec, func(ctx context.Context) error {
		_, err := starter.StartAsyncJob(ctx, def.Type)
		if errors.Is(err, jobs.ErrJobAlreadyRunning) || errors.Is(err, jobs.ErrJobBlocked) {
			s.logger.Info("Scheduled job skipped", zap.String("job_type", def.Type), zap.Error(err))
			return nil
		}
		return err
	})
}

// Trigger runs the named entry now, on the caller's goroutine.
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEntry, name)
	}
	return s.run(ctx, name, e)
}

func (s *Scheduler) run(ctx context.Context, name string, e *entry) error {
	started := time.Now()
	err := e.task(ctx)
	if err != nil {
		s.logger.Error("Scheduled task failed", zap.String("entry", name), zap.Error(err))
		return err
	}
	s.logger.Debug("Scheduled task finished", zap.String("entry", name), zap.Duration("duration", time.Since(started)))
	return nil
}

// Entries returns the registered entries sorted by name.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.entries))
	for name, e := range s.entries {
		ce := s.cron.Entry(e.id)
		out = append(out, Entry{Name: name, Spec: e.spec, Next: ce.Next, Prev: ce.Prev})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Start begins firing entries. It is a no-op when already started.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
	s.logger.Info("Scheduler started", zap.Int("entries", len(s.entries)))
}

// Stop stops firing entries and waits for running ones to finish or ctx to
// be done. Tasks still running when ctx is done see their context cancelled.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	wasStarted := s.started
	s.started = false
	s.mu.Unlock()

	defer s.cancel()
	if !wasStarted {
		return nil
	}

	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts zap to the cron library's logger.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
