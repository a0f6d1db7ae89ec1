package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// instrumentationName is the OpenTelemetry scope for job runs.
const instrumentationName = "github.com/3leaps/edison/pkg/jobs"

// DefaultHeartbeatInterval is how often a running job refreshes LastUpdated.
const DefaultHeartbeatInterval = time.Minute

// Clock returns the current time. Tests inject fixed clocks.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRunnerLogger sets the base logger. Job fields are added per run.
func WithRunnerLogger(logger *zap.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRunnerClock sets the clock used for timestamps.
func WithRunnerClock(clock Clock) RunnerOption {
	return func(r *Runner) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithHeartbeatInterval sets how often LastUpdated is refreshed while a job
// runs. Zero disables the heartbeat.
func WithHeartbeatInterval(d time.Duration) RunnerOption {
	return func(r *Runner) { r.heartbeat = d }
}

// WithTracer sets the tracer used for job spans.
func WithTracer(tracer trace.Tracer) RunnerOption {
	return func(r *Runner) {
		if tracer != nil {
			r.tracer = tracer
		}
	}
}

// WithMeter sets the meter used for job duration and execution counts.
func WithMeter(meter metric.Meter) RunnerOption {
	return func(r *Runner) {
		if meter != nil {
			r.meter = meter
		}
	}
}

// Runner executes single jobs and keeps their records in step with the
// actual execution state.
type Runner struct {
	repo      Repository
	logger    *zap.Logger
	clock     Clock
	heartbeat time.Duration
	tracer    trace.Tracer
	meter     metric.Meter

	duration   metric.Float64Histogram
	executions metric.Int64Counter
}

// NewRunner creates a Runner persisting through repo.
func NewRunner(repo Repository, opts ...RunnerOption) *Runner {
	r := &Runner{
		repo:      repo,
		logger:    zap.NewNop(),
		clock:     systemClock,
		heartbeat: DefaultHeartbeatInterval,
		tracer:    otel.Tracer(instrumentationName),
		meter:     otel.Meter(instrumentationName),
	}
	for _, opt := range opts {
		opt(r)
	}

	// On error the OTel API returns noop instruments.
	r.duration, _ = r.meter.Float64Histogram(
		"edison.job.duration",
		metric.WithDescription("Duration of job runs in seconds"),
		metric.WithUnit("s"),
	)
	r.executions, _ = r.meter.Int64Counter(
		"edison.job.executions",
		metric.WithDescription("Total number of finished job runs"),
		metric.WithUnit("{execution}"),
	)
	return r
}

// Run persists the initial RUNNING record and executes runnable to
// completion. Failures of the job body are recorded, never returned.
func (r *Runner) Run(ctx context.Context, record *Record, runnable Runnable) {
	if err := r.Start(ctx, record); err != nil {
		r.logger.Error("Failed to persist job start",
			zap.String("job_id", record.ID),
			zap.String("job_type", record.JobType),
			zap.Error(err))
	}
	r.Execute(ctx, record, runnable)
}

// Start persists the initial RUNNING record.
func (r *Runner) Start(ctx context.Context, record *Record) error {
	record.LastUpdated = r.clock().UTC()
	return r.repo.CreateOrUpdate(ctx, record.Clone())
}

// Abort stops a record that was persisted but never executed.
func (r *Runner) Abort(ctx context.Context, record *Record, cause error) {
	record.AppendMessage(LevelError, "Job could not be started: "+cause.Error(), r.clock())
	record.Stop(StatusError, r.clock())
	if err := r.repo.CreateOrUpdate(ctx, record.Clone()); err != nil {
		r.logger.Error("Failed to persist aborted job",
			zap.String("job_id", record.ID),
			zap.Error(err))
	}
}

// Execute runs the job body for an already persisted record.
//
// The record must not be touched by the caller until Execute returns.
func (r *Runner) Execute(ctx context.Context, record *Record, runnable Runnable) {
	def := runnable.Definition()
	logger := r.logger.With(
		zap.String("job_id", record.ID),
		zap.String("job_type", record.JobType),
		zap.String("job_uri", record.URI),
	)
	ctx = contextWithLogger(ctx, logger)

	ctx, span := r.tracer.Start(ctx, "edison.job.run",
		trace.WithAttributes(
			attribute.String("edison.job.id", record.ID),
			attribute.String("edison.job.type", record.JobType),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()

	run := &jobRun{runner: r, ctx: ctx, record: record, logger: logger}
	started := time.Now()
	logger.Info("Job started")

	stopHeartbeat := run.startHeartbeat(ctx, r.heartbeat)
	err := r.attempt(ctx, run, runnable, def)
	stopHeartbeat()

	final := run.finish(ctx, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	attrs := metric.WithAttributes(
		attribute.String("job_type", record.JobType),
		attribute.String("status", string(final)),
	)
	r.duration.Record(ctx, time.Since(started).Seconds(), attrs)
	r.executions.Add(ctx, 1, attrs)
}

// attempt executes the runnable, restarting it after failures as long as the
// definition allows.
func (r *Runner) attempt(ctx context.Context, run *jobRun, runnable Runnable, def Definition) error {
	for attempt := 0; ; attempt++ {
		err := executeOnce(ctx, runnable, run, def.Timeout)
		if err == nil {
			return nil
		}
		if attempt >= def.Retries {
			return err
		}

		run.publish(ctx, LevelWarning, fmt.Sprintf("Restarting job after failure (%d/%d): %v", attempt+1, def.Retries, err))
		if def.RetryDelay > 0 {
			t := time.NewTimer(def.RetryDelay)
			select {
			case <-ctx.Done():
				t.Stop()
				return err
			case <-t.C:
			}
		}
	}
}

func executeOnce(ctx context.Context, runnable Runnable, events EventPublisher, timeout time.Duration) (err error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return runnable.Execute(ctx, events)
}

// jobRun is the mutable state of one execution. The heartbeat goroutine and
// the job body both write the record, so every access holds mu.
//
// Once the stored record is stopped by someone else (KillJob or
// cleanup.StopDeadJobs), the run adopts it and never writes again.
type jobRun struct {
	runner *Runner
	ctx    context.Context
	logger *zap.Logger

	mu        sync.Mutex
	record    *Record
	corrected bool
}

func (j *jobRun) Info(text string)  { j.publish(j.ctx, LevelInfo, text) }
func (j *jobRun) Warn(text string)  { j.publish(j.ctx, LevelWarning, text) }
func (j *jobRun) Error(text string) { j.publish(j.ctx, LevelError, text) }

func (j *jobRun) publish(ctx context.Context, level Level, text string) {
	switch level {
	case LevelError:
		j.logger.Error(text)
	case LevelWarning:
		j.logger.Warn(text)
	default:
		j.logger.Info(text)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.correctedLocked(ctx) {
		return
	}
	j.record.AppendMessage(level, text, j.runner.clock())
	if level == LevelError {
		j.record.Status = StatusError
	}
	j.persistLocked(ctx)
}

func (j *jobRun) startHeartbeat(ctx context.Context, interval time.Duration) func() {
	if interval <= 0 {
		return func() {}
	}

	t := time.NewTicker(interval)
	done := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-t.C:
				j.mu.Lock()
				if j.correctedLocked(ctx) {
					j.mu.Unlock()
					return
				}
				j.record.LastUpdated = j.runner.clock().UTC()
				j.persistLocked(ctx)
				j.mu.Unlock()
			}
		}
	}()

	return func() {
		t.Stop()
		close(done)
		<-stopped
	}
}

func (j *jobRun) finish(ctx context.Context, err error) Status {
	j.mu.Lock()
	defer j.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	if j.correctedLocked(ctx) {
		j.logger.Warn("Job finished after its record was stopped",
			zap.String("status", string(j.record.Status)), zap.Error(err))
		return j.record.Status
	}

	now := j.runner.clock()
	status := j.record.Status
	if err != nil {
		j.record.AppendMessage(LevelError, "Job failed: "+err.Error(), now)
		status = StatusError
	}
	j.record.Stop(status, now)
	j.persistLocked(ctx)

	if status == StatusOK {
		j.logger.Info("Job finished", zap.String("status", string(status)))
	} else {
		j.logger.Warn("Job finished", zap.String("status", string(status)), zap.Error(err))
	}
	return status
}

// correctedLocked reports whether the stored record was stopped outside this
// run. The stored record is copied over the in-memory one when it was. Read
// failures fall through to a normal write.
func (j *jobRun) correctedLocked(ctx context.Context) bool {
	if j.corrected {
		return true
	}
	stored, err := j.runner.repo.FindOne(ctx, j.record.ID)
	if err != nil || !stored.IsStopped() {
		return false
	}
	j.corrected = true
	*j.record = *stored
	j.logger.Warn("Job record was stopped externally", zap.String("status", string(stored.Status)))
	return true
}

// persistLocked writes the record. Failures are logged: the in-memory record
// keeps transitioning even when the repository is unavailable.
func (j *jobRun) persistLocked(ctx context.Context) {
	if err := j.runner.repo.CreateOrUpdate(ctx, j.record.Clone()); err != nil {
		j.logger.Error("Failed to persist job record", zap.Error(err))
	}
}
