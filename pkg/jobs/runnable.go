package jobs

import (
	"context"

	"go.uber.org/zap"
)

// EventPublisher lets a running job append messages to its own record.
//
// Publishing an Error message marks the job ERROR even if Execute later
// returns nil.
type EventPublisher interface {
	Info(text string)
	Warn(text string)
	Error(text string)
}

// Runnable is the work behind a job type.
type Runnable interface {
	Definition() Definition
	Execute(ctx context.Context, events EventPublisher) error
}

// ExecuteFunc is the body of a job.
type ExecuteFunc func(ctx context.Context, events EventPublisher) error

type funcRunnable struct {
	def Definition
	fn  ExecuteFunc
}

// NewRunnable adapts a function to the Runnable interface.
func NewRunnable(def Definition, fn ExecuteFunc) Runnable {
	return &funcRunnable{def: def, fn: fn}
}

func (r *funcRunnable) Definition() Definition { return r.def }

func (r *funcRunnable) Execute(ctx context.Context, events EventPublisher) error {
	return r.fn(ctx, events)
}

type loggerKey struct{}

func contextWithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFromContext returns the job-scoped logger carrying job_id, job_type
// and job_uri fields. Outside a job it returns a no-op logger.
func LoggerFromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return zap.NewNop()
}
