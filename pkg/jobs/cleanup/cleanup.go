// Package cleanup provides periodic sweeps over the job repository.
//
// Strategies are triggered externally (see pkg/schedule); they never run on
// their own.
package cleanup

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/edison/pkg/jobs"
)

// Strategy is a repository sweep.
type Strategy interface {
	Name() string
	DoCleanUp(ctx context.Context) error
}

var (
	_ Strategy = (*KeepLastJobs)(nil)
	_ Strategy = (*StopDeadJobs)(nil)
)

// Option configures a strategy.
type Option func(*options)

type options struct {
	logger *zap.Logger
	clock  jobs.Clock
}

func newOptions(opts []Option) options {
	o := options{
		logger: zap.NewNop(),
		clock:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock sets the clock used for staleness checks and stop timestamps.
func WithClock(clock jobs.Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}
