package status

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
)

// CachedAggregator holds the last aggregated Snapshot.
//
// Refresh is the single writer; Snapshot and StatusDetails read the current
// snapshot without locking. Indicators are only queried on Refresh, so an
// expensive indicator never runs on the request path.
type CachedAggregator struct {
	indicators []Indicator
	logger     *zap.Logger
	current    atomic.Pointer[Snapshot]
}

// NewCachedAggregator creates an aggregator over indicators. The initial
// snapshot is OK with no details until the first Refresh.
func NewCachedAggregator(logger *zap.Logger, indicators ...Indicator) *CachedAggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &CachedAggregator{
		indicators: indicators,
		logger:     logger,
	}
	c.current.Store(&Snapshot{Status: OK, Details: []Detail{}})
	return c
}

// Refresh aggregates all indicators and publishes the result.
func (c *CachedAggregator) Refresh(ctx context.Context) Snapshot {
	snap := Aggregate(ctx, c.indicators...)
	prev := c.current.Swap(&snap)
	if prev != nil && prev.Status != snap.Status {
		c.logger.Info("Application status changed",
			zap.String("from", string(prev.Status)),
			zap.String("to", string(snap.Status)))
	}
	return snap
}

// Snapshot returns the most recently published snapshot.
func (c *CachedAggregator) Snapshot() Snapshot {
	return *c.current.Load()
}

// StatusDetails returns the cached details, so a CachedAggregator can itself
// be composed as an Indicator.
func (c *CachedAggregator) StatusDetails(_ context.Context) []Detail {
	return c.Snapshot().Details
}
