package jobs_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/edison/pkg/jobs"
)

func TestPoolExecutor_BoundsConcurrency(t *testing.T) {
	e := jobs.NewPoolExecutor(2)
	var current, peak atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		require.NoError(t, e.Submit(func() {
			defer wg.Done()
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			current.Add(-1)
		}))
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.NoError(t, e.Shutdown(context.Background()))
}

func TestPoolExecutor_SubmitDoesNotBlock(t *testing.T) {
	e := jobs.NewPoolExecutor(1)
	release := make(chan struct{})

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, e.Submit(func() { <-release }))
	}
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	close(release)
	assert.NoError(t, e.Shutdown(context.Background()))
}

func TestPoolExecutor_Shutdown(t *testing.T) {
	e := jobs.NewPoolExecutor(0)
	release := make(chan struct{})
	require.NoError(t, e.Submit(func() { <-release }))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, e.Shutdown(ctx), context.DeadlineExceeded)

	assert.ErrorIs(t, e.Submit(func() {}), jobs.ErrExecutorClosed)

	close(release)
	assert.NoError(t, e.Shutdown(context.Background()))
}
