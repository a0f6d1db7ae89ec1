package jobs

import (
	"context"
	"sync"
)

// Executor runs submitted work asynchronously. Submit must not block on the
// work itself.
type Executor interface {
	Submit(task func()) error
}

// PoolExecutor runs each task on its own goroutine, with at most
// maxConcurrent tasks executing at once. Tasks beyond the limit wait for a
// free slot on their goroutine, so Submit never blocks.
type PoolExecutor struct {
	slots chan struct{}

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewPoolExecutor creates a PoolExecutor. maxConcurrent <= 0 means unbounded.
func NewPoolExecutor(maxConcurrent int) *PoolExecutor {
	e := &PoolExecutor{}
	if maxConcurrent > 0 {
		e.slots = make(chan struct{}, maxConcurrent)
	}
	return e
}

// Submit schedules task. It fails with ErrExecutorClosed after Shutdown.
func (e *PoolExecutor) Submit(task func()) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrExecutorClosed
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if e.slots != nil {
			e.slots <- struct{}{}
			defer func() { <-e.slots }()
		}
		task()
	}()
	return nil
}

// Shutdown rejects new work and waits for submitted tasks to finish or ctx
// to be done.
func (e *PoolExecutor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
