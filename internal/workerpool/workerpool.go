// Package workerpool runs blocking git and filesystem work off the
// request-handling goroutine: the caller's goroutine suspends on a
// channel receive while a bounded set of background goroutines does the
// actual syscalls. Bounded concurrency is enforced with
// golang.org/x/sync/semaphore rather than a hand-rolled channel-as-semaphore.
package workerpool

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// Pool bounds concurrent blocking work to size goroutines.
type Pool struct {
	sem  *semaphore.Weighted
	size int64
}

// New creates a Pool that runs at most size jobs concurrently.
func New(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: int64(size)}
}

// Run submits fn and blocks until fn completes or ctx is cancelled,
// whether while waiting for a slot or while fn runs. Once fn has
// started it runs to completion even if ctx is later cancelled, matching
// the core's "request cancellation drops the request, dispatched work
// still completes" rule; its result is simply discarded by the caller.
// The slot stays taken until fn returns.
func (p *Pool) Run(ctx context.Context, fn func() error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		defer p.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("workerpool: job panicked: %v", r)
			}
		}()
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		// The goroutine above keeps running to completion; we just stop
		// waiting on it here. Its result, once it arrives, is dropped by
		// garbage collection of the done channel.
		return ctx.Err()
	}
}

// RunValue is Run for jobs that also produce a value.
func RunValue[T any](ctx context.Context, p *Pool, fn func() (T, error)) (T, error) {
	var result T
	err := p.Run(ctx, func() error {
		v, err := fn()
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}
