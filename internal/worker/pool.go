// Package worker runs blocking calls off the connection loops on a bounded pool.
package worker

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// Pool bounds the number of blocking operations in flight.
type Pool struct {
	sem  *semaphore.Weighted
	size int64
}

// NewPool creates a pool running at most size jobs at once.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: int64(size)}
}

// Size returns the concurrency limit.
func (p *Pool) Size() int {
	return int(p.size)
}

// Result carries the outcome of a job.
type Result[T any] struct {
	Value T
	Err   error
}

// Submit schedules fn on the pool and returns a channel receiving its result.
// The channel is buffered, so an abandoned result never blocks the worker.
func Submit[T any](ctx context.Context, p *Pool, fn func(ctx context.Context) (T, error)) <-chan Result[T] {
	out := make(chan Result[T], 1)
	go func() {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			out <- Result[T]{Err: fmt.Errorf("failed to acquire worker: %w", err)}
			return
		}
		defer p.sem.Release(1)

		var res Result[T]
		func() {
			defer func() {
				if r := recover(); r != nil {
					res.Err = fmt.Errorf("worker panic: %v", r)
				}
			}()
			res.Value, res.Err = fn(ctx)
		}()
		out <- res
	}()
	return out
}

// Do submits fn and waits for its result or for ctx to end.
func Do[T any](ctx context.Context, p *Pool, fn func(ctx context.Context) (T, error)) (T, error) {
	select {
	case res := <-Submit(ctx, p, fn):
		return res.Value, res.Err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
