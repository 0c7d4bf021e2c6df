// Package workerpool bounds how many background jobs run at once.
package workerpool

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrDraining is returned by Run once Drain has been called.
var ErrDraining = errors.New("worker pool is draining")

// Pool limits concurrent jobs using a weighted semaphore. Jobs are tracked
// so Drain can block until they finish during shutdown.
type Pool struct {
	sem *semaphore.Weighted

	mu       sync.Mutex
	draining bool
	wg       sync.WaitGroup
}

// New creates a Pool that allows at most limit concurrent jobs.
func New(limit int) *Pool {
	if limit < 1 {
		limit = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(limit))}
}

// Run acquires a slot, runs fn, and releases the slot.
// Blocks if all slots are busy. Returns ctx.Err() if the context
// is cancelled while waiting for a slot, and ErrDraining after Drain.
// If the pool is nil, fn is executed directly without concurrency control.
func (p *Pool) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if p == nil || p.sem == nil {
		return fn(ctx)
	}
	p.mu.Lock()
	if p.draining {
		p.mu.Unlock()
		return ErrDraining
	}
	p.wg.Add(1)
	p.mu.Unlock()
	defer p.wg.Done()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn(ctx)
}

// Drain stops the pool from taking new jobs and blocks until every
// running or waiting job has returned. It is safe to call more than once.
func (p *Pool) Drain() {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.draining = true
	p.mu.Unlock()
	p.wg.Wait()
}
