// Package pool implements the bounded-concurrency admission gate that all
// Worker Runner starts pass through.
//
// Grounded on alex go.mod's golang.org/x/sync dependency: a weighted
// semaphore of width maxConcurrent is a more direct fit for "bounded
// concurrency FIFO gate" than a hand-rolled channel-based limiter, and
// golang.org/x/sync/semaphore's Acquire already queues FIFO and wakes the
// longest-waiting caller first.
package pool

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/ocmcp/supervisor/internal/metrics"
)

// Status reports the pool's current occupancy.
type Status struct {
	Running       int
	Queued        int
	MaxConcurrent int
}

// Pool is a FIFO admission gate bounding how many tasks run concurrently.
type Pool struct {
	mu      sync.Mutex
	sem     *semaphore.Weighted
	max     int
	running int
	queued  int
	metrics *metrics.Registry
}

// New constructs a Pool with the given concurrency limit. A non-positive
// limit is treated as 1 (at least one task must always be able to run).
func New(maxConcurrent int, reg *metrics.Registry) *Pool {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Pool{
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		max:     maxConcurrent,
		metrics: reg,
	}
}

// Execute runs task immediately if a slot is free, otherwise queues the
// caller until one is released. The ctx governs only the wait for
// admission — once task starts running it is not subject to ctx
// cancellation by the pool itself.
func (p *Pool) Execute(ctx context.Context, task func() error) error {
	p.mu.Lock()
	p.queued++
	p.publish()
	p.mu.Unlock()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		p.mu.Lock()
		p.queued--
		p.publish()
		p.mu.Unlock()
		return err
	}

	p.mu.Lock()
	p.queued--
	p.running++
	p.publish()
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.running--
		p.publish()
		p.mu.Unlock()
		p.sem.Release(1)
	}()

	return task()
}

// SetSize updates the concurrency limit, immediately admitting queued work
// up to the new limit. Shrinking the pool does not evict already-running
// work; it only throttles future admissions.
func (p *Pool) SetSize(n int) {
	if n <= 0 {
		n = 1
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	delta := n - p.max
	p.max = n
	if delta > 0 {
		p.sem.Release(int64(delta))
	} else if delta < 0 {
		// TryAcquire tightens the available weight; if it fails because
		// all slots are in use, the next Release cycle will settle at the
		// new width naturally as running tasks complete.
		_ = p.sem.TryAcquire(int64(-delta))
	}
	p.publish()
}

// GetStatus reports current running/queued/max.
func (p *Pool) GetStatus() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Status{Running: p.running, Queued: p.queued, MaxConcurrent: p.max}
}

// publish must be called with p.mu held.
func (p *Pool) publish() {
	if p.metrics != nil {
		p.metrics.SetPoolStatus(p.running, p.queued)
	}
}
