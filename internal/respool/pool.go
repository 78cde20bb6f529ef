// Package respool bounds concurrent use of heavyweight external resources.
//
// The converter holds a pool permit for the duration of each soffice run so
// the number of live LibreOffice processes never exceeds the configured
// capacity. Release closures are idempotent and safe to hold in a defer.
package respool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Pool is a counted permit pool backed by a weighted semaphore. Waiters are
// served in FIFO order.
type Pool struct {
	sem      *semaphore.Weighted
	capacity int
	inUse    atomic.Int64
}

// New creates a pool with the given capacity.
func New(maxConcurrent int) (*Pool, error) {
	if maxConcurrent < 1 {
		return nil, fmt.Errorf("pool capacity must be at least 1, got %d", maxConcurrent)
	}
	return &Pool{
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
		capacity: maxConcurrent,
	}, nil
}

// Acquire blocks until a permit is available or ctx is done. The returned
// release closure gives the permit back; calling it more than once is a
// no-op, so callers can defer it and still release early on the happy path.
func (p *Pool) Acquire(ctx context.Context) (func(), error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire pool permit: %w", err)
	}
	return p.releaseFunc(), nil
}

// TryAcquire takes a permit without blocking. It reports false when the
// pool is exhausted.
func (p *Pool) TryAcquire() (func(), bool) {
	if !p.sem.TryAcquire(1) {
		return nil, false
	}
	return p.releaseFunc(), true
}

func (p *Pool) releaseFunc() func() {
	p.inUse.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() {
			p.inUse.Add(-1)
			p.sem.Release(1)
		})
	}
}

// InUse reports how many permits are currently held.
func (p *Pool) InUse() int {
	return int(p.inUse.Load())
}

// Cap reports the pool capacity.
func (p *Pool) Cap() int {
	return p.capacity
}
