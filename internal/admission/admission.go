// Package admission bounds the number of concurrently running fetch jobs
// with a counting semaphore.
package admission

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
)

// Controller guards a fixed pool of job slots. Capacity is set at
// construction and can never be exceeded; an acquire that does not obtain
// a slot within its wait policy has no side effects.
type Controller struct {
	sem      *semaphore.Weighted
	capacity int
}

// New creates a Controller with the given capacity. Capacity must be > 0;
// the caller validates configuration before constructing one.
func New(capacity int) *Controller {
	return &Controller{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: capacity,
	}
}

// Capacity returns the configured slot count.
func (c *Controller) Capacity() int {
	return c.capacity
}

// Acquire obtains one slot. A zero wait fails fast, a negative wait blocks
// until a slot frees, and a positive wait blocks up to that duration.
// It reports whether a slot was obtained.
func (c *Controller) Acquire(wait time.Duration) bool {
	if wait == 0 {
		return c.sem.TryAcquire(1)
	}
	ctx := context.Background()
	if wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, wait)
		defer cancel()
	}
	return c.sem.Acquire(ctx, 1) == nil
}

// Release returns a slot to the pool. It must be called exactly once per
// successful Acquire, on every completion path.
func (c *Controller) Release() {
	c.sem.Release(1)
}
