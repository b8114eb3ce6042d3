package node

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// minWorkers is the floor on the background task driver's concurrency
// (spec.md §5: "creates its own with ≥2 worker threads").
const minWorkers = 2

// Driver is the background task driver NodeCore uses to run the
// cooperative work its transports and optional metrics hook need (spec.md
// §4.5/§5). Grounded on the teacher's per-goroutine sync.WaitGroup pattern
// in main.go, generalized with golang.org/x/sync/errgroup so the first
// transport failure cancels the rest of the group and shutdown can wait on
// a single call.
type Driver struct {
	group *errgroup.Group
	ctx   context.Context
}

// NewDriver creates an owned driver with the given worker budget, raised to
// at least minWorkers.
func NewDriver(ctx context.Context, workers int) *Driver {
	if workers < minWorkers {
		workers = minWorkers
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	return &Driver{group: g, ctx: gctx}
}

// Go schedules fn on the driver.
func (d *Driver) Go(fn func() error) {
	d.group.Go(fn)
}

// Context returns the driver's context, canceled once any scheduled task
// returns a non-nil error.
func (d *Driver) Context() context.Context {
	return d.ctx
}

// Wait blocks until every scheduled task has returned, yielding the first
// error (if any).
func (d *Driver) Wait() error {
	return d.group.Wait()
}
