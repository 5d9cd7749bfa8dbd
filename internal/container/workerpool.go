package container

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// WorkerPool bounds the number of concurrently running CPU-bound or
// blocking provider calls (e.g. local VAD inference) submitted together in
// one call. It wraps an [errgroup.Group] with [errgroup.Group.SetLimit].
// Every Submit or SubmitAll call builds its own group, so the limit applies
// within a single call only; calls made from separate goroutines are not
// bounded against one another.
type WorkerPool struct {
	limit int
}

// NewWorkerPool creates a WorkerPool that admits at most limit concurrent
// tasks. A non-positive limit means unbounded, matching
// [errgroup.Group.SetLimit]'s convention.
func NewWorkerPool(limit int) *WorkerPool {
	return &WorkerPool{limit: limit}
}

// Submit runs fn in a group of its own and returns fn's error. It blocks
// the caller for fn's runtime and no longer; it does not wait for a slot
// shared with other Submit calls. Callers that need fire-and-forget
// semantics should call it from their own goroutine.
func (p *WorkerPool) Submit(ctx context.Context, fn func(ctx context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	if p.limit > 0 {
		g.SetLimit(p.limit)
	}
	g.Go(func() error { return fn(gctx) })
	return g.Wait()
}

// SubmitAll runs fns concurrently, bounded by the pool's limit, and waits
// for all of them to finish. It returns the first error encountered, if any;
// every fn still runs to completion since errgroup only stops scheduling
// new work after a failure, it does not cancel already-running calls unless
// they themselves observe ctx.Done().
func (p *WorkerPool) SubmitAll(ctx context.Context, fns ...func(ctx context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	if p.limit > 0 {
		g.SetLimit(p.limit)
	}
	for _, fn := range fns {
		fn := fn
		g.Go(func() error { return fn(gctx) })
	}
	return g.Wait()
}
