package node

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Pool is a bounded task pool. Tests use one to drive several
// proposers concurrently without hand-rolling goroutine lifecycles.
type Pool struct {
	g   *errgroup.Group
	ctx context.Context
}

// NewPool creates a pool. limit <= 0 means unbounded.
func NewPool(ctx context.Context, limit int) *Pool {
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	return &Pool{g: g, ctx: ctx}
}

// Go schedules fn on the pool.
func (p *Pool) Go(fn func(ctx context.Context) error) {
	p.g.Go(func() error {
		return fn(p.ctx)
	})
}

// Wait blocks until every scheduled task returns and reports the first
// error.
func (p *Pool) Wait() error {
	return p.g.Wait()
}
