package xform

import (
	"context"
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/petermattis/satopt/opt"
	"golang.org/x/sync/errgroup"
)

// OptimizeBatch optimizes independent expressions concurrently. Results are
// returned in input order. The first failure cancels the optimizations that
// have not started yet and is returned.
func (o *Optimizer) OptimizeBatch(ctx context.Context, exprs []*opt.RecExpr) ([]*Result, error) {
	results := make([]*Result, len(exprs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range exprs {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := o.OptimizeWithStats(exprs[i])
			if err != nil {
				return errors.Wrapf(err, "expression %d", i)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
