package xform

import (
	"github.com/petermattis/satopt/opt"
)

// Costs returns, for each node of expr, the cost of the subtree rooted at the
// node. The costs are computed over a fresh e-graph holding only expr.
func (o *Optimizer) Costs(expr *opt.RecExpr) (_ []opt.Cost, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = opt.CatchOptimizerError(r)
		}
	}()
	if err := expr.Validate(); err != nil {
		return nil, err
	}
	return o.costs(expr), nil
}

// Rows returns the estimated row count of each node of expr.
func (o *Optimizer) Rows(expr *opt.RecExpr) (_ []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = opt.CatchOptimizerError(r)
		}
	}()
	if err := expr.Validate(); err != nil {
		return nil, err
	}
	return o.rows(expr), nil
}

// Nodes of a RecExpr and classes of the e-graph do not line up one to one:
// equal subexpressions share a class and constant folding may merge more.
// AddExprIDs maps each node to its class.

func (o *Optimizer) costs(expr *opt.RecExpr) []opt.Cost {
	g := opt.NewEGraph(o.stats)
	ids := g.AddExprIDs(expr)
	g.Rebuild()

	costs := make([]opt.Cost, expr.Len())
	for i, n := range expr.Nodes() {
		mapped := n.MapChildren(func(c opt.Id) opt.Id { return g.Find(ids[c]) })
		cost := o.model.BaseCost(g, &mapped)
		for _, c := range n.Children {
			cost += costs[c]
		}
		costs[i] = cost
	}
	return costs
}

func (o *Optimizer) rows(expr *opt.RecExpr) []float64 {
	g := opt.NewEGraph(o.stats)
	ids := g.AddExprIDs(expr)
	g.Rebuild()

	rows := make([]float64, expr.Len())
	for i, id := range ids {
		rows[i] = g.Class(id).Data.Rows
	}
	return rows
}

// cost returns the cost of the whole expression.
func (o *Optimizer) cost(expr *opt.RecExpr) opt.Cost {
	costs := o.costs(expr)
	return costs[len(costs)-1]
}
