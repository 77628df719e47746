package xform

import (
	"github.com/petermattis/satopt/opt"
)

// Observer is notified after the input is loaded (stage "0", round 0) and
// after every round of every stage. Errors are logged and otherwise ignored;
// an observer cannot abort an optimization. Observers shared by concurrent
// optimizations must be safe for concurrent use.
type Observer interface {
	OnRound(rec Record) error
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(rec Record) error

func (f ObserverFunc) OnRound(rec Record) error {
	return f(rec)
}

// Record describes the e-graph of one round and the plan carried out of it.
type Record struct {
	Stage string
	Round int

	// Expr and Cost are the carried plan after the round.
	Expr *opt.RecExpr
	Cost opt.Cost

	// Extracted is the cost of the plan extracted by the round. Accepted is
	// set if that plan became the carried plan.
	Extracted opt.Cost
	Accepted  bool

	// Relational is the number of relational operators in Expr.
	Relational int

	Classes    int
	Nodes      int
	MergeCount int

	// MinNodes, MaxNodes and AvgNodes summarize the number of alternatives
	// held by the relational classes of the e-graph.
	MinNodes int
	MaxNodes int
	AvgNodes float64

	Iterations int
	StopReason opt.StopReason
	Rules      []opt.RuleCount
}

func newRecord(
	stage string, round int, g *opt.EGraph, r *opt.Runner, expr *opt.RecExpr, cost opt.Cost,
) Record {
	rec := Record{
		Stage:      stage,
		Round:      round,
		Expr:       expr,
		Cost:       cost,
		Extracted:  cost,
		Accepted:   true,
		Classes:    g.NumClasses(),
		Nodes:      g.NumNodes(),
		MergeCount: g.MergeCount(),
	}
	for _, n := range expr.Nodes() {
		if n.Op.IsRelational() {
			rec.Relational++
		}
	}

	var relational, total int
	for _, cls := range g.Classes() {
		if !cls.IsRelational() {
			continue
		}
		n := cls.Len()
		if relational == 0 || n < rec.MinNodes {
			rec.MinNodes = n
		}
		if n > rec.MaxNodes {
			rec.MaxNodes = n
		}
		relational++
		total += n
	}
	if relational > 0 {
		rec.AvgNodes = float64(total) / float64(relational)
	}

	if r != nil {
		rec.Iterations = len(r.Iterations)
		rec.StopReason = r.StopReason
		rec.Rules = r.Applied()
	}
	return rec
}
