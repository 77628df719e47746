// Package rules holds the default rewrite catalog. Rules only use the
// searcher and applier interfaces of package opt, so a different catalog can
// be plugged into the optimizer without changing the engine.
package rules

import (
	"github.com/bits-and-blooms/bitset"
	"github.com/petermattis/satopt/cat"
	"github.com/petermattis/satopt/opt"
)

// Config toggles rules whose validity depends on the storage engine.
type Config struct {
	// EnableRangeFilterScan lets a Filter over a Scan become an IndexScan
	// when it compares an indexed column with a constant.
	EnableRangeFilterScan bool

	// TableIsSortedByPrimaryKey declares that a Scan returns rows in primary
	// key order, which lets an Order on a primary key prefix be dropped.
	TableIsSortedByPrimaryKey bool
}

// Stage is one step of the optimization pipeline: a rule set, the number of
// saturate-and-extract rounds, and the iteration limit of each round.
type Stage struct {
	Name      string
	Rules     []*opt.Rewrite
	Rounds    int
	IterLimit int
}

// Stages returns the three stages of the pipeline.
//
//  1. Subquery decorrelation.
//  2. Predicate and projection pushdown, index selection.
//  3. Join reordering and physical join selection.
func Stages(cfg Config) []Stage {
	return []Stage{
		{
			Name:      "1",
			Rules:     concat(AndRules(), AlwaysBetterRules(), SubqueryRules()),
			Rounds:    2,
			IterLimit: 6,
		},
		{
			Name: "2",
			Rules: concat(ExprRules(), AlwaysBetterRules(), PredicatePushdownRules(),
				ProjectionPushdownRules(), IndexScanRules(cfg)),
			Rounds:    4,
			IterLimit: 6,
		},
		{
			Name: "3",
			Rules: concat(AndRules(), AlwaysBetterRules(), JoinReorderRules(), HashJoinRules(),
				PredicatePushdownRules(), ProjectionPushdownRules(), OrderRules(cfg)),
			Rounds:    3,
			IterLimit: 8,
		},
	}
}

func concat(sets ...[]*opt.Rewrite) []*opt.Rewrite {
	var res []*opt.Rewrite
	for _, s := range sets {
		res = append(res, s...)
	}
	return res
}

func data(g *opt.EGraph, m opt.Match, v opt.Var) *opt.Analysis {
	return &g.Class(m.Subst.MustGet(v)).Data
}

// usesOnly is a condition that holds if the columns referenced by the scalar
// bound to expr are all produced by the classes bound to inputs.
func usesOnly(expr opt.Var, inputs ...opt.Var) opt.Condition {
	return func(g *opt.EGraph, m opt.Match) bool {
		return available(g, m, inputs...).IsSuperSet(data(g, m, expr).Cols)
	}
}

// bindsTo is like usesOnly but also requires expr to reference a column.
func bindsTo(expr opt.Var, inputs ...opt.Var) opt.Condition {
	uses := usesOnly(expr, inputs...)
	return func(g *opt.EGraph, m opt.Match) bool {
		return data(g, m, expr).Cols.Any() && uses(g, m)
	}
}

func available(g *opt.EGraph, m opt.Match, inputs ...opt.Var) *bitset.BitSet {
	cols := bitset.New(0)
	for _, v := range inputs {
		cols.InPlaceUnion(data(g, m, v).Cols)
	}
	return cols
}

func and(conds ...opt.Condition) opt.Condition {
	return func(g *opt.EGraph, m opt.Match) bool {
		for _, c := range conds {
			if !c(g, m) {
				return false
			}
		}
		return true
	}
}

// columnList adds a List of Column nodes for the set, in ascending column
// order, and returns its class.
func columnList(g *opt.EGraph, cols *bitset.BitSet) opt.Id {
	var ids []opt.Id
	for i, ok := cols.NextSet(0); ok; i, ok = cols.NextSet(i + 1) {
		ids = append(ids, g.Add(opt.NewColumn(cat.ColumnID(i))))
	}
	return g.Add(opt.NewNode(opt.ListOp, ids...))
}

// columns returns the column ids of a class holding a List of plain columns.
func columns(g *opt.EGraph, id opt.Id) ([]cat.ColumnID, bool) {
	cls := g.Class(id)
	for i := range cls.Nodes {
		n := &cls.Nodes[i]
		if n.Op != opt.ListOp {
			continue
		}
		res := make([]cat.ColumnID, 0, len(n.Children))
		for _, c := range n.Children {
			d := &g.Class(c).Data
			if !d.IsColumn {
				break
			}
			res = append(res, d.Column)
		}
		if len(res) == len(n.Children) {
			return res, true
		}
	}
	return nil, false
}
