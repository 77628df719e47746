package rules

import (
	"github.com/petermattis/satopt/cat"
	"github.com/petermattis/satopt/opt"
)

// IndexScanRules turn a filtered scan into an IndexScan when the predicate
// compares the leading column of an index of the table with a constant. They
// are empty unless cfg.EnableRangeFilterScan is set.
func IndexScanRules(cfg Config) []*opt.Rewrite {
	if !cfg.EnableRangeFilterScan {
		return nil
	}
	return []*opt.Rewrite{
		opt.NewRewriteIf("filter-scan-to-index",
			"(filter (scan ?table ?cols) ?pred)",
			"(indexscan ?table ?cols ?pred)",
			indexable()),
	}
}

func indexable() opt.Condition {
	return func(g *opt.EGraph, m opt.Match) bool {
		stats, table := g.Stats(), data(g, m, "?table")
		if stats == nil || !table.IsTable {
			return false
		}
		s := sargSearch{
			g:    g,
			seen: make(map[opt.Id]bool),
			indexed: func(col cat.ColumnID) bool {
				return stats.HasIndex(table.Table, col)
			},
		}
		return s.visit(m.Subst.MustGet("?pred"))
	}
}

// sargSearch looks for a comparison between an indexed column and a constant
// among the members of a predicate class and the conjuncts of its And
// members.
type sargSearch struct {
	g       *opt.EGraph
	seen    map[opt.Id]bool
	indexed func(cat.ColumnID) bool
}

func (s *sargSearch) visit(id opt.Id) bool {
	id = s.g.Find(id)
	if s.seen[id] {
		return false
	}
	s.seen[id] = true

	cls := s.g.Class(id)
	for i := range cls.Nodes {
		n := &cls.Nodes[i]
		switch n.Op {
		case opt.EqOp, opt.LtOp, opt.GtOp:
			if s.compares(n) {
				return true
			}
		case opt.AndOp:
			if s.visit(n.Children[0]) || s.visit(n.Children[1]) {
				return true
			}
		}
	}
	return false
}

func (s *sargSearch) compares(n *opt.ENode) bool {
	a, b := &s.g.Class(n.Children[0]).Data, &s.g.Class(n.Children[1]).Data
	if b.IsColumn && a.IsConst {
		a, b = b, a
	}
	return a.IsColumn && b.IsConst && s.indexed(a.Column)
}
