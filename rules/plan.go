package rules

import "github.com/petermattis/satopt/opt"

// AlwaysBetterRules produce a plan that is never more expensive than the one
// they match, whatever the statistics.
func AlwaysBetterRules() []*opt.Rewrite {
	return []*opt.Rewrite{
		opt.NewRewrite("filter-true", "(filter ?input true)", "?input"),
		opt.NewRewriteFunc("filter-false", "(filter ?input false)", emptyOf("?input")),
		opt.NewRewriteFunc("filter-null", "(filter ?input null)", emptyOf("?input")),
		opt.NewRewrite("filter-empty", "(filter (empty ?cols) ?pred)", "(empty ?cols)"),
		opt.NewRewrite("filter-merge",
			"(filter (filter ?input ?p1) ?p2)",
			"(filter ?input (and ?p1 ?p2))"),
		opt.NewRewrite("order-order", "(order (order ?input ?k1) ?k2)", "(order ?input ?k2)"),
		opt.NewRewrite("limit-order",
			"(limit (order ?input ?keys) ?limit ?offset)",
			"(topn ?input ?limit ?offset ?keys)"),
	}
}

// emptyOf replaces the match with an Empty producing the columns of the class
// bound to v.
func emptyOf(v opt.Var) opt.ApplierFunc {
	return func(g *opt.EGraph, m opt.Match) bool {
		cols := columnList(g, data(g, m, v).Cols)
		return g.Union(m.Class, g.Add(opt.NewNode(opt.EmptyOp, cols)))
	}
}

// SubqueryRules decorrelate Apply. Predicates that reference the left side are
// pulled out of the right side into the Apply condition; once the right side
// references no outer column the Apply is an ordinary join.
func SubqueryRules() []*opt.Rewrite {
	return []*opt.Rewrite{
		opt.NewRewrite("apply-filter-pullup",
			"(apply ?left (filter ?right ?pred) ?cond)",
			"(apply ?left ?right (and ?cond ?pred))"),
		opt.NewRewriteIf("apply-to-join",
			"(apply ?left ?right ?cond)",
			"(join ?left ?right ?cond)",
			uncorrelated("?right")),
	}
}

func uncorrelated(v opt.Var) opt.Condition {
	return func(g *opt.EGraph, m opt.Match) bool {
		return data(g, m, v).Outer.None()
	}
}

// PredicatePushdownRules move predicates towards the scans that produce the
// columns they reference.
func PredicatePushdownRules() []*opt.Rewrite {
	return []*opt.Rewrite{
		opt.NewRewrite("filter-split",
			"(filter ?input (and ?p1 ?p2))",
			"(filter (filter ?input ?p1) ?p2)"),
		opt.NewRewrite("filter-into-join",
			"(filter (join ?left ?right ?cond) ?pred)",
			"(join ?left ?right (and ?cond ?pred))"),
		opt.NewRewriteIf("join-pushdown-left",
			"(join ?left ?right ?pred)",
			"(join (filter ?left ?pred) ?right true)",
			bindsTo("?pred", "?left")),
		opt.NewRewriteIf("join-pushdown-right",
			"(join ?left ?right ?pred)",
			"(join ?left (filter ?right ?pred) true)",
			bindsTo("?pred", "?right")),
		opt.NewRewriteIf("join-split-left",
			"(join ?left ?right (and ?pred ?rest))",
			"(join (filter ?left ?pred) ?right ?rest)",
			bindsTo("?pred", "?left")),
		opt.NewRewriteIf("join-split-right",
			"(join ?left ?right (and ?pred ?rest))",
			"(join ?left (filter ?right ?pred) ?rest)",
			bindsTo("?pred", "?right")),
		opt.NewRewriteIf("filter-below-proj",
			"(filter (proj ?input ?exprs) ?pred)",
			"(proj (filter ?input ?pred) ?exprs)",
			usesOnly("?pred", "?input")),
		opt.NewRewriteIf("filter-below-agg",
			"(filter (hashagg ?input ?aggs ?groupby) ?pred)",
			"(hashagg (filter ?input ?pred) ?aggs ?groupby)",
			usesOnly("?pred", "?groupby")),
	}
}

// ProjectionPushdownRules prune columns that no operator above needs.
func ProjectionPushdownRules() []*opt.Rewrite {
	return []*opt.Rewrite{
		opt.NewRewriteFunc("proj-scan-prune",
			"(proj (scan ?table ?cols) ?exprs)",
			func(g *opt.EGraph, m opt.Match) bool {
				need := data(g, m, "?exprs").Cols.Intersection(data(g, m, "?cols").Cols)
				scan := g.Add(opt.NewNode(opt.ScanOp, m.Subst.MustGet("?table"), columnList(g, need)))
				return g.Union(m.Class, g.Add(opt.NewNode(opt.ProjOp, scan, m.Subst.MustGet("?exprs"))))
			}),
		opt.NewRewriteFunc("proj-filter-scan-prune",
			"(proj (filter (scan ?table ?cols) ?pred) ?exprs)",
			func(g *opt.EGraph, m opt.Match) bool {
				need := available(g, m, "?exprs", "?pred").Intersection(data(g, m, "?cols").Cols)
				scan := g.Add(opt.NewNode(opt.ScanOp, m.Subst.MustGet("?table"), columnList(g, need)))
				filter := g.Add(opt.NewNode(opt.FilterOp, scan, m.Subst.MustGet("?pred")))
				return g.Union(m.Class, g.Add(opt.NewNode(opt.ProjOp, filter, m.Subst.MustGet("?exprs"))))
			}),
		opt.NewRewriteFunc("proj-join-prune",
			"(proj (join ?left ?right ?cond) ?exprs)",
			func(g *opt.EGraph, m opt.Match) bool {
				need := available(g, m, "?exprs", "?cond")
				left, right := data(g, m, "?left").Cols, data(g, m, "?right").Cols
				if need.IsSuperSet(left) && need.IsSuperSet(right) {
					// Nothing to prune.
					return false
				}
				l := g.Add(opt.NewNode(opt.ProjOp, m.Subst.MustGet("?left"), columnList(g, left.Intersection(need))))
				r := g.Add(opt.NewNode(opt.ProjOp, m.Subst.MustGet("?right"), columnList(g, right.Intersection(need))))
				join := g.Add(opt.NewNode(opt.JoinOp, l, r, m.Subst.MustGet("?cond")))
				return g.Union(m.Class, g.Add(opt.NewNode(opt.ProjOp, join, m.Subst.MustGet("?exprs"))))
			}),
	}
}

// JoinReorderRules enumerate join orders. Association only happens when the
// upper condition can be evaluated by the new lower join, so no rule
// introduces a cross join that was not already there.
func JoinReorderRules() []*opt.Rewrite {
	return []*opt.Rewrite{
		opt.NewRewrite("join-comm",
			"(join ?left ?right ?cond)",
			"(join ?right ?left ?cond)"),
		opt.NewRewriteIf("join-assoc",
			"(join (join ?a ?b ?c1) ?c ?c2)",
			"(join ?a (join ?b ?c ?c2) ?c1)",
			bindsTo("?c2", "?b", "?c")),
	}
}

// HashJoinRules implement an equi-join as a hash join that builds on its
// right input.
func HashJoinRules() []*opt.Rewrite {
	return []*opt.Rewrite{
		opt.NewRewriteIf("hash-join",
			"(join ?left ?right (= ?l ?r))",
			"(hashjoin ?left ?right (= ?l ?r))",
			equiJoin("?l", "?r")),
		opt.NewRewriteIf("hash-join-swap",
			"(join ?left ?right (= ?r ?l))",
			"(hashjoin ?left ?right (= ?l ?r))",
			equiJoin("?l", "?r")),
		opt.NewRewriteIf("hash-join-rest",
			"(join ?left ?right (and (= ?l ?r) ?rest))",
			"(filter (hashjoin ?left ?right (= ?l ?r)) ?rest)",
			equiJoin("?l", "?r")),
	}
}

// equiJoin holds if l references only the left input and r only the right.
func equiJoin(l, r opt.Var) opt.Condition {
	return and(bindsTo(l, "?left"), bindsTo(r, "?right"))
}
