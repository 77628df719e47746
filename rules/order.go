package rules

import "github.com/petermattis/satopt/opt"

// OrderRules choose sort-based plans: merge joins over sorted inputs, and
// dropping sorts the storage order already satisfies.
func OrderRules(cfg Config) []*opt.Rewrite {
	rules := []*opt.Rewrite{
		opt.NewRewriteIf("merge-join",
			"(join ?left ?right (= ?l ?r))",
			"(mergejoin (order ?left (list ?l)) (order ?right (list ?r)) (= ?l ?r))",
			equiJoin("?l", "?r")),
		opt.NewRewrite("filter-below-order",
			"(filter (order ?input ?keys) ?pred)",
			"(order (filter ?input ?pred) ?keys)"),
	}
	if cfg.TableIsSortedByPrimaryKey {
		rules = append(rules, opt.NewRewriteIf("scan-order-elim",
			"(order (scan ?table ?cols) ?keys)",
			"(scan ?table ?cols)",
			primaryKeyPrefix))
	}
	return rules
}

// primaryKeyPrefix holds if the sort keys are a prefix of the primary key of
// the scanned table.
func primaryKeyPrefix(g *opt.EGraph, m opt.Match) bool {
	stats, table := g.Stats(), data(g, m, "?table")
	if stats == nil || !table.IsTable {
		return false
	}
	keys, ok := columns(g, m.Subst.MustGet("?keys"))
	pk := stats.PrimaryKey(table.Table)
	if !ok || len(keys) == 0 || len(keys) > len(pk) {
		return false
	}
	for i := range keys {
		if keys[i] != pk[i] {
			return false
		}
	}
	return true
}
