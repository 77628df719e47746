package opt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func filterMerge() *Rewrite {
	return NewRewrite("filter-merge",
		"(filter (filter ?input ?p1) ?p2)",
		"(filter ?input (and ?p1 ?p2))")
}

func TestRunnerFilterMerge(t *testing.T) {
	g := NewEGraph(testCatalog(t))
	e := MustParseRecExpr("(filter (filter (scan $t1 (list $c1 $c2)) (= $c1 5)) (= $c2 1))")
	ids := g.AddExprIDs(e)
	root := ids[len(ids)-1]

	r := NewRunner(g).Run([]*Rewrite{filterMerge()})
	require.Equal(t, Saturated, r.StopReason)
	require.Len(t, r.Iterations, 2)
	require.Equal(t, []RuleCount{{Name: "filter-merge", Count: 1}}, r.Applied())
	require.Equal(t, 1, r.Iterations[0].Unions)
	require.Equal(t, 0, r.Iterations[1].Unions)

	and, ok := g.Lookup(NewNode(AndOp, g.Find(ids[7]), g.Find(ids[11])))
	require.True(t, ok)
	merged, ok := g.Lookup(NewNode(FilterOp, g.Find(ids[4]), and))
	require.True(t, ok)
	require.Equal(t, g.Find(root), merged)

	cost, best, err := NewExtractor(g, NewCoster(DefaultCostConfig)).FindBest(root)
	require.NoError(t, err)
	require.Less(t, cost, MaxCost)
	require.Equal(t, "(filter (scan $t1 (list $c1 $c2)) (and (= $c1 5) (= $c2 1)))", best.String())
}

func TestRunnerIdempotent(t *testing.T) {
	g := NewEGraph(testCatalog(t))
	g.AddExpr(MustParseRecExpr("(filter (filter (filter (scan $t1 (list $c1)) (= $c1 1)) (= $c1 2)) (= $c1 3))"))
	rules := []*Rewrite{filterMerge()}
	require.Equal(t, Saturated, NewRunner(g).Run(rules).StopReason)

	merges, nodes := g.MergeCount(), g.NumNodes()
	r := NewRunner(g).Run(rules)
	require.Equal(t, Saturated, r.StopReason)
	require.Len(t, r.Iterations, 1)
	require.Equal(t, merges, g.MergeCount())
	require.Equal(t, nodes, g.NumNodes())
}

func TestRunnerCondition(t *testing.T) {
	g := NewEGraph(nil)
	g.AddExpr(MustParseRecExpr("(not (not $c1))"))
	never := func(*EGraph, Match) bool { return false }
	rw := NewRewriteIf("double-not", "(not (not ?x))", "?x", never)

	r := NewRunner(g).Run([]*Rewrite{rw})
	require.Equal(t, Saturated, r.StopReason)
	require.Len(t, r.Iterations, 1)
	require.Empty(t, r.Applied())
	require.Equal(t, 3, g.NumClasses())
}

// grow adds a fresh constant every time it is applied, so the e-graph never
// saturates.
func grow() *Rewrite {
	n := int64(100)
	return NewRewriteFunc("grow", "(not ?x)", func(g *EGraph, m Match) bool {
		n++
		g.Add(NewConstant(DInt(n)))
		return true
	})
}

func TestRunnerLimits(t *testing.T) {
	testCases := []struct {
		name       string
		opts       []RunnerOption
		reason     StopReason
		iterations int
	}{
		{name: "iterations", opts: []RunnerOption{WithIterLimit(3)}, reason: IterationLimit, iterations: 3},
		{name: "nodes", opts: []RunnerOption{WithNodeLimit(3)}, reason: NodeLimit, iterations: 2},
		{name: "classes", opts: []RunnerOption{WithClassLimit(4)}, reason: ClassLimit, iterations: 3},
		{name: "zero", opts: []RunnerOption{WithIterLimit(0)}, reason: IterationLimit, iterations: 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			g := NewEGraph(nil)
			g.AddExpr(MustParseRecExpr("(not $c1)"))
			r := NewRunner(g, tc.opts...).Run([]*Rewrite{grow()})
			require.Equal(t, tc.reason, r.StopReason)
			require.Len(t, r.Iterations, tc.iterations)
			if tc.iterations > 0 {
				require.Equal(t, []RuleCount{{Name: "grow", Count: tc.iterations}}, r.Applied())
			}
			require.Equal(t, 2+tc.iterations, g.NumClasses())
		})
	}
}

func TestPatternSearch(t *testing.T) {
	g := NewEGraph(nil)
	same := g.AddExpr(MustParseRecExpr("(= $c1 $c1)"))
	g.AddExpr(MustParseRecExpr("(= $c1 $c2)"))

	// A repeated variable must bind the same class.
	matches := MustParsePattern("(= ?x ?x)").Search(g)
	require.Len(t, matches, 1)
	require.Equal(t, g.Find(same), matches[0].Class)
	x, ok := matches[0].Subst.Get("?x")
	require.True(t, ok)
	require.Equal(t, g.Find(g.Add(NewColumn(1))), x)

	matches = MustParsePattern("(= ?x ?y)").Search(g)
	require.Len(t, matches, 2)
	require.Less(t, matches[0].Class, matches[1].Class)

	// Leaves in a pattern match exactly.
	require.Len(t, MustParsePattern("(= $c1 $c2)").Search(g), 1)
	require.Empty(t, MustParsePattern("(= $c2 ?x)").Search(g))

	require.Panics(t, func() { Subst(nil).MustGet("?x") })
}

func TestStopReasonString(t *testing.T) {
	require.Equal(t, "saturated", Saturated.String())
	require.Equal(t, "class-limit", ClassLimit.String())
	require.Equal(t, "StopReason(9)", StopReason(9).String())
}
