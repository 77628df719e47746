package rules

import (
	"testing"

	"github.com/petermattis/satopt/cat"
	"github.com/petermattis/satopt/opt"
	"github.com/stretchr/testify/require"
)

const (
	scanT1 = "(scan $t1 (list $c1 $c2))"
	scanT2 = "(scan $t2 (list $c3 $c4))"
	scanT3 = "(scan $t3 (list $c5))"
)

func testCatalog(t *testing.T) *cat.Catalog {
	t.Helper()
	c := cat.NewCatalog()
	t1 := &cat.Table{ID: 1, Name: "t1", RowCount: 1000}
	t1.AddColumn(&cat.Column{ID: 1, Name: "a", DistinctCount: 100})
	t1.AddColumn(&cat.Column{ID: 2, Name: "b", DistinctCount: 10})
	t1.AddKey(&cat.TableKey{Name: "primary", Primary: true, Unique: true, Columns: []cat.ColumnID{1}})
	require.NoError(t, c.AddTable(t1))

	t2 := &cat.Table{ID: 2, Name: "t2", RowCount: 100}
	t2.AddColumn(&cat.Column{ID: 3, Name: "x", DistinctCount: 100})
	t2.AddColumn(&cat.Column{ID: 4, Name: "y"})
	t2.AddKey(&cat.TableKey{Name: "primary", Primary: true, Unique: true, Columns: []cat.ColumnID{3}})
	require.NoError(t, c.AddTable(t2))

	t3 := &cat.Table{ID: 3, Name: "t3", RowCount: 10}
	t3.AddColumn(&cat.Column{ID: 5, Name: "z"})
	require.NoError(t, c.AddTable(t3))
	return c
}

type saturated struct {
	t    *testing.T
	g    *opt.EGraph
	root opt.Id
}

func saturate(t *testing.T, rules []*opt.Rewrite, src string) *saturated {
	t.Helper()
	g := opt.NewEGraph(testCatalog(t))
	root := g.AddExpr(opt.MustParseRecExpr(src))
	opt.NewRunner(g).Run(rules)
	return &saturated{t: t, g: g, root: root}
}

// has reports whether the expression is represented by the root class.
func (s *saturated) has(src string) bool {
	id := s.g.AddExpr(opt.MustParseRecExpr(src))
	s.g.Rebuild()
	return s.g.Find(id) == s.g.Find(s.root)
}

func TestExprRules(t *testing.T) {
	testCases := []struct {
		in, out string
	}{
		{in: "(not (not (= $c1 5)))", out: "(= $c1 5)"},
		{in: "(+ $c1 0)", out: "$c1"},
		{in: "(* (- $c2 0) 1)", out: "$c2"},
		{in: "(> $c1 5)", out: "(< 5 $c1)"},
		{in: "(and (= $c1 5) true)", out: "(= $c1 5)"},
		{in: "(and (= $c1 5) (= $c1 5))", out: "(= $c1 5)"},
		{in: "(or (= $c1 5) false)", out: "(= $c1 5)"},
		{in: "(not (and (= $c1 1) (= $c2 2)))", out: "(or (not (= $c1 1)) (not (= $c2 2)))"},
		{in: "(and (= $c1 1) (and (= $c2 2) (< $c1 3)))", out: "(and (and (< $c1 3) (= $c1 1)) (= $c2 2))"},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			s := saturate(t, ExprRules(), tc.in)
			require.True(t, s.has(tc.out))
		})
	}
}

func TestAlwaysBetterRules(t *testing.T) {
	testCases := []struct {
		in, out string
	}{
		{in: "(filter " + scanT1 + " true)", out: scanT1},
		{in: "(filter " + scanT1 + " false)", out: "(empty (list $c1 $c2))"},
		{in: "(filter " + scanT1 + " (= 1 2))", out: "(empty (list $c1 $c2))"},
		{in: "(filter (filter (empty (list $c1)) (= $c1 1)) (= $c1 2))", out: "(empty (list $c1))"},
		{
			in:  "(filter (filter " + scanT1 + " (= $c1 1)) (= $c2 2))",
			out: "(filter " + scanT1 + " (and (= $c1 1) (= $c2 2)))",
		},
		{
			in:  "(order (order " + scanT1 + " (list $c2)) (list $c1))",
			out: "(order " + scanT1 + " (list $c1))",
		},
		{
			in:  "(limit (order " + scanT1 + " (list $c1)) 10 0)",
			out: "(topn " + scanT1 + " 10 0 (list $c1))",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			s := saturate(t, AlwaysBetterRules(), tc.in)
			require.True(t, s.has(tc.out))
		})
	}
}

func TestSubqueryRules(t *testing.T) {
	rules := concat(AndRules(), AlwaysBetterRules(), SubqueryRules())
	s := saturate(t, rules, "(apply "+scanT1+" (filter "+scanT2+" (= $c3 $c1)) true)")
	require.True(t, s.has("(join "+scanT1+" "+scanT2+" (= $c3 $c1))"))

	// A correlated right side is never joined directly.
	require.False(t, s.has("(join "+scanT1+" (filter "+scanT2+" (= $c3 $c1)) true)"))
}

func TestPredicatePushdownRules(t *testing.T) {
	rules := concat(AndRules(), AlwaysBetterRules(), PredicatePushdownRules())

	s := saturate(t, rules, "(filter (join "+scanT1+" "+scanT2+" true) (= $c1 5))")
	require.True(t, s.has("(join (filter "+scanT1+" (= $c1 5)) "+scanT2+" true)"))

	s = saturate(t, rules, "(join "+scanT1+" "+scanT2+" (and (= $c1 $c3) (= $c4 7)))")
	require.True(t, s.has("(join "+scanT1+" (filter "+scanT2+" (= $c4 7)) (= $c1 $c3))"))
	// The join condition references both sides and stays put.
	require.False(t, s.has("(join (filter "+scanT1+" (= $c1 $c3)) "+scanT2+" (= $c4 7))"))

	s = saturate(t, rules, "(filter (hashagg "+scanT1+" (list) (list $c2)) (= $c2 3))")
	require.True(t, s.has("(hashagg (filter "+scanT1+" (= $c2 3)) (list) (list $c2))"))
}

func TestProjectionPushdownRules(t *testing.T) {
	s := saturate(t, ProjectionPushdownRules(), "(proj "+scanT1+" (list $c1))")
	require.True(t, s.has("(proj (scan $t1 (list $c1)) (list $c1))"))

	s = saturate(t, ProjectionPushdownRules(), "(proj (join "+scanT1+" "+scanT2+" (= $c1 $c3)) (list $c1))")
	require.True(t, s.has("(proj (join (proj "+scanT1+" (list $c1)) (proj "+scanT2+" (list $c3)) (= $c1 $c3)) (list $c1))"))

	s = saturate(t, ProjectionPushdownRules(), "(proj (filter "+scanT1+" (= $c2 1)) (list $c1))")
	require.False(t, s.has("(proj (filter (scan $t1 (list $c1)) (= $c2 1)) (list $c1))"))
}

func TestIndexScanRules(t *testing.T) {
	testCases := []struct {
		pred     string
		expected bool
	}{
		{pred: "(= $c1 5)", expected: true},
		{pred: "(= 5 $c1)", expected: true},
		{pred: "(and (= $c2 1) (= $c1 5))", expected: true},
		{pred: "(= $c2 5)", expected: false},
		{pred: "(= $c1 $c2)", expected: false},
		{pred: "(< $c1 5)", expected: true},
		{pred: "(> 5 $c1)", expected: true},
		{pred: "(< $c2 5)", expected: false},
	}
	rules := IndexScanRules(Config{EnableRangeFilterScan: true})
	for _, tc := range testCases {
		t.Run(tc.pred, func(t *testing.T) {
			s := saturate(t, rules, "(filter "+scanT1+" "+tc.pred+")")
			require.Equal(t, tc.expected, s.has("(indexscan $t1 (list $c1 $c2) "+tc.pred+")"))
		})
	}

	require.Empty(t, IndexScanRules(Config{}))
}

func TestJoinReorderRules(t *testing.T) {
	s := saturate(t, JoinReorderRules(),
		"(join (join "+scanT1+" "+scanT2+" (= $c1 $c3)) "+scanT3+" (= $c3 $c5))")
	require.True(t, s.has("(join "+scanT1+" (join "+scanT2+" "+scanT3+" (= $c3 $c5)) (= $c1 $c3))"))
	require.True(t, s.has("(join (join "+scanT2+" "+scanT1+" (= $c1 $c3)) "+scanT3+" (= $c3 $c5))"))

	s = saturate(t, JoinReorderRules(),
		"(join (join "+scanT1+" "+scanT2+" (= $c1 $c3)) "+scanT3+" (= $c1 $c5))")
	require.False(t, s.has("(join "+scanT1+" (join "+scanT2+" "+scanT3+" (= $c1 $c5)) (= $c1 $c3))"))
}

func TestHashJoinRules(t *testing.T) {
	s := saturate(t, HashJoinRules(), "(join "+scanT1+" "+scanT2+" (= $c3 $c1))")
	require.True(t, s.has("(hashjoin "+scanT1+" "+scanT2+" (= $c1 $c3))"))

	s = saturate(t, HashJoinRules(), "(join "+scanT1+" "+scanT2+" (and (= $c1 $c3) (< $c2 5)))")
	require.True(t, s.has("(filter (hashjoin "+scanT1+" "+scanT2+" (= $c1 $c3)) (< $c2 5))"))

	// Both sides of the equality come from the left input.
	s = saturate(t, HashJoinRules(), "(join "+scanT1+" "+scanT2+" (= $c1 $c2))")
	require.False(t, s.has("(hashjoin "+scanT1+" "+scanT2+" (= $c1 $c2))"))
}

func TestOrderRules(t *testing.T) {
	sorted := OrderRules(Config{TableIsSortedByPrimaryKey: true})
	s := saturate(t, sorted, "(join "+scanT1+" "+scanT2+" (= $c1 $c3))")
	require.True(t, s.has("(mergejoin "+scanT1+" "+scanT2+" (= $c1 $c3))"))

	s = saturate(t, sorted, "(order "+scanT1+" (list $c1))")
	require.True(t, s.has(scanT1))
	s = saturate(t, sorted, "(order "+scanT1+" (list $c2))")
	require.False(t, s.has(scanT1))

	unsorted := OrderRules(Config{})
	s = saturate(t, unsorted, "(order "+scanT1+" (list $c1))")
	require.False(t, s.has(scanT1))
	s = saturate(t, unsorted, "(join "+scanT1+" "+scanT2+" (= $c1 $c3))")
	require.True(t, s.has("(mergejoin (order "+scanT1+" (list $c1)) (order "+scanT2+" (list $c3)) (= $c1 $c3))"))
}

func names(rules []*opt.Rewrite) []string {
	var res []string
	for _, rw := range rules {
		res = append(res, rw.Name)
	}
	return res
}

func TestStages(t *testing.T) {
	stages := Stages(Config{})
	require.Len(t, stages, 3)

	expected := []struct {
		name      string
		rounds    int
		iterLimit int
	}{
		{"1", 2, 6},
		{"2", 4, 6},
		{"3", 3, 8},
	}
	for i, e := range expected {
		require.Equal(t, e.name, stages[i].Name)
		require.Equal(t, e.rounds, stages[i].Rounds)
		require.Equal(t, e.iterLimit, stages[i].IterLimit)
		require.NotEmpty(t, stages[i].Rules)
	}

	require.Contains(t, names(stages[0].Rules), "apply-to-join")
	require.NotContains(t, names(stages[0].Rules), "join-comm")
	require.NotContains(t, names(stages[1].Rules), "filter-scan-to-index")
	require.Contains(t, names(stages[2].Rules), "hash-join")
	require.NotContains(t, names(stages[2].Rules), "scan-order-elim")

	stages = Stages(Config{TableIsSortedByPrimaryKey: true, EnableRangeFilterScan: true})
	require.Contains(t, names(stages[1].Rules), "filter-scan-to-index")
	require.Contains(t, names(stages[2].Rules), "scan-order-elim")
}
