package xform

import (
	"math"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/petermattis/satopt/cat"
	"github.com/petermattis/satopt/opt"
	"github.com/petermattis/satopt/rules"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func testCatalog(t *testing.T) *cat.Catalog {
	t.Helper()
	c := cat.NewCatalog()
	t1 := &cat.Table{ID: 1, Name: "t1", RowCount: 1000}
	t1.AddColumn(&cat.Column{ID: 1, Name: "a", DistinctCount: 100})
	t1.AddColumn(&cat.Column{ID: 2, Name: "b", DistinctCount: 10})
	t1.AddKey(&cat.TableKey{Name: "primary", Primary: true, Unique: true, Columns: []cat.ColumnID{1}})
	require.NoError(t, c.AddTable(t1))

	t2 := &cat.Table{ID: 2, Name: "t2", RowCount: 50}
	t2.AddColumn(&cat.Column{ID: 3, Name: "x", DistinctCount: 50})
	t2.AddColumn(&cat.Column{ID: 4, Name: "y"})
	t2.AddKey(&cat.TableKey{Name: "primary", Primary: true, Unique: true, Columns: []cat.ColumnID{3}})
	require.NoError(t, c.AddTable(t2))
	return c
}

const (
	indexQuery = "(filter (scan $t1 (list $c1 $c2)) (= $c1 5))"
	joinQuery  = "(filter (join (scan $t1 (list $c1 $c2)) (scan $t2 (list $c3 $c4)) (= $c1 $c3)) (= $c2 5))"
	applyQuery = "(apply (scan $t1 (list $c1 $c2)) (filter (scan $t2 (list $c3 $c4)) (= $c3 $c1)) true)"
)

func TestOptimizeIndexScan(t *testing.T) {
	input := opt.MustParseRecExpr(indexQuery)
	o := New(testCatalog(t), rules.Config{EnableRangeFilterScan: true}, WithLogger(zaptest.NewLogger(t)))
	inputCosts, err := o.Costs(input)
	require.NoError(t, err)
	inputCost := inputCosts[len(inputCosts)-1]

	res, err := o.OptimizeWithStats(input)
	require.NoError(t, err)
	require.Equal(t, "(indexscan $t1 (list $c1 $c2) (= $c1 5))", res.Expr.String())
	require.InDelta(t, 4*math.Log2(1001)+10*1.5+0.07, res.Cost, 1e-6)

	require.Len(t, res.Costs, res.Expr.Len())
	require.Len(t, res.Rows, res.Expr.Len())
	require.Equal(t, res.Cost, res.Costs[len(res.Costs)-1])
	require.InDelta(t, 10, res.Rows[len(res.Rows)-1], 1e-9)

	require.Len(t, res.Stages, 3)
	require.Equal(t, "2", res.Stages[1].Name)
	require.Contains(t, res.Stages[1].Expr.String(), "indexscan")
	require.Less(t, res.Stages[1].Cost, inputCost)
	require.Equal(t, res.Expr, res.Stages[2].Expr)
}

func TestOptimizeIndexScanDisabled(t *testing.T) {
	input := opt.MustParseRecExpr(indexQuery)
	o := New(testCatalog(t), rules.Config{})
	inputCosts, err := o.Costs(input)
	require.NoError(t, err)

	res, err := o.OptimizeWithStats(input)
	require.NoError(t, err)
	for _, s := range res.Stages {
		require.NotContains(t, s.Expr.String(), "indexscan")
	}
	require.Contains(t, res.Expr.String(), "(filter (scan $t1 (list $c1 $c2)) ")
	require.InDelta(t, inputCosts[len(inputCosts)-1], res.Cost, 1e-9)
}

func TestOptimizeMonotonic(t *testing.T) {
	for _, q := range []string{indexQuery, joinQuery, applyQuery} {
		t.Run(q, func(t *testing.T) {
			var costs []opt.Cost
			obs := ObserverFunc(func(rec Record) error {
				costs = append(costs, rec.Cost)
				if rec.Accepted {
					require.Equal(t, rec.Cost, rec.Extracted)
				} else {
					require.Greater(t, rec.Extracted, rec.Cost)
				}
				return nil
			})
			o := New(testCatalog(t), rules.Config{EnableRangeFilterScan: true}, WithObserver(obs))
			res, err := o.OptimizeWithStats(opt.MustParseRecExpr(q))
			require.NoError(t, err)

			// One record for the input and one per round.
			require.Len(t, costs, 1+2+4+3)
			for i := 1; i < len(costs); i++ {
				require.LessOrEqual(t, costs[i], costs[i-1])
			}
			require.Equal(t, costs[len(costs)-1], res.Cost)

			prev := costs[0]
			for _, s := range res.Stages {
				require.LessOrEqual(t, s.Cost, prev)
				prev = s.Cost
			}
		})
	}
}

func TestOptimizeDecorrelates(t *testing.T) {
	o := New(testCatalog(t), rules.Config{})
	res, err := o.OptimizeWithStats(opt.MustParseRecExpr(applyQuery))
	require.NoError(t, err)
	require.NotContains(t, res.Expr.String(), "apply")
	require.NotContains(t, res.Stages[0].Expr.String(), "apply")
}

func TestOptimizeDeterministic(t *testing.T) {
	o := New(testCatalog(t), rules.Config{TableIsSortedByPrimaryKey: true})
	first, err := o.OptimizeWithStats(opt.MustParseRecExpr(joinQuery))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		res, err := o.OptimizeWithStats(opt.MustParseRecExpr(joinQuery))
		require.NoError(t, err)
		require.Equal(t, first.Expr.String(), res.Expr.String())
		require.Equal(t, first.Cost, res.Cost)
	}
}

func TestOptimizeMalformed(t *testing.T) {
	o := New(testCatalog(t), rules.Config{})

	_, err := o.Optimize(&opt.RecExpr{})
	require.ErrorContains(t, err, "empty expression")
	require.True(t, errors.HasAssertionFailure(err))

	_, err = o.Optimize(nil)
	require.Error(t, err)

	_, err = o.Costs(&opt.RecExpr{})
	require.Error(t, err)
	_, err = o.Rows(&opt.RecExpr{})
	require.Error(t, err)
}

func TestOptimizeLimits(t *testing.T) {
	o := New(testCatalog(t), rules.Config{}, WithClassLimit(1))
	res, err := o.OptimizeWithStats(opt.MustParseRecExpr(indexQuery))
	require.NoError(t, err)
	require.Equal(t, indexQuery, res.Expr.String())
	for _, s := range res.Stages {
		require.Equal(t, opt.ClassLimit, s.StopReason)
	}

	o = New(testCatalog(t), rules.Config{}, WithStageLimits("2", 1, 3), WithStageLimits("9", 5, 5))
	require.Equal(t, 1, o.Stages()[1].Rounds)
	require.Equal(t, 3, o.Stages()[1].IterLimit)
	require.Equal(t, 2, o.Stages()[0].Rounds)
}

func TestObserverErrorsAreLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	var records []Record
	obs := ObserverFunc(func(rec Record) error {
		records = append(records, rec)
		return errors.New("sink unavailable")
	})
	o := New(testCatalog(t), rules.Config{}, WithObserver(obs), WithLogger(zap.New(core)))
	_, err := o.Optimize(opt.MustParseRecExpr(joinQuery))
	require.NoError(t, err)

	require.Len(t, records, 10)
	require.Equal(t, 10, logs.FilterMessage("observer failed").Len())

	input := records[0]
	require.Equal(t, "0", input.Stage)
	require.Equal(t, 0, input.Round)
	require.Equal(t, opt.NotStopped, input.StopReason)
	require.Equal(t, 4, input.Relational)
	require.Equal(t, 0, input.MergeCount)
	require.Equal(t, 1, input.MinNodes)
	require.Equal(t, 1, input.MaxNodes)

	last := records[len(records)-1]
	require.Equal(t, "3", last.Stage)
	require.Equal(t, 3, last.Round)
	require.NotZero(t, last.Iterations)
	require.GreaterOrEqual(t, last.MaxNodes, last.MinNodes)
}

func TestCostsAndRows(t *testing.T) {
	o := New(testCatalog(t), rules.Config{})
	e := opt.MustParseRecExpr(joinQuery)
	costs, err := o.Costs(e)
	require.NoError(t, err)
	rows, err := o.Rows(e)
	require.NoError(t, err)
	require.Len(t, costs, e.Len())
	require.Len(t, rows, e.Len())

	// Leaves cost a single scalar and subtree costs never decrease towards
	// the root.
	require.Equal(t, opt.DefaultCostConfig.ScalarCost, costs[0])
	for i, n := range e.Nodes() {
		for _, c := range n.Children {
			require.LessOrEqual(t, costs[c], costs[i])
		}
	}
	require.Equal(t, 1000.0, rows[0])
}
