package opt

import (
	"fmt"
	"math"
	"strings"

	"github.com/bits-and-blooms/bitset"
	"github.com/petermattis/satopt/cat"
)

const (
	// DefaultRows replaces a row count that is unknown or not a finite,
	// non-negative number.
	DefaultRows = 1000

	defaultEqSelectivity    = 0.1
	defaultRangeSelectivity = 1.0 / 3
)

// Analysis summarizes the expressions of a class. It is computed when a node
// is added and merged when classes are unioned. Every field merges in a way
// that is idempotent, commutative and associative, so the result does not
// depend on the order of unions.
type Analysis struct {
	// Rows is the estimated number of rows produced by a relational class.
	// Merged by taking the minimum.
	Rows float64

	// Selectivity is the estimated fraction of rows a scalar class passes when
	// used as a predicate. Merged by taking the minimum.
	Selectivity float64

	// Cols holds the output columns of a relational class, or the columns
	// referenced by a scalar class. Merged by intersection.
	Cols *bitset.BitSet

	// Outer holds the columns a relational class references but does not
	// produce itself. A non-empty set marks a correlated subquery. Merged by
	// intersection.
	Outer *bitset.BitSet

	// Const is the value of a class that always evaluates to a constant. If
	// both sides of a merge are constant, the smaller datum is kept.
	Const   Datum
	IsConst bool

	// Column and Table identify leaf classes.
	Column   cat.ColumnID
	IsColumn bool
	Table    cat.TableID
	IsTable  bool
}

func (a *Analysis) String() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "rows=%g sel=%g cols=%s", a.Rows, a.Selectivity, formatSet(a.Cols))
	if a.Outer.Any() {
		fmt.Fprintf(&buf, " outer=%s", formatSet(a.Outer))
	}
	if a.IsConst {
		fmt.Fprintf(&buf, " const=%s", a.Const)
	}
	return buf.String()
}

func formatSet(s *bitset.BitSet) string {
	var buf strings.Builder
	buf.WriteString("(")
	for i, ok := s.NextSet(0); ok; i, ok = s.NextSet(i + 1) {
		if buf.Len() > 1 {
			buf.WriteString(",")
		}
		fmt.Fprintf(&buf, "%d", i)
	}
	buf.WriteString(")")
	return buf.String()
}

func newSet(cols ...uint) *bitset.BitSet {
	s := bitset.New(0)
	for _, c := range cols {
		s.Set(c)
	}
	return s
}

func clampRows(r float64) float64 {
	if math.IsNaN(r) || math.IsInf(r, 0) || r < 0 {
		return DefaultRows
	}
	return r
}

func clampSelectivity(s float64) float64 {
	switch {
	case math.IsNaN(s):
		return 1
	case s < 0:
		return 0
	case s > 1:
		return 1
	}
	return s
}

// filterRows applies a selectivity to an input row count. A non-empty input
// never produces less than one row.
func filterRows(rows, sel float64) float64 {
	if rows <= 0 {
		return 0
	}
	return math.Max(rows*sel, 1)
}

func (g *EGraph) data(id Id) *Analysis {
	return &g.classes[g.Find(id)].Data
}

// makeAnalysis computes the analysis of a canonical node from the analyses of
// its children.
func (g *EGraph) makeAnalysis(n *ENode) Analysis {
	a := Analysis{Rows: 1, Selectivity: 1}
	switch n.Op {
	case ConstantOp:
		d, _ := n.Datum()
		a.Const, a.IsConst = d, true
		a.Cols = newSet()
		a.Selectivity = constSelectivity(d)

	case ColumnOp:
		id, _ := n.ColumnID()
		a.Column, a.IsColumn = id, true
		a.Cols = newSet(uint(id))

	case TableOp:
		id, _ := n.TableID()
		a.Table, a.IsTable = id, true
		a.Cols = newSet()
		a.Rows = DefaultRows
		if g.stats != nil {
			if rows, ok := g.stats.TableRowCount(id); ok {
				a.Rows = rows
			}
		}

	case ScanOp, SeqScanOp:
		a.Rows = g.data(n.Children[0]).Rows
		a.Cols = g.data(n.Children[1]).Cols

	case IndexScanOp:
		pred := g.data(n.Children[2])
		a.Rows = filterRows(g.data(n.Children[0]).Rows, pred.Selectivity)
		a.Cols = g.data(n.Children[1]).Cols

	case FilterOp:
		input, pred := g.data(n.Children[0]), g.data(n.Children[1])
		a.Rows = filterRows(input.Rows, pred.Selectivity)
		a.Cols = input.Cols
		a.Outer = outerCols(input.Cols, input.Outer, pred.Cols)

	case ProjOp:
		input, exprs := g.data(n.Children[0]), g.data(n.Children[1])
		a.Rows = input.Rows
		a.Cols = exprs.Cols
		a.Outer = outerCols(input.Cols, input.Outer, exprs.Cols)

	case HashAggOp:
		input, aggs, groupBy := g.data(n.Children[0]), g.data(n.Children[1]), g.data(n.Children[2])
		a.Rows = g.groupRows(input.Rows, groupBy.Cols)
		a.Cols = aggs.Cols.Union(groupBy.Cols)
		a.Outer = outerCols(input.Cols, input.Outer, a.Cols)

	case OrderOp:
		input, keys := g.data(n.Children[0]), g.data(n.Children[1])
		a.Rows = input.Rows
		a.Cols = input.Cols
		a.Outer = outerCols(input.Cols, input.Outer, keys.Cols)

	case LimitOp, TopNOp:
		input := g.data(n.Children[0])
		a.Rows = input.Rows
		if limit := g.data(n.Children[1]); limit.IsConst && limit.Const.Kind() == IntKind {
			a.Rows = math.Min(a.Rows, math.Max(float64(limit.Const.Int()), 0))
		}
		a.Cols = input.Cols
		used := newSet()
		for _, c := range n.Children[1:] {
			used.InPlaceUnion(g.data(c).Cols)
		}
		a.Outer = outerCols(input.Cols, input.Outer, used)

	case JoinOp, HashJoinOp, MergeJoinOp, ApplyOp:
		left, right, cond := g.data(n.Children[0]), g.data(n.Children[1]), g.data(n.Children[2])
		a.Rows = filterRows(left.Rows*right.Rows, cond.Selectivity)
		a.Cols = left.Cols.Union(right.Cols)
		a.Outer = outerCols(a.Cols, left.Outer.Union(right.Outer), cond.Cols)

	case ValuesOp:
		a.Rows = float64(len(n.Children))
		a.Cols = newSet()
		for _, c := range n.Children {
			a.Cols.InPlaceUnion(g.data(c).Cols)
		}

	case EmptyOp:
		a.Rows = 0
		a.Cols = g.data(n.Children[0]).Cols

	default:
		a.Cols = newSet()
		for _, c := range n.Children {
			a.Cols.InPlaceUnion(g.data(c).Cols)
		}
		if d, ok := g.foldConstant(n); ok {
			a.Const, a.IsConst = d, true
			a.Selectivity = constSelectivity(d)
		} else {
			a.Selectivity = g.selectivity(n)
		}
	}

	if a.Outer == nil {
		a.Outer = newSet()
	}
	a.Rows = clampRows(a.Rows)
	a.Selectivity = clampSelectivity(a.Selectivity)
	return a
}

// outerCols returns the columns in outer or used that are not in bound.
func outerCols(bound, outer, used *bitset.BitSet) *bitset.BitSet {
	res := outer.Union(used)
	res.InPlaceDifference(bound)
	return res
}

// groupRows estimates the number of groups produced by grouping rows on the
// given columns.
func (g *EGraph) groupRows(rows float64, groupBy *bitset.BitSet) float64 {
	if !groupBy.Any() {
		return math.Min(rows, 1)
	}
	groups := 1.0
	for i, ok := groupBy.NextSet(0); ok; i, ok = groupBy.NextSet(i + 1) {
		distinct, known := g.distinctCount(cat.ColumnID(i))
		if !known {
			return rows
		}
		groups *= distinct
	}
	return math.Min(rows, groups)
}

func (g *EGraph) distinctCount(col cat.ColumnID) (float64, bool) {
	if g.stats == nil {
		return 0, false
	}
	d, ok := g.stats.ColumnDistinctCount(col)
	if !ok || d <= 0 {
		return 0, false
	}
	return d, true
}

func constSelectivity(d Datum) float64 {
	switch d.Kind() {
	case NullKind:
		return 0
	case BoolKind:
		if d.Bool() {
			return 1
		}
		return 0
	}
	return 1
}

// selectivity estimates the fraction of rows passed by a predicate.
func (g *EGraph) selectivity(n *ENode) float64 {
	switch n.Op {
	case EqOp:
		l, r := g.data(n.Children[0]), g.data(n.Children[1])
		if l.IsConst && r.IsColumn {
			l, r = r, l
		}
		switch {
		case l.IsColumn && r.IsConst:
			if h := g.histogram(l.Column); h != nil && r.Const.Kind() == IntKind {
				return h.Selectivity(h.FilterEq([]int64{r.Const.Int()}))
			}
			if d, ok := g.distinctCount(l.Column); ok {
				return 1 / d
			}
		case l.IsColumn && r.IsColumn:
			dl, okl := g.distinctCount(l.Column)
			dr, okr := g.distinctCount(r.Column)
			switch {
			case okl && okr:
				return 1 / math.Max(dl, dr)
			case okl:
				return 1 / dl
			case okr:
				return 1 / dr
			}
		}
		return defaultEqSelectivity

	case LtOp, GtOp:
		l, r := g.data(n.Children[0]), g.data(n.Children[1])
		less := n.Op == LtOp
		if l.IsConst && r.IsColumn {
			l, r = r, l
			less = !less
		}
		if l.IsColumn && r.IsConst && r.Const.Kind() == IntKind {
			if h := g.histogram(l.Column); h != nil {
				if less {
					return h.Selectivity(h.FilterLt(r.Const.Int(), false))
				}
				return h.Selectivity(h.FilterGt(r.Const.Int(), false))
			}
		}
		return defaultRangeSelectivity

	case AndOp:
		return g.data(n.Children[0]).Selectivity * g.data(n.Children[1]).Selectivity

	case OrOp:
		a, b := g.data(n.Children[0]).Selectivity, g.data(n.Children[1]).Selectivity
		return a + b - a*b

	case NotOp:
		return 1 - g.data(n.Children[0]).Selectivity
	}
	return 1
}

func (g *EGraph) histogram(col cat.ColumnID) *cat.Histogram {
	if g.stats == nil {
		return nil
	}
	if h := g.stats.ColumnHistogram(col); h != nil && len(h.Buckets) > 0 && h.RowCount > 0 {
		return h
	}
	return nil
}

// foldConstant evaluates a scalar node whose children are all constant.
func (g *EGraph) foldConstant(n *ENode) (Datum, bool) {
	switch n.Op {
	case AddOp, SubOp, MulOp, DivOp, GtOp, LtOp, EqOp, AndOp, OrOp:
	case NotOp:
		c := g.data(n.Children[0])
		if c.IsConst && c.Const.Kind() == BoolKind {
			return DBool(!c.Const.Bool()), true
		}
		return Datum{}, false
	default:
		return Datum{}, false
	}

	l, r := g.data(n.Children[0]), g.data(n.Children[1])

	// AND and OR fold with a single constant operand when it decides the
	// result.
	switch n.Op {
	case AndOp:
		if (l.IsConst && l.Const == DFalse) || (r.IsConst && r.Const == DFalse) {
			return DFalse, true
		}
	case OrOp:
		if (l.IsConst && l.Const == DTrue) || (r.IsConst && r.Const == DTrue) {
			return DTrue, true
		}
	}

	if !l.IsConst || !r.IsConst {
		return Datum{}, false
	}
	a, b := l.Const, r.Const

	switch n.Op {
	case AndOp, OrOp:
		if a.Kind() != BoolKind || b.Kind() != BoolKind {
			return Datum{}, false
		}
		if n.Op == AndOp {
			return DBool(a.Bool() && b.Bool()), true
		}
		return DBool(a.Bool() || b.Bool()), true

	case EqOp, LtOp, GtOp:
		if a.Kind() != b.Kind() || a.IsNull() {
			return Datum{}, false
		}
		c := a.Compare(b)
		switch n.Op {
		case EqOp:
			return DBool(c == 0), true
		case LtOp:
			return DBool(c < 0), true
		}
		return DBool(c > 0), true
	}

	if a.Kind() != IntKind || b.Kind() != IntKind {
		return Datum{}, false
	}
	switch n.Op {
	case AddOp:
		return DInt(a.Int() + b.Int()), true
	case SubOp:
		return DInt(a.Int() - b.Int()), true
	case MulOp:
		return DInt(a.Int() * b.Int()), true
	}
	if b.Int() == 0 {
		return Datum{}, false
	}
	return DInt(a.Int() / b.Int()), true
}

// mergeAnalysis combines the analyses of two classes being unioned. It also
// reports whether the result differs from a and from b.
func mergeAnalysis(a, b *Analysis) (res Analysis, changedA, changedB bool) {
	res = *a

	switch {
	case b.Rows < a.Rows:
		res.Rows, changedA = b.Rows, true
	case a.Rows < b.Rows:
		changedB = true
	}

	switch {
	case b.Selectivity < a.Selectivity:
		res.Selectivity, changedA = b.Selectivity, true
	case a.Selectivity < b.Selectivity:
		changedB = true
	}

	res.Cols = a.Cols.Intersection(b.Cols)
	changedA = changedA || res.Cols.Count() != a.Cols.Count()
	changedB = changedB || res.Cols.Count() != b.Cols.Count()

	res.Outer = a.Outer.Intersection(b.Outer)
	changedA = changedA || res.Outer.Count() != a.Outer.Count()
	changedB = changedB || res.Outer.Count() != b.Outer.Count()

	switch {
	case a.IsConst && b.IsConst:
		if b.Const.Compare(a.Const) < 0 {
			res.Const, changedA = b.Const, true
		} else if a.Const != b.Const {
			changedB = true
		}
	case b.IsConst:
		res.Const, res.IsConst, changedA = b.Const, true, true
	case a.IsConst:
		changedB = true
	}

	switch {
	case a.IsColumn && b.IsColumn:
		if b.Column < a.Column {
			res.Column, changedA = b.Column, true
		} else if a.Column != b.Column {
			changedB = true
		}
	case b.IsColumn:
		res.Column, res.IsColumn, changedA = b.Column, true, true
	case a.IsColumn:
		changedB = true
	}

	switch {
	case a.IsTable && b.IsTable:
		if b.Table < a.Table {
			res.Table, changedA = b.Table, true
		} else if a.Table != b.Table {
			changedB = true
		}
	case b.IsTable:
		res.Table, res.IsTable, changedA = b.Table, true, true
	case a.IsTable:
		changedB = true
	}

	return res, changedA, changedB
}
