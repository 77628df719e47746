package opt

import (
	"math"

	"github.com/petermattis/satopt/cat"
)

// Cost estimates how expensive an expression is to execute. Costs are
// additive: the cost of an expression is the base cost of its root plus the
// cost of its children.
type Cost = float64

// MaxCost is the cost of an expression that cannot be built, such as one that
// depends on itself.
var MaxCost = Cost(math.Inf(1))

// CostModel computes the cost of a node, excluding its children. Child
// classes are canonical ids of g, whose analyses provide row estimates.
type CostModel interface {
	BaseCost(g *EGraph, n *ENode) Cost
}

// CostConfig holds the constants of the default cost model. Costs are in
// units of reading one row sequentially.
type CostConfig struct {
	SeqRowCost          Cost
	IndexRowCost        Cost
	IndexSeekCost       Cost
	CPURowCost          Cost
	SortRowCost         Cost
	HashBuildCost       Cost
	HashProbeCost       Cost
	NestedLoopCost      Cost
	MergeRowCost        Cost
	ApplyPenalty        Cost
	ScalarCost          Cost
	MissingIndexPenalty Cost
}

var DefaultCostConfig = CostConfig{
	SeqRowCost:          1,
	IndexRowCost:        1.5,
	IndexSeekCost:       4,
	CPURowCost:          0.1,
	SortRowCost:         0.1,
	HashBuildCost:       1.5,
	HashProbeCost:       1,
	NestedLoopCost:      0.05,
	MergeRowCost:        0.5,
	ApplyPenalty:        1000,
	ScalarCost:          0.01,
	MissingIndexPenalty: 100,
}

// Coster is the default cost model.
//
//   - Scan and SeqScan read every row of the table.
//   - IndexScan seeks into the index and reads only the selected rows; if the
//     table has no index on the predicate column every row is read at a
//     steep penalty.
//   - Filter, Proj and Limit spend CPU per input row.
//   - Order and TopN sort, n*log2(n); TopN only keeps the top rows.
//   - Join compares every pair of rows, HashJoin builds a hash table on the
//     right input and probes it with the left, MergeJoin walks both inputs
//     once. Apply re-evaluates its right input per left row.
//   - Scalar nodes cost ScalarCost each.
type Coster struct {
	cfg CostConfig
}

var _ CostModel = (*Coster)(nil)

func NewCoster(cfg CostConfig) *Coster {
	return &Coster{cfg: cfg}
}

func (c *Coster) rows(g *EGraph, id Id) float64 {
	return g.data(id).Rows
}

func (c *Coster) BaseCost(g *EGraph, n *ENode) Cost {
	cfg := &c.cfg
	switch n.Op {
	case ScanOp, SeqScanOp:
		return c.rows(g, n.Children[0]) * cfg.SeqRowCost

	case IndexScanOp:
		tableRows := c.rows(g, n.Children[0])
		cost := cfg.IndexSeekCost*math.Log2(tableRows+1) +
			filterRows(tableRows, g.data(n.Children[2]).Selectivity)*cfg.IndexRowCost
		if !c.hasIndex(g, n) {
			cost += tableRows * cfg.SeqRowCost * cfg.MissingIndexPenalty
		}
		return cost

	case FilterOp, ProjOp, LimitOp:
		return c.rows(g, n.Children[0]) * cfg.CPURowCost

	case HashAggOp:
		return c.rows(g, n.Children[0]) * cfg.HashBuildCost

	case OrderOp:
		rows := c.rows(g, n.Children[0])
		return rows * math.Log2(rows+1) * cfg.SortRowCost

	case TopNOp:
		rows := c.rows(g, n.Children[0])
		keep := rows
		if limit := g.data(n.Children[1]); limit.IsConst && limit.Const.Kind() == IntKind {
			keep = math.Min(rows, math.Max(float64(limit.Const.Int()), 1))
		}
		return rows * math.Log2(keep+1) * cfg.SortRowCost

	case JoinOp:
		return c.rows(g, n.Children[0]) * c.rows(g, n.Children[1]) * cfg.NestedLoopCost

	case HashJoinOp:
		return c.rows(g, n.Children[1])*cfg.HashBuildCost + c.rows(g, n.Children[0])*cfg.HashProbeCost

	case MergeJoinOp:
		return (c.rows(g, n.Children[0]) + c.rows(g, n.Children[1])) * cfg.MergeRowCost

	case ApplyOp:
		return c.rows(g, n.Children[0]) * c.rows(g, n.Children[1]) * cfg.NestedLoopCost * cfg.ApplyPenalty

	case ValuesOp:
		return float64(len(n.Children)) * cfg.CPURowCost

	case EmptyOp:
		return 0
	}
	return cfg.ScalarCost
}

// hasIndex returns true if the table of an IndexScan has an index led by a
// column its predicate constrains.
func (c *Coster) hasIndex(g *EGraph, n *ENode) bool {
	stats := g.Stats()
	table := g.data(n.Children[0])
	if stats == nil || !table.IsTable {
		return false
	}
	pred := g.data(n.Children[2])
	for i, ok := pred.Cols.NextSet(0); ok; i, ok = pred.Cols.NextSet(i + 1) {
		if stats.HasIndex(table.Table, cat.ColumnID(i)) {
			return true
		}
	}
	return false
}
