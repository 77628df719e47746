package opt

import (
	"github.com/bits-and-blooms/bitset"
	"github.com/cockroachdb/errors"
)

type bestNode struct {
	cost Cost
	// index of the cheapest member in the class's node list, or -1 if no
	// member has a finite cost.
	index int
}

// Extractor picks the cheapest expression represented by a class. The
// e-graph must be rebuilt and must not change while the extractor is in use.
//
// The cost of a class is the minimum over its members of the member's base
// cost plus the cost of its children. On a tie the member that comes first in
// the class's sorted node list wins. A class reached again while its own cost
// is being computed costs MaxCost, so members that depend on their own class
// are never chosen.
type Extractor struct {
	g     *EGraph
	model CostModel

	best       map[Id]bestNode
	done       *bitset.BitSet
	inProgress *bitset.BitSet
}

func NewExtractor(g *EGraph, model CostModel) *Extractor {
	return &Extractor{
		g:          g,
		model:      model,
		best:       make(map[Id]bestNode),
		done:       bitset.New(uint(len(g.unionFind))),
		inProgress: bitset.New(uint(len(g.unionFind))),
	}
}

// ClassCost returns the cost of the cheapest expression of the class, or
// MaxCost if it has none.
func (e *Extractor) ClassCost(id Id) Cost {
	id = e.g.Find(id)
	if e.done.Test(uint(id)) {
		return e.best[id].cost
	}
	if e.inProgress.Test(uint(id)) {
		return MaxCost
	}
	e.inProgress.Set(uint(id))

	best := bestNode{cost: MaxCost, index: -1}
	cls := e.g.classes[id]
	for i := range cls.Nodes {
		n := &cls.Nodes[i]
		cost := e.model.BaseCost(e.g, n)
		for _, c := range n.Children {
			if cost >= best.cost {
				break
			}
			cost += e.ClassCost(c)
		}
		if cost < best.cost {
			best = bestNode{cost: cost, index: i}
		}
	}

	e.inProgress.Clear(uint(id))
	e.done.Set(uint(id))
	e.best[id] = best
	return best.cost
}

// FindBest returns the cost and the cheapest expression of the class. The
// expression is a tree: a class used twice is written out twice.
func (e *Extractor) FindBest(root Id) (Cost, *RecExpr, error) {
	e.ClassCost(root)
	e.relax()

	root = e.g.Find(root)
	cost := e.best[root].cost
	if cost == MaxCost {
		return MaxCost, nil, errors.AssertionFailedf("class %d has no finite-cost member", root)
	}
	expr := &RecExpr{}
	e.inProgress.ClearAll()
	if _, err := e.build(expr, root); err != nil {
		return MaxCost, nil, err
	}
	return cost, expr, nil
}

// relax lowers class costs that were cut off by a cycle through a class that
// was in progress at the time but has a finite cost now. Costs only ever
// decrease, and a member is only chosen if it is strictly cheaper, so the
// pass count is bounded.
func (e *Extractor) relax() {
	classes := e.g.Classes()
	for pass := 0; pass <= len(classes); pass++ {
		changed := false
		for _, cls := range classes {
			cur, ok := e.best[cls.ID]
			if !ok {
				continue
			}
			for i := range cls.Nodes {
				n := &cls.Nodes[i]
				cost := e.model.BaseCost(e.g, n)
				for _, c := range n.Children {
					if cost >= cur.cost {
						break
					}
					cost += e.ClassCost(c)
				}
				if cost < cur.cost {
					cur = bestNode{cost: cost, index: i}
					changed = true
				}
			}
			e.best[cls.ID] = cur
		}
		if !changed {
			return
		}
	}
}

func (e *Extractor) build(expr *RecExpr, id Id) (Id, error) {
	id = e.g.Find(id)
	best, ok := e.best[id]
	if !ok || best.index < 0 {
		return 0, errors.AssertionFailedf("class %d was not costed", id)
	}
	if e.inProgress.Test(uint(id)) {
		return 0, errors.AssertionFailedf("class %d depends on itself", id)
	}
	e.inProgress.Set(uint(id))
	defer e.inProgress.Clear(uint(id))

	n := &e.g.classes[id].Nodes[best.index]
	res := ENode{Op: n.Op, Private: n.Private}
	if len(n.Children) > 0 {
		res.Children = make([]Id, len(n.Children))
		for i, c := range n.Children {
			child, err := e.build(expr, c)
			if err != nil {
				return 0, err
			}
			res.Children[i] = child
		}
	}
	return expr.Add(res), nil
}
