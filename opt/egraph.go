package opt

import (
	"encoding/binary"
	"fmt"
	"io"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/dgryski/go-farm"
	"github.com/petermattis/satopt/cat"
)

// EGraph stores a set of expressions compactly as equivalence classes of
// nodes whose children are classes rather than nodes.
//
// Two invariants hold after Rebuild: no two classes contain the same
// canonical node (hash-consing), and nodes with the same operator, private
// and child classes belong to the same class (congruence). Union may break
// congruence until the next Rebuild, so rules must not be matched and
// expressions must not be extracted in between.
//
// An EGraph is not safe for concurrent use.
type EGraph struct {
	stats cat.Stats

	unionFind unionFind

	// classes is indexed by id. Only canonical ids have a non-nil entry.
	classes []*EClass

	// memo maps canonical nodes to the class that holds them.
	memo hashCons

	// pending holds parents of merged classes that must be re-canonicalized.
	pending []parent

	// analysisPending holds parents whose analysis must be recomputed because
	// a child's analysis changed.
	analysisPending []parent

	numClasses int
	mergeCount int
	nodesAdded int

	scratch []byte
}

// NewEGraph creates an empty e-graph whose analysis consults stats. stats may
// be nil, in which case defaults are used.
func NewEGraph(stats cat.Stats) *EGraph {
	return &EGraph{
		stats: stats,
		memo:  hashCons{buckets: make(map[uint64][]memoEntry)},
	}
}

// Stats returns the statistics source given to NewEGraph.
func (g *EGraph) Stats() cat.Stats {
	return g.stats
}

// Find returns the canonical id of the class containing id.
func (g *EGraph) Find(id Id) Id {
	if int(id) >= len(g.unionFind) {
		panic(errors.AssertionFailedf("unknown class %d", id))
	}
	return g.unionFind.find(id)
}

func (g *EGraph) canonicalize(n *ENode) ENode {
	return n.MapChildren(g.Find)
}

// Add inserts a node whose children are ids of this e-graph and returns the
// id of its class. Adding a node that is already present returns the existing
// class.
func (g *EGraph) Add(n ENode) Id {
	n = g.canonicalize(&n)
	if id, ok := g.memo.get(g, &n); ok {
		return g.Find(id)
	}

	id := g.unionFind.makeSet()
	cls := &EClass{ID: id, Nodes: []ENode{n}, Data: g.makeAnalysis(&n)}
	g.classes = append(g.classes, cls)
	for _, c := range n.Children {
		child := g.classes[c]
		child.parents = append(child.parents, parent{node: n, id: id})
	}
	g.memo.insert(g, n, id)
	g.numClasses++
	g.nodesAdded++

	g.modify(id)
	return g.Find(id)
}

// AddExpr inserts every node of the expression and returns the class of its
// root.
func (g *EGraph) AddExpr(e *RecExpr) Id {
	ids := g.AddExprIDs(e)
	return ids[len(ids)-1]
}

// AddExprIDs inserts every node of the expression and returns, for each
// position in the expression, the class the node was added to.
func (g *EGraph) AddExprIDs(e *RecExpr) []Id {
	ids := make([]Id, e.Len())
	for i := range e.nodes {
		n := &e.nodes[i]
		ids[i] = g.Add(n.MapChildren(func(c Id) Id { return ids[c] }))
	}
	return ids
}

// Union merges the classes of a and b. It returns false if they were already
// the same class.
func (g *EGraph) Union(a, b Id) bool {
	a, b = g.Find(a), g.Find(b)
	if a == b {
		return false
	}

	ca, cb := g.classes[a], g.classes[b]
	if sa, sb := ca.size(), cb.size(); sb > sa || (sb == sa && b < a) {
		a, b = b, a
		ca, cb = cb, ca
	}

	g.unionFind[b] = a
	g.numClasses--
	g.mergeCount++

	g.pending = append(g.pending, cb.parents...)

	merged, changedA, changedB := mergeAnalysis(&ca.Data, &cb.Data)
	if changedA {
		g.analysisPending = append(g.analysisPending, ca.parents...)
	}
	if changedB {
		g.analysisPending = append(g.analysisPending, cb.parents...)
	}
	ca.Data = merged
	ca.Nodes = append(ca.Nodes, cb.Nodes...)
	ca.parents = append(ca.parents, cb.parents...)
	g.classes[b] = nil

	g.modify(a)
	return true
}

// Rebuild restores the hash-cons and congruence invariants and returns the
// number of unions it performed.
func (g *EGraph) Rebuild() int {
	unions := 0
	for {
		for len(g.pending) > 0 || len(g.analysisPending) > 0 {
			for len(g.pending) > 0 {
				p := g.pending[len(g.pending)-1]
				g.pending = g.pending[:len(g.pending)-1]

				n := g.canonicalize(&p.node)
				if old, ok := g.memo.insert(g, n, p.id); ok {
					if g.Union(old, p.id) {
						unions++
					}
				}
			}

			for len(g.analysisPending) > 0 {
				p := g.analysisPending[len(g.analysisPending)-1]
				g.analysisPending = g.analysisPending[:len(g.analysisPending)-1]

				id := g.Find(p.id)
				n := g.canonicalize(&p.node)
				cls := g.classes[id]
				data := g.makeAnalysis(&n)
				merged, changed, _ := mergeAnalysis(&cls.Data, &data)
				if changed {
					cls.Data = merged
					g.analysisPending = append(g.analysisPending, cls.parents...)
					g.modify(id)
				}
			}
		}

		n := g.rebuildClasses()
		unions += n
		if n == 0 && len(g.pending) == 0 && len(g.analysisPending) == 0 {
			return unions
		}
	}
}

// rebuildClasses canonicalizes, sorts and dedups the nodes and parents of
// every class and rebuilds the hash-cons table from them. Nodes found in two
// classes are unioned; the number of such unions is returned.
func (g *EGraph) rebuildClasses() int {
	for _, cls := range g.classes {
		if cls == nil {
			continue
		}
		for i := range cls.Nodes {
			cls.Nodes[i] = g.canonicalize(&cls.Nodes[i])
		}
		slices.SortFunc(cls.Nodes, func(a, b ENode) int { return a.Compare(&b) })
		cls.Nodes = slices.CompactFunc(cls.Nodes, func(a, b ENode) bool { return a.Equal(&b) })

		for i := range cls.parents {
			p := &cls.parents[i]
			p.node = g.canonicalize(&p.node)
			p.id = g.Find(p.id)
		}
		slices.SortFunc(cls.parents, func(a, b parent) int {
			if c := a.node.Compare(&b.node); c != 0 {
				return c
			}
			return cmpUint(uint32(a.id), uint32(b.id))
		})
		cls.parents = slices.CompactFunc(cls.parents, func(a, b parent) bool {
			return a.id == b.id && a.node.Equal(&b.node)
		})
	}

	type collision struct{ a, b Id }
	var collisions []collision

	g.memo.reset()
	for _, cls := range g.classes {
		if cls == nil {
			continue
		}
		for i := range cls.Nodes {
			if old, ok := g.memo.get(g, &cls.Nodes[i]); ok {
				collisions = append(collisions, collision{a: old, b: cls.ID})
				continue
			}
			g.memo.insert(g, cls.Nodes[i], cls.ID)
		}
	}

	unions := 0
	for _, c := range collisions {
		if g.Union(c.a, c.b) {
			unions++
		}
	}
	return unions
}

// modify adds a Constant node to a class whose analysis found it to be
// constant.
func (g *EGraph) modify(id Id) {
	cls := g.classes[g.Find(id)]
	if !cls.Data.IsConst {
		return
	}
	c := g.Add(NewConstant(cls.Data.Const))
	g.Union(id, c)
}

// Lookup returns the class containing the node, if any.
func (g *EGraph) Lookup(n ENode) (Id, bool) {
	for _, c := range n.Children {
		if int(c) >= len(g.unionFind) {
			return 0, false
		}
	}
	n = g.canonicalize(&n)
	id, ok := g.memo.get(g, &n)
	if !ok {
		return 0, false
	}
	return g.Find(id), true
}

// Class returns the class containing id.
func (g *EGraph) Class(id Id) *EClass {
	return g.classes[g.Find(id)]
}

// Classes returns the classes in ascending id order.
func (g *EGraph) Classes() []*EClass {
	res := make([]*EClass, 0, g.numClasses)
	for _, cls := range g.classes {
		if cls != nil {
			res = append(res, cls)
		}
	}
	return res
}

func (g *EGraph) NumClasses() int {
	return g.numClasses
}

// NumNodes returns the number of nodes over all classes. Before Rebuild it
// may count nodes that have become duplicates.
func (g *EGraph) NumNodes() int {
	n := 0
	for _, cls := range g.classes {
		if cls != nil {
			n += len(cls.Nodes)
		}
	}
	return n
}

// MergeCount returns the number of successful unions since the e-graph was
// created.
func (g *EGraph) MergeCount() int {
	return g.mergeCount
}

// Dump writes every class with its analysis and members.
func (g *EGraph) Dump(w io.Writer) {
	for _, cls := range g.Classes() {
		fmt.Fprintf(w, "%d: %s\n", cls.ID, &cls.Data)
		for i := range cls.Nodes {
			fmt.Fprintf(w, "  %s\n", &cls.Nodes[i])
		}
	}
}

// hashCons maps canonical nodes to ids. Nodes are bucketed by fingerprint and
// compared structurally within a bucket.
type hashCons struct {
	buckets map[uint64][]memoEntry
}

type memoEntry struct {
	node ENode
	id   Id
}

func (h *hashCons) get(g *EGraph, n *ENode) (Id, bool) {
	for _, e := range h.buckets[g.fingerprint(n)] {
		if e.node.Equal(n) {
			return e.id, true
		}
	}
	return 0, false
}

// insert maps n to id, returning the id it was previously mapped to.
func (h *hashCons) insert(g *EGraph, n ENode, id Id) (Id, bool) {
	fp := g.fingerprint(&n)
	bucket := h.buckets[fp]
	for i := range bucket {
		if bucket[i].node.Equal(&n) {
			old := bucket[i].id
			bucket[i].id = id
			return old, true
		}
	}
	h.buckets[fp] = append(bucket, memoEntry{node: n, id: id})
	return 0, false
}

func (h *hashCons) reset() {
	clear(h.buckets)
}

func (g *EGraph) fingerprint(n *ENode) uint64 {
	b := g.scratch[:0]
	b = append(b, byte(n.Op))
	switch t := n.Private.(type) {
	case Datum:
		b = append(b, 1, byte(t.kind))
		b = binary.LittleEndian.AppendUint64(b, uint64(t.i))
		b = append(b, t.s...)
	case cat.ColumnID:
		b = append(b, 2)
		b = binary.LittleEndian.AppendUint32(b, uint32(t))
	case cat.TableID:
		b = append(b, 3)
		b = binary.LittleEndian.AppendUint32(b, uint32(t))
	}
	for _, c := range n.Children {
		b = binary.LittleEndian.AppendUint32(b, uint32(c))
	}
	g.scratch = b
	return farm.Fingerprint64(b)
}
