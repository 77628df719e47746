package opt

// EClass is a set of equivalent nodes. After EGraph.Rebuild the nodes are
// canonical, sorted by ENode.Less and free of duplicates.
type EClass struct {
	ID    Id
	Nodes []ENode
	Data  Analysis

	// parents lists every node that has this class as a child, along with the
	// class that node belongs to. It is used to restore congruence after a
	// union.
	parents []parent
}

type parent struct {
	node ENode
	id   Id
}

func (c *EClass) Len() int {
	return len(c.Nodes)
}

// NumParents returns the number of nodes that refer to this class.
func (c *EClass) NumParents() int {
	return len(c.parents)
}

// IsRelational returns true if the class holds relational expressions.
func (c *EClass) IsRelational() bool {
	for i := range c.Nodes {
		if c.Nodes[i].Op.IsRelational() {
			return true
		}
	}
	return false
}

// HasOp returns true if any member of the class has the given operator.
func (c *EClass) HasOp(op Operator) bool {
	for i := range c.Nodes {
		if c.Nodes[i].Op == op {
			return true
		}
	}
	return false
}

// size is used to pick the surviving root of a union.
func (c *EClass) size() int {
	return len(c.Nodes) + len(c.parents)
}

// unionFind maps node-creation ids to canonical class ids.
type unionFind []Id

func (uf *unionFind) makeSet() Id {
	id := Id(len(*uf))
	*uf = append(*uf, id)
	return id
}

// find returns the root of id, compressing the path behind it.
func (uf unionFind) find(id Id) Id {
	root := id
	for uf[root] != root {
		root = uf[root]
	}
	for uf[id] != root {
		next := uf[id]
		uf[id] = root
		id = next
	}
	return root
}
