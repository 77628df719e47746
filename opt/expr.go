package opt

import (
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/petermattis/satopt/cat"
)

// Id is a handle to a node. Within a RecExpr it is the position of a node.
// Within an EGraph it names an equivalence class; an Id handed out before a
// union may no longer be canonical and must be passed through Find.
type Id uint32

// SafeValue implements redact.SafeValue.
func (Id) SafeValue() {}

var (
	_ redact.SafeValue = Id(0)
	_ redact.SafeValue = Operator(0)
	_ redact.SafeValue = StopReason(0)
	_ redact.SafeValue = cat.ColumnID(0)
	_ redact.SafeValue = cat.TableID(0)
)

// ENode is an operator applied to child ids. Private holds the payload of a
// leaf: a Datum for ConstantOp, a cat.ColumnID for ColumnOp and a cat.TableID
// for TableOp. It is nil for every other operator.
//
// Two nodes are equal if their operator, private and children are equal.
type ENode struct {
	Op       Operator
	Private  any
	Children []Id
}

func NewConstant(d Datum) ENode {
	return ENode{Op: ConstantOp, Private: d}
}

func NewColumn(id cat.ColumnID) ENode {
	return ENode{Op: ColumnOp, Private: id}
}

func NewTable(id cat.TableID) ENode {
	return ENode{Op: TableOp, Private: id}
}

func NewNode(op Operator, children ...Id) ENode {
	return ENode{Op: op, Children: children}
}

// Datum returns the value of a ConstantOp node.
func (n *ENode) Datum() (Datum, bool) {
	d, ok := n.Private.(Datum)
	return d, ok && n.Op == ConstantOp
}

// ColumnID returns the column referenced by a ColumnOp node.
func (n *ENode) ColumnID() (cat.ColumnID, bool) {
	id, ok := n.Private.(cat.ColumnID)
	return id, ok && n.Op == ColumnOp
}

// TableID returns the table referenced by a TableOp node.
func (n *ENode) TableID() (cat.TableID, bool) {
	id, ok := n.Private.(cat.TableID)
	return id, ok && n.Op == TableOp
}

func (n *ENode) IsLeaf() bool {
	return len(n.Children) == 0
}

// MapChildren returns a copy of the node with every child replaced by
// fn(child). The receiver is not modified.
func (n *ENode) MapChildren(fn func(Id) Id) ENode {
	res := ENode{Op: n.Op, Private: n.Private}
	if len(n.Children) > 0 {
		res.Children = make([]Id, len(n.Children))
		for i, c := range n.Children {
			res.Children[i] = fn(c)
		}
	}
	return res
}

func (n *ENode) Equal(o *ENode) bool {
	return n.Op == o.Op && n.Private == o.Private && slices.Equal(n.Children, o.Children)
}

// Less is a total order on nodes: by operator, then private, then children.
func (n *ENode) Less(o *ENode) bool {
	return n.Compare(o) < 0
}

func (n *ENode) Compare(o *ENode) int {
	if n.Op != o.Op {
		if n.Op < o.Op {
			return -1
		}
		return 1
	}
	if c := comparePrivate(n.Private, o.Private); c != 0 {
		return c
	}
	return slices.Compare(n.Children, o.Children)
}

func comparePrivate(a, b any) int {
	switch t := a.(type) {
	case Datum:
		if u, ok := b.(Datum); ok {
			return t.Compare(u)
		}
	case cat.ColumnID:
		if u, ok := b.(cat.ColumnID); ok {
			return cmpUint(uint32(t), uint32(u))
		}
	case cat.TableID:
		if u, ok := b.(cat.TableID); ok {
			return cmpUint(uint32(t), uint32(u))
		}
	case nil:
		if b == nil {
			return 0
		}
		return -1
	}
	if b == nil {
		return 1
	}
	return cmpUint(uint32(privateRank(a)), uint32(privateRank(b)))
}

func privateRank(p any) int {
	switch p.(type) {
	case nil:
		return 0
	case Datum:
		return 1
	case cat.ColumnID:
		return 2
	case cat.TableID:
		return 3
	}
	return 4
}

func cmpUint(a, b uint32) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// RecExpr is a single expression stored as a flat list of nodes in which
// every child refers to an earlier position. The last node is the root.
type RecExpr struct {
	nodes []ENode
}

// NewRecExpr wraps externally produced nodes after checking that they form a
// well-formed expression.
func NewRecExpr(nodes []ENode) (*RecExpr, error) {
	e := &RecExpr{nodes: nodes}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// Add appends a node and returns its position. Every child must refer to a
// node that was already added.
func (e *RecExpr) Add(n ENode) Id {
	for _, c := range n.Children {
		if int(c) >= len(e.nodes) {
			panic(errors.AssertionFailedf("%s node at %d refers to child %d", n.Op, len(e.nodes), c))
		}
	}
	e.nodes = append(e.nodes, n)
	return Id(len(e.nodes) - 1)
}

func (e *RecExpr) Len() int {
	return len(e.nodes)
}

// Root returns the id of the last node. The expression must not be empty.
func (e *RecExpr) Root() Id {
	return Id(len(e.nodes) - 1)
}

func (e *RecExpr) Node(id Id) *ENode {
	return &e.nodes[id]
}

// Nodes returns the node list. Callers must not modify it.
func (e *RecExpr) Nodes() []ENode {
	return e.nodes
}

// Validate checks that the expression is non-empty, that every child refers
// to an earlier node and that every node has the arity and private its
// operator requires.
func (e *RecExpr) Validate() error {
	if len(e.nodes) == 0 {
		return errors.AssertionFailedf("empty expression")
	}
	for i := range e.nodes {
		n := &e.nodes[i]
		if n.Op == UnknownOp || n.Op >= NumOperators {
			return errors.AssertionFailedf("node %d has invalid operator %d", i, n.Op)
		}
		if arity := n.Op.Arity(); arity != variadic && arity != len(n.Children) {
			return errors.AssertionFailedf("%s node %d has %d children, expected %d",
				n.Op, i, len(n.Children), arity)
		}
		for _, c := range n.Children {
			if int(c) >= i {
				return errors.AssertionFailedf("%s node %d has forward or dangling child %d", n.Op, i, c)
			}
		}

		var ok bool
		switch n.Op {
		case ConstantOp:
			_, ok = n.Datum()
		case ColumnOp:
			_, ok = n.ColumnID()
		case TableOp:
			_, ok = n.TableID()
		default:
			ok = n.Private == nil
		}
		if !ok {
			return errors.AssertionFailedf("%s node %d has invalid private %v", n.Op, i, n.Private)
		}
	}
	return nil
}
