package opt

import (
	"bytes"
	"fmt"

	"github.com/xlab/treeprint"
)

// Label returns the text of a node without its children: the operator name,
// or the literal for a leaf.
func (n *ENode) Label() string {
	switch n.Op {
	case ConstantOp:
		if d, ok := n.Datum(); ok {
			return d.String()
		}
	case ColumnOp:
		if id, ok := n.ColumnID(); ok {
			return fmt.Sprintf("$c%d", id)
		}
	case TableOp:
		if id, ok := n.TableID(); ok {
			return fmt.Sprintf("$t%d", id)
		}
	}
	return n.Op.String()
}

// String formats the node with its raw child ids, e.g. "(filter 3 7)".
func (n *ENode) String() string {
	if n.IsLeaf() && n.Op.Arity() == 0 {
		return n.Label()
	}
	var buf bytes.Buffer
	buf.WriteString("(")
	buf.WriteString(n.Label())
	for _, c := range n.Children {
		fmt.Fprintf(&buf, " %d", c)
	}
	buf.WriteString(")")
	return buf.String()
}

// String formats the expression rooted at the last node in the s-expression
// syntax accepted by ParseRecExpr.
func (e *RecExpr) String() string {
	if len(e.nodes) == 0 {
		return "()"
	}
	var buf bytes.Buffer
	e.format(&buf, e.Root())
	return buf.String()
}

func (e *RecExpr) format(buf *bytes.Buffer, id Id) {
	n := &e.nodes[id]
	if n.Op.Arity() == 0 {
		buf.WriteString(n.Label())
		return
	}
	buf.WriteString("(")
	buf.WriteString(n.Label())
	for _, c := range n.Children {
		buf.WriteString(" ")
		e.format(buf, c)
	}
	buf.WriteString(")")
}

// Tree formats the expression as an indented tree, one node per line.
func (e *RecExpr) Tree() string {
	if len(e.nodes) == 0 {
		return ""
	}
	root := e.Node(e.Root())
	tp := treeprint.NewWithRoot(root.Label())
	for _, c := range root.Children {
		e.formatTree(tp, c)
	}
	return tp.String()
}

func (e *RecExpr) formatTree(tp treeprint.Tree, id Id) {
	n := &e.nodes[id]
	if n.IsLeaf() {
		tp.AddNode(n.Label())
		return
	}
	branch := tp.AddBranch(n.Label())
	for _, c := range n.Children {
		e.formatTree(branch, c)
	}
}
