package opt

import (
	"bytes"
	"strings"

	"github.com/cockroachdb/errors"
)

// Pattern is an expression with variables, used both to search an e-graph
// and to build the replacement of a match. A variable matches any class; a
// variable that occurs twice must match the same class both times.
//
//	(filter (filter ?input ?p1) ?p2)
type Pattern struct {
	// nodes is a RecExpr whose leaves may be variables. The last node is the
	// root.
	nodes []patternNode
	vars  []Var
}

type patternNode struct {
	v     Var
	isVar bool
	node  ENode
}

// ParsePattern parses a pattern written in the s-expression syntax.
func ParsePattern(src string) (*Pattern, error) {
	root, err := parseSexp(src)
	if err != nil {
		return nil, errors.Wrapf(err, "pattern %s", src)
	}
	p := &Pattern{}
	if _, err := p.build(root); err != nil {
		return nil, errors.Wrapf(err, "pattern %s", src)
	}
	return p, nil
}

// MustParsePattern is like ParsePattern but panics on error.
func MustParsePattern(src string) *Pattern {
	p, err := ParsePattern(src)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Pattern) build(s *sexp) (Id, error) {
	if !s.isList() {
		if s.tok == atomTok && strings.HasPrefix(s.lit, "?") {
			if len(s.lit) == 1 {
				return 0, errors.Newf("unnamed variable at offset %d", s.pos)
			}
			v := Var(s.lit)
			found := false
			for _, w := range p.vars {
				found = found || w == v
			}
			if !found {
				p.vars = append(p.vars, v)
			}
			p.nodes = append(p.nodes, patternNode{v: v, isVar: true})
			return Id(len(p.nodes) - 1), nil
		}
		n, err := parseLeaf(s)
		if err != nil {
			return 0, err
		}
		p.nodes = append(p.nodes, patternNode{node: n})
		return Id(len(p.nodes) - 1), nil
	}

	op, err := parseOp(s)
	if err != nil {
		return 0, err
	}
	children := make([]Id, 0, len(s.list)-1)
	for _, c := range s.list[1:] {
		id, err := p.build(c)
		if err != nil {
			return 0, err
		}
		children = append(children, id)
	}
	p.nodes = append(p.nodes, patternNode{node: NewNode(op, children...)})
	return Id(len(p.nodes) - 1), nil
}

// Vars returns the variables of the pattern in order of first appearance.
func (p *Pattern) Vars() []Var {
	return p.vars
}

func (p *Pattern) root() int {
	return len(p.nodes) - 1
}

// Search implements Searcher. Classes are visited in ascending id order and
// class members in their sorted order, so the result is deterministic.
func (p *Pattern) Search(g *EGraph) []Match {
	var res []Match
	root := &p.nodes[p.root()]
	for _, cls := range g.Classes() {
		if !root.isVar && !cls.HasOp(root.node.Op) {
			continue
		}
		for _, s := range p.match(g, p.root(), cls.ID, nil) {
			res = append(res, Match{Class: cls.ID, Subst: s})
		}
	}
	return res
}

// SearchClass returns the substitutions under which the pattern matches the
// given class.
func (p *Pattern) SearchClass(g *EGraph, id Id) []Subst {
	return p.match(g, p.root(), id, nil)
}

func (p *Pattern) match(g *EGraph, pi int, id Id, s Subst) []Subst {
	id = g.Find(id)
	pn := &p.nodes[pi]
	if pn.isVar {
		if bound, ok := s.Get(pn.v); ok {
			if g.Find(bound) == id {
				return []Subst{s}
			}
			return nil
		}
		return []Subst{s.Bind(pn.v, id)}
	}

	var res []Subst
	cls := g.classes[id]
	for i := range cls.Nodes {
		n := &cls.Nodes[i]
		if n.Op != pn.node.Op || n.Private != pn.node.Private || len(n.Children) != len(pn.node.Children) {
			continue
		}
		substs := []Subst{s}
		for ci, c := range pn.node.Children {
			var next []Subst
			for _, ss := range substs {
				next = append(next, p.match(g, int(c), n.Children[ci], ss)...)
			}
			substs = next
			if len(substs) == 0 {
				break
			}
		}
		res = append(res, substs...)
	}
	return res
}

// Apply implements Applier by adding the pattern instantiated with the
// match's bindings and unioning it with the matched class.
func (p *Pattern) Apply(g *EGraph, m Match) bool {
	return g.Union(m.Class, p.Instantiate(g, m.Subst))
}

// Instantiate adds the pattern to the e-graph, substituting bound classes for
// variables, and returns the class of its root.
func (p *Pattern) Instantiate(g *EGraph, s Subst) Id {
	ids := make([]Id, len(p.nodes))
	for i := range p.nodes {
		pn := &p.nodes[i]
		if pn.isVar {
			ids[i] = s.MustGet(pn.v)
			continue
		}
		ids[i] = g.Add(pn.node.MapChildren(func(c Id) Id { return ids[c] }))
	}
	return ids[len(ids)-1]
}

func (p *Pattern) String() string {
	var buf bytes.Buffer
	p.format(&buf, p.root())
	return buf.String()
}

func (p *Pattern) format(buf *bytes.Buffer, i int) {
	pn := &p.nodes[i]
	if pn.isVar {
		buf.WriteString(string(pn.v))
		return
	}
	if pn.node.Op.Arity() == 0 {
		buf.WriteString(pn.node.Label())
		return
	}
	buf.WriteString("(")
	buf.WriteString(pn.node.Label())
	for _, c := range pn.node.Children {
		buf.WriteString(" ")
		p.format(buf, int(c))
	}
	buf.WriteString(")")
}
