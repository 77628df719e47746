package opt

import "github.com/cockroachdb/errors"

// Var is a pattern variable, written ?name.
type Var string

type binding struct {
	v  Var
	id Id
}

// Subst binds pattern variables to classes. Bindings are kept in the order
// they were made.
type Subst []binding

// Get returns the class bound to v.
func (s Subst) Get(v Var) (Id, bool) {
	for _, b := range s {
		if b.v == v {
			return b.id, true
		}
	}
	return 0, false
}

// MustGet returns the class bound to v and panics if there is none.
func (s Subst) MustGet(v Var) Id {
	id, ok := s.Get(v)
	if !ok {
		panic(errors.AssertionFailedf("variable %s is not bound", v))
	}
	return id
}

// Bind returns a copy of s with v bound to id.
func (s Subst) Bind(v Var, id Id) Subst {
	res := make(Subst, len(s), len(s)+1)
	copy(res, s)
	return append(res, binding{v: v, id: id})
}

// Match is a single result of a search: the class that matched and the
// bindings that made it match.
type Match struct {
	Class Id
	Subst Subst
}

// Searcher finds matches in an e-graph. Search must not modify the e-graph.
type Searcher interface {
	Search(g *EGraph) []Match
}

// Applier rewrites a match. It may add nodes and union classes, and returns
// true if it changed the e-graph.
type Applier interface {
	Apply(g *EGraph, m Match) bool
}

// ApplierFunc adapts a function to the Applier interface.
type ApplierFunc func(g *EGraph, m Match) bool

func (f ApplierFunc) Apply(g *EGraph, m Match) bool {
	return f(g, m)
}

// Rewrite pairs a searcher with an applier. The runner knows nothing else
// about a rule.
type Rewrite struct {
	Name     string
	Searcher Searcher
	Applier  Applier
}

// Condition decides whether a match may be rewritten.
type Condition func(g *EGraph, m Match) bool

type conditionalApplier struct {
	cond    Condition
	applier Applier
}

func (c conditionalApplier) Apply(g *EGraph, m Match) bool {
	if !c.cond(g, m) {
		return false
	}
	return c.applier.Apply(g, m)
}

// NewRewrite builds a rule that rewrites expressions matching lhs into rhs.
// Both are written in the s-expression syntax with ?variables. Every variable
// of rhs must appear in lhs. It panics if the patterns are malformed.
func NewRewrite(name, lhs, rhs string) *Rewrite {
	searcher := MustParsePattern(lhs)
	applier := MustParsePattern(rhs)
	checkVars(name, searcher, applier)
	return &Rewrite{Name: name, Searcher: searcher, Applier: applier}
}

// NewRewriteIf is like NewRewrite but only rewrites matches accepted by cond.
func NewRewriteIf(name, lhs, rhs string, cond Condition) *Rewrite {
	rw := NewRewrite(name, lhs, rhs)
	rw.Applier = conditionalApplier{cond: cond, applier: rw.Applier}
	return rw
}

// NewRewriteFunc builds a rule whose right-hand side is computed by code.
func NewRewriteFunc(name, lhs string, apply ApplierFunc) *Rewrite {
	return &Rewrite{Name: name, Searcher: MustParsePattern(lhs), Applier: apply}
}

func checkVars(name string, lhs, rhs *Pattern) {
	for _, v := range rhs.Vars() {
		found := false
		for _, w := range lhs.Vars() {
			if v == w {
				found = true
				break
			}
		}
		if !found {
			panic(errors.AssertionFailedf("rule %s: variable %s is not bound by the left-hand side", name, v))
		}
	}
}
