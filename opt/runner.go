package opt

import "fmt"

// StopReason records why a Runner stopped.
type StopReason uint8

const (
	// NotStopped means Run has not been called.
	NotStopped StopReason = iota

	// Saturated means an iteration added no node and performed no union.
	Saturated

	// IterationLimit means the configured number of iterations ran.
	IterationLimit

	// NodeLimit means the e-graph grew past the node limit. Like ClassLimit it
	// is a cutoff, not a failure; the partial e-graph can still be extracted.
	NodeLimit

	// ClassLimit means the e-graph grew past the class limit.
	ClassLimit
)

func (r StopReason) String() string {
	switch r {
	case NotStopped:
		return "not-stopped"
	case Saturated:
		return "saturated"
	case IterationLimit:
		return "iteration-limit"
	case NodeLimit:
		return "node-limit"
	case ClassLimit:
		return "class-limit"
	}
	return fmt.Sprintf("StopReason(%d)", r)
}

// SafeValue implements redact.SafeValue.
func (StopReason) SafeValue() {}

const (
	DefaultIterLimit  = 30
	DefaultNodeLimit  = 10000
	DefaultClassLimit = 10000
)

// RuleCount is the number of matches of a rule that changed the e-graph.
type RuleCount struct {
	Name  string
	Count int
}

// Iteration describes one Matching, Applying, Rebuilding cycle.
type Iteration struct {
	// Nodes and Classes are the sizes of the e-graph after rebuilding.
	Nodes   int
	Classes int

	// Unions counts the unions made while applying and rebuilding.
	Unions int

	// Applied lists, in rule order, the rules that changed the e-graph.
	Applied []RuleCount
}

// Runner applies rewrites to an e-graph until it saturates or hits a limit.
//
// Each iteration first searches every rule against the unchanged e-graph,
// then applies all matches, then rebuilds. Searching before applying makes
// the outcome of an iteration independent of rule order.
type Runner struct {
	g *EGraph

	iterLimit  int
	nodeLimit  int
	classLimit int

	Iterations []Iteration
	StopReason StopReason
}

type RunnerOption func(r *Runner)

func WithIterLimit(n int) RunnerOption {
	return func(r *Runner) { r.iterLimit = n }
}

func WithNodeLimit(n int) RunnerOption {
	return func(r *Runner) { r.nodeLimit = n }
}

func WithClassLimit(n int) RunnerOption {
	return func(r *Runner) { r.classLimit = n }
}

func NewRunner(g *EGraph, opts ...RunnerOption) *Runner {
	r := &Runner{
		g:          g,
		iterLimit:  DefaultIterLimit,
		nodeLimit:  DefaultNodeLimit,
		classLimit: DefaultClassLimit,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// EGraph returns the e-graph the runner operates on.
func (r *Runner) EGraph() *EGraph {
	return r.g
}

// Run runs the rules to completion and returns the runner so that calls can
// be chained. The e-graph is rebuilt on return.
func (r *Runner) Run(rules []*Rewrite) *Runner {
	g := r.g
	g.Rebuild()

	for {
		if reason, stop := r.checkLimits(); stop {
			r.StopReason = reason
			return r
		}

		// Matching.
		matches := make([][]Match, len(rules))
		for i, rw := range rules {
			matches[i] = rw.Searcher.Search(g)
		}

		// Applying.
		added, merges := g.nodesAdded, g.mergeCount
		var applied []RuleCount
		var cutoff bool
		for i, rw := range rules {
			count := 0
			for _, m := range matches[i] {
				if rw.Applier.Apply(g, m) {
					count++
				}
			}
			if count > 0 {
				applied = append(applied, RuleCount{Name: rw.Name, Count: count})
			}
			if g.NumClasses() > r.classLimit {
				cutoff = true
				break
			}
		}

		// Rebuilding.
		g.Rebuild()

		r.Iterations = append(r.Iterations, Iteration{
			Nodes:   g.NumNodes(),
			Classes: g.NumClasses(),
			Unions:  g.mergeCount - merges,
			Applied: applied,
		})

		if !cutoff && g.nodesAdded == added && g.mergeCount == merges {
			r.StopReason = Saturated
			return r
		}
	}
}

func (r *Runner) checkLimits() (StopReason, bool) {
	switch {
	case len(r.Iterations) >= r.iterLimit:
		return IterationLimit, true
	case r.g.NumNodes() > r.nodeLimit:
		return NodeLimit, true
	case r.g.NumClasses() > r.classLimit:
		return ClassLimit, true
	}
	return NotStopped, false
}

// Applied sums the rule counts over all iterations, in order of first
// application.
func (r *Runner) Applied() []RuleCount {
	var res []RuleCount
	index := make(map[string]int)
	for _, it := range r.Iterations {
		for _, rc := range it.Applied {
			if i, ok := index[rc.Name]; ok {
				res[i].Count += rc.Count
				continue
			}
			index[rc.Name] = len(res)
			res = append(res, rc)
		}
	}
	return res
}
