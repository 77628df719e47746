// Package xform runs the staged optimization pipeline. Each stage saturates
// a fresh e-graph seeded with the current best plan for a bounded number of
// iterations, extracts the cheapest plan, and repeats for a fixed number of
// rounds. Reseeding discards every alternative the extractor did not pick,
// which keeps the e-graph small at the price of global optimality.
package xform

import (
	"github.com/cockroachdb/errors"
	"github.com/petermattis/satopt/cat"
	"github.com/petermattis/satopt/opt"
	"github.com/petermattis/satopt/rules"
	"go.uber.org/zap"
)

// Optimizer is immutable once built and may be used by concurrent callers.
// Every optimization owns its e-graphs.
type Optimizer struct {
	stats  cat.Stats
	stages []rules.Stage
	model  opt.CostModel

	nodeLimit  int
	classLimit int

	logger   *zap.Logger
	observer Observer
}

type Option func(o *Optimizer)

// WithLogger sets the logger used for per-round debug output.
func WithLogger(l *zap.Logger) Option {
	return func(o *Optimizer) { o.logger = l }
}

// WithObserver installs a hook called after every round.
func WithObserver(obs Observer) Option {
	return func(o *Optimizer) { o.observer = obs }
}

// WithCostModel replaces the default Coster.
func WithCostModel(m opt.CostModel) Option {
	return func(o *Optimizer) { o.model = m }
}

// WithNodeLimit bounds the number of nodes of every e-graph.
func WithNodeLimit(n int) Option {
	return func(o *Optimizer) { o.nodeLimit = n }
}

// WithClassLimit bounds the number of classes of every e-graph.
func WithClassLimit(n int) Option {
	return func(o *Optimizer) { o.classLimit = n }
}

// WithStageLimits overrides the number of rounds and the iteration limit of
// the named stage. Zero values keep the default.
func WithStageLimits(name string, rounds, iterLimit int) Option {
	return func(o *Optimizer) {
		for i := range o.stages {
			s := &o.stages[i]
			if s.Name != name {
				continue
			}
			if rounds > 0 {
				s.Rounds = rounds
			}
			if iterLimit > 0 {
				s.IterLimit = iterLimit
			}
		}
	}
}

// New returns an optimizer that estimates with stats and builds its stage
// rule sets from cfg.
func New(stats cat.Stats, cfg rules.Config, opts ...Option) *Optimizer {
	o := &Optimizer{
		stats:      stats,
		stages:     rules.Stages(cfg),
		model:      opt.NewCoster(opt.DefaultCostConfig),
		nodeLimit:  opt.DefaultNodeLimit,
		classLimit: opt.DefaultClassLimit,
		logger:     zap.NewNop(),
	}
	for _, fn := range opts {
		fn(o)
	}
	return o
}

// Stages returns the stages the optimizer runs.
func (o *Optimizer) Stages() []rules.Stage {
	return o.stages
}

// StageResult describes the outcome of one stage.
type StageResult struct {
	Name string

	// Expr and Cost are the plan carried out of the stage.
	Expr *opt.RecExpr
	Cost opt.Cost

	// Accepted counts the rounds whose plan replaced the carried plan.
	Accepted int

	// StopReason is the reason the last round's runner stopped.
	StopReason opt.StopReason
}

// Result is the outcome of an optimization.
type Result struct {
	Expr *opt.RecExpr
	Cost opt.Cost

	// Costs and Rows hold, per node of Expr, the cost of the subtree rooted
	// at the node and its estimated row count.
	Costs []opt.Cost
	Rows  []float64

	Stages []StageResult
}

// Optimize returns the cheapest plan found for expr.
func (o *Optimizer) Optimize(expr *opt.RecExpr) (*opt.RecExpr, error) {
	res, err := o.OptimizeWithStats(expr)
	if err != nil {
		return nil, err
	}
	return res.Expr, nil
}

// OptimizeWithStats is like Optimize but also reports costs, row estimates
// and the outcome of every stage.
func (o *Optimizer) OptimizeWithStats(expr *opt.RecExpr) (_ *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = opt.CatchOptimizerError(r)
		}
	}()

	if expr == nil {
		return nil, errors.AssertionFailedf("nil expression")
	}
	if err := expr.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid expression")
	}

	cost := o.cost(expr)
	o.observeInput(expr, cost)

	res := &Result{}
	for i := range o.stages {
		sr, err := o.optimizeStage(&o.stages[i], expr, cost)
		if err != nil {
			return nil, errors.Wrapf(err, "stage %s", o.stages[i].Name)
		}
		expr, cost = sr.Expr, sr.Cost
		res.Stages = append(res.Stages, sr)
	}

	res.Expr, res.Cost = expr, cost
	res.Costs = o.costs(expr)
	res.Rows = o.rows(expr)
	return res, nil
}

// optimizeStage runs the rounds of a stage. A round's plan replaces the
// carried plan only if it is no more expensive, so the carried cost never
// increases.
func (o *Optimizer) optimizeStage(
	s *rules.Stage, expr *opt.RecExpr, cost opt.Cost,
) (StageResult, error) {
	sr := StageResult{Name: s.Name, Expr: expr, Cost: cost}
	for round := 1; round <= s.Rounds; round++ {
		g := opt.NewEGraph(o.stats)
		root := g.AddExpr(sr.Expr)
		r := opt.NewRunner(g,
			opt.WithIterLimit(s.IterLimit),
			opt.WithNodeLimit(o.nodeLimit),
			opt.WithClassLimit(o.classLimit),
		).Run(s.Rules)

		_, best, err := opt.NewExtractor(g, o.model).FindBest(root)
		if err != nil {
			return StageResult{}, err
		}
		bestCost := o.cost(best)
		accepted := bestCost <= sr.Cost
		if accepted {
			sr.Expr, sr.Cost = best, bestCost
			sr.Accepted++
		}
		sr.StopReason = r.StopReason

		o.logger.Debug("optimized round",
			zap.String("stage", s.Name),
			zap.Int("round", round),
			zap.Float64("cost", bestCost),
			zap.Bool("accepted", accepted),
			zap.Stringer("stop", r.StopReason),
			zap.Int("iterations", len(r.Iterations)),
			zap.Int("classes", g.NumClasses()),
			zap.Int("nodes", g.NumNodes()),
		)
		rec := newRecord(s.Name, round, g, r, sr.Expr, sr.Cost)
		rec.Extracted, rec.Accepted = bestCost, accepted
		o.observe(rec)
	}
	return sr, nil
}

func (o *Optimizer) observeInput(expr *opt.RecExpr, cost opt.Cost) {
	if o.observer == nil {
		return
	}
	g := opt.NewEGraph(o.stats)
	g.AddExpr(expr)
	o.observe(newRecord("0", 0, g, nil, expr, cost))
}

func (o *Optimizer) observe(rec Record) {
	if o.observer == nil {
		return
	}
	if err := o.observer.OnRound(rec); err != nil {
		o.logger.Warn("observer failed",
			zap.String("stage", rec.Stage),
			zap.Int("round", rec.Round),
			zap.Error(err),
		)
	}
}
