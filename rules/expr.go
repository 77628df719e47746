package rules

import "github.com/petermattis/satopt/opt"

// AndRules normalize conjunctions so that predicate pushdown can find every
// way of splitting a conjunction in two.
func AndRules() []*opt.Rewrite {
	return []*opt.Rewrite{
		opt.NewRewrite("and-comm", "(and ?a ?b)", "(and ?b ?a)"),
		opt.NewRewrite("and-assoc", "(and ?a (and ?b ?c))", "(and (and ?a ?b) ?c)"),
		opt.NewRewrite("and-true", "(and true ?a)", "?a"),
		opt.NewRewrite("and-false", "(and false ?a)", "false"),
		opt.NewRewrite("and-same", "(and ?a ?a)", "?a"),
	}
}

// ExprRules simplify scalar expressions. They include AndRules.
func ExprRules() []*opt.Rewrite {
	return append(AndRules(),
		opt.NewRewrite("or-comm", "(or ?a ?b)", "(or ?b ?a)"),
		opt.NewRewrite("or-false", "(or false ?a)", "?a"),
		opt.NewRewrite("or-true", "(or true ?a)", "true"),
		opt.NewRewrite("or-same", "(or ?a ?a)", "?a"),
		opt.NewRewrite("not-not", "(not (not ?a))", "?a"),
		opt.NewRewrite("not-and", "(not (and ?a ?b))", "(or (not ?a) (not ?b))"),
		opt.NewRewrite("not-or", "(not (or ?a ?b))", "(and (not ?a) (not ?b))"),

		opt.NewRewrite("eq-comm", "(= ?a ?b)", "(= ?b ?a)"),
		opt.NewRewrite("gt-flip", "(> ?a ?b)", "(< ?b ?a)"),
		opt.NewRewrite("lt-flip", "(< ?a ?b)", "(> ?b ?a)"),

		opt.NewRewrite("add-comm", "(+ ?a ?b)", "(+ ?b ?a)"),
		opt.NewRewrite("mul-comm", "(* ?a ?b)", "(* ?b ?a)"),
		opt.NewRewrite("add-zero", "(+ ?a 0)", "?a"),
		opt.NewRewrite("sub-zero", "(- ?a 0)", "?a"),
		opt.NewRewrite("mul-one", "(* ?a 1)", "?a"),
		opt.NewRewrite("div-one", "(/ ?a 1)", "?a"),
	)
}
