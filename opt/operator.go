package opt

import "fmt"

// Operator identifies the kind of an expression node.
type Operator uint8

const (
	UnknownOp Operator = iota

	// Relational operators.
	ScanOp
	SeqScanOp
	IndexScanOp
	FilterOp
	ProjOp
	HashAggOp
	OrderOp
	TopNOp
	LimitOp
	JoinOp
	HashJoinOp
	MergeJoinOp
	ApplyOp
	ValuesOp
	EmptyOp

	// Scalar operators.
	ConstantOp
	ColumnOp
	TableOp
	AddOp
	SubOp
	MulOp
	DivOp
	GtOp
	LtOp
	EqOp
	AndOp
	OrOp
	NotOp
	ListOp
	RefOp

	NumOperators
)

type operatorKind uint8

const (
	relationalKind operatorKind = iota + 1
	scalarKind
)

// variadic marks operators that take any number of children.
const variadic = -1

type operatorInfo struct {
	name  string
	kind  operatorKind
	arity int
}

var operatorTab = [NumOperators]operatorInfo{
	UnknownOp: {name: "unknown"},

	ScanOp:      {name: "scan", kind: relationalKind, arity: 2},
	SeqScanOp:   {name: "seqscan", kind: relationalKind, arity: 2},
	IndexScanOp: {name: "indexscan", kind: relationalKind, arity: 3},
	FilterOp:    {name: "filter", kind: relationalKind, arity: 2},
	ProjOp:      {name: "proj", kind: relationalKind, arity: 2},
	HashAggOp:   {name: "hashagg", kind: relationalKind, arity: 3},
	OrderOp:     {name: "order", kind: relationalKind, arity: 2},
	TopNOp:      {name: "topn", kind: relationalKind, arity: 4},
	LimitOp:     {name: "limit", kind: relationalKind, arity: 3},
	JoinOp:      {name: "join", kind: relationalKind, arity: 3},
	HashJoinOp:  {name: "hashjoin", kind: relationalKind, arity: 3},
	MergeJoinOp: {name: "mergejoin", kind: relationalKind, arity: 3},
	ApplyOp:     {name: "apply", kind: relationalKind, arity: 3},
	ValuesOp:    {name: "values", kind: relationalKind, arity: variadic},
	EmptyOp:     {name: "empty", kind: relationalKind, arity: 1},

	ConstantOp: {name: "constant", kind: scalarKind, arity: 0},
	ColumnOp:   {name: "column", kind: scalarKind, arity: 0},
	TableOp:    {name: "table", kind: scalarKind, arity: 0},
	AddOp:      {name: "+", kind: scalarKind, arity: 2},
	SubOp:      {name: "-", kind: scalarKind, arity: 2},
	MulOp:      {name: "*", kind: scalarKind, arity: 2},
	DivOp:      {name: "/", kind: scalarKind, arity: 2},
	GtOp:       {name: ">", kind: scalarKind, arity: 2},
	LtOp:       {name: "<", kind: scalarKind, arity: 2},
	EqOp:       {name: "=", kind: scalarKind, arity: 2},
	AndOp:      {name: "and", kind: scalarKind, arity: 2},
	OrOp:       {name: "or", kind: scalarKind, arity: 2},
	NotOp:      {name: "not", kind: scalarKind, arity: 1},
	ListOp:     {name: "list", kind: scalarKind, arity: variadic},
	RefOp:      {name: "ref", kind: scalarKind, arity: 1},
}

var operatorsByName = func() map[string]Operator {
	m := make(map[string]Operator, NumOperators)
	for op := ScanOp; op < NumOperators; op++ {
		switch op {
		case ConstantOp, ColumnOp, TableOp:
			// Leaves are written as literals, $c<n> and $t<n>.
			continue
		}
		m[operatorTab[op].name] = op
	}
	return m
}()

// OperatorByName returns the operator written with the given name in the
// s-expression syntax.
func OperatorByName(name string) (Operator, bool) {
	op, ok := operatorsByName[name]
	return op, ok
}

func (op Operator) String() string {
	if op >= NumOperators {
		return fmt.Sprintf("Operator(%d)", op)
	}
	return operatorTab[op].name
}

// SafeValue implements redact.SafeValue.
func (Operator) SafeValue() {}

func (op Operator) IsRelational() bool {
	return op < NumOperators && operatorTab[op].kind == relationalKind
}

func (op Operator) IsScalar() bool {
	return op < NumOperators && operatorTab[op].kind == scalarKind
}

// Arity returns the number of children the operator takes, or -1 if it takes
// any number of children.
func (op Operator) Arity() int {
	if op >= NumOperators {
		return 0
	}
	return operatorTab[op].arity
}

// IsVariadic returns true if the operator accepts any number of children.
func (op Operator) IsVariadic() bool {
	return op.Arity() == variadic
}
