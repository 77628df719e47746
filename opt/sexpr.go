package opt

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"
	"unicode"

	"github.com/cockroachdb/errors"
	"github.com/petermattis/satopt/cat"
)

// Expressions are written as s-expressions:
//
//	(filter (scan $t1 (list $c1 $c2)) (= $c1 5))
//
// Atoms are integers, 'strings' (a quote is written as ''), true, false,
// null, table references $t<n>, column references $c<n> and, in rewrite
// patterns only, variables ?name.

type token int

const (
	illegalTok token = iota
	eofTok
	lparenTok
	rparenTok
	atomTok
	stringTok
)

type scanner struct {
	r   *bufio.Reader
	tok token
	lit string
	pos int
}

func newScanner(s string) *scanner {
	return &scanner{r: bufio.NewReader(strings.NewReader(s))}
}

func (s *scanner) scan() token {
	ch := s.read()
	for unicode.IsSpace(ch) {
		ch = s.read()
	}

	switch ch {
	case 0:
		s.tok, s.lit = eofTok, ""
	case '(':
		s.tok, s.lit = lparenTok, "("
	case ')':
		s.tok, s.lit = rparenTok, ")"
	case '\'':
		return s.scanString()
	default:
		s.unread()
		return s.scanAtom()
	}
	return s.tok
}

func (s *scanner) scanAtom() token {
	var buf bytes.Buffer
	for {
		ch := s.read()
		if ch == 0 || ch == '(' || ch == ')' || ch == '\'' || unicode.IsSpace(ch) {
			s.unread()
			break
		}
		buf.WriteRune(ch)
	}
	s.tok, s.lit = atomTok, buf.String()
	return s.tok
}

func (s *scanner) scanString() token {
	var buf bytes.Buffer
	for {
		ch := s.read()
		if ch == 0 {
			s.tok, s.lit = illegalTok, "'"+buf.String()
			return s.tok
		}
		if ch == '\'' {
			if next := s.read(); next != '\'' {
				s.unread()
				break
			}
		}
		buf.WriteRune(ch)
	}
	s.tok, s.lit = stringTok, buf.String()
	return s.tok
}

// read returns the next rune, or 0 at the end of the input.
func (s *scanner) read() rune {
	ch, _, err := s.r.ReadRune()
	if err != nil {
		return 0
	}
	s.pos++
	return ch
}

func (s *scanner) unread() {
	if err := s.r.UnreadRune(); err == nil {
		s.pos--
	}
}

// sexp is a parsed but not yet interpreted s-expression.
type sexp struct {
	pos  int
	tok  token
	lit  string
	list []*sexp
}

func (e *sexp) isList() bool {
	return e.tok == lparenTok
}

type sexpParser struct {
	s *scanner
}

func parseSexp(src string) (*sexp, error) {
	p := sexpParser{s: newScanner(src)}
	p.s.scan()
	e, err := p.parse()
	if err != nil {
		return nil, err
	}
	if p.s.tok != eofTok {
		return nil, errors.Newf("unexpected %q at offset %d", p.s.lit, p.s.pos)
	}
	return e, nil
}

// parse parses the expression starting at the current token and leaves the
// scanner on the token that follows it.
func (p *sexpParser) parse() (*sexp, error) {
	switch p.s.tok {
	case lparenTok:
		e := &sexp{pos: p.s.pos, tok: lparenTok}
		p.s.scan()
		for p.s.tok != rparenTok {
			if p.s.tok == eofTok {
				return nil, errors.Newf("unbalanced parenthesis at offset %d", e.pos)
			}
			child, err := p.parse()
			if err != nil {
				return nil, err
			}
			e.list = append(e.list, child)
		}
		p.s.scan()
		return e, nil

	case atomTok, stringTok:
		e := &sexp{pos: p.s.pos, tok: p.s.tok, lit: p.s.lit}
		p.s.scan()
		return e, nil

	case eofTok:
		return nil, errors.New("unexpected end of input")
	}
	return nil, errors.Newf("unexpected %q at offset %d", p.s.lit, p.s.pos)
}

// parseLeaf interprets an atom as a Constant, Column or Table node.
func parseLeaf(e *sexp) (ENode, error) {
	if e.tok == stringTok {
		return NewConstant(DString(e.lit)), nil
	}

	switch e.lit {
	case "true":
		return NewConstant(DTrue), nil
	case "false":
		return NewConstant(DFalse), nil
	case "null":
		return NewConstant(DNull), nil
	}

	if strings.HasPrefix(e.lit, "$c") || strings.HasPrefix(e.lit, "$t") {
		id, err := strconv.ParseUint(e.lit[2:], 10, 32)
		if err != nil {
			return ENode{}, errors.Newf("invalid reference %q at offset %d", e.lit, e.pos)
		}
		if e.lit[1] == 'c' {
			return NewColumn(cat.ColumnID(id)), nil
		}
		return NewTable(cat.TableID(id)), nil
	}

	i, err := strconv.ParseInt(e.lit, 10, 64)
	if err != nil {
		return ENode{}, errors.Newf("unknown atom %q at offset %d", e.lit, e.pos)
	}
	return NewConstant(DInt(i)), nil
}

// parseOp interprets the head of a list and checks the list length against
// the operator's arity.
func parseOp(e *sexp) (Operator, error) {
	if len(e.list) == 0 {
		return UnknownOp, errors.Newf("empty list at offset %d", e.pos)
	}
	head := e.list[0]
	if head.tok != atomTok {
		return UnknownOp, errors.Newf("expected operator at offset %d", head.pos)
	}
	op, ok := OperatorByName(head.lit)
	if !ok {
		return UnknownOp, errors.Newf("unknown operator %q at offset %d", head.lit, head.pos)
	}
	if arity := op.Arity(); arity != variadic && arity != len(e.list)-1 {
		return UnknownOp, errors.Newf("%s takes %d arguments, got %d at offset %d",
			op, arity, len(e.list)-1, head.pos)
	}
	return op, nil
}

// ParseRecExpr parses an expression written in the s-expression syntax.
func ParseRecExpr(src string) (*RecExpr, error) {
	root, err := parseSexp(src)
	if err != nil {
		return nil, err
	}
	e := &RecExpr{}
	if _, err := buildRecExpr(e, root); err != nil {
		return nil, err
	}
	return e, nil
}

// MustParseRecExpr is like ParseRecExpr but panics on error.
func MustParseRecExpr(src string) *RecExpr {
	e, err := ParseRecExpr(src)
	if err != nil {
		panic(err)
	}
	return e
}

func buildRecExpr(e *RecExpr, s *sexp) (Id, error) {
	if !s.isList() {
		if strings.HasPrefix(s.lit, "?") && s.tok == atomTok {
			return 0, errors.Newf("variable %s not allowed in an expression", s.lit)
		}
		n, err := parseLeaf(s)
		if err != nil {
			return 0, err
		}
		return e.Add(n), nil
	}

	op, err := parseOp(s)
	if err != nil {
		return 0, err
	}
	children := make([]Id, 0, len(s.list)-1)
	for _, c := range s.list[1:] {
		id, err := buildRecExpr(e, c)
		if err != nil {
			return 0, err
		}
		children = append(children, id)
	}
	return e.Add(NewNode(op, children...)), nil
}
