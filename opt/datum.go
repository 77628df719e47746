package opt

import (
	"strconv"
	"strings"
)

// DatumKind is the type of a constant value.
type DatumKind uint8

const (
	NullKind DatumKind = iota
	BoolKind
	IntKind
	StringKind
)

// Datum is a constant value. Datums are comparable with == and can be used as
// a node private.
type Datum struct {
	kind DatumKind
	i    int64
	s    string
}

var (
	DNull  = Datum{}
	DTrue  = Datum{kind: BoolKind, i: 1}
	DFalse = Datum{kind: BoolKind}
)

func DBool(b bool) Datum {
	if b {
		return DTrue
	}
	return DFalse
}

func DInt(i int64) Datum {
	return Datum{kind: IntKind, i: i}
}

func DString(s string) Datum {
	return Datum{kind: StringKind, s: s}
}

func (d Datum) Kind() DatumKind { return d.kind }

func (d Datum) IsNull() bool { return d.kind == NullKind }

// Bool returns the value of a boolean datum.
func (d Datum) Bool() bool { return d.kind == BoolKind && d.i != 0 }

// Int returns the value of an integer datum.
func (d Datum) Int() int64 { return d.i }

// Str returns the value of a string datum.
func (d Datum) Str() string { return d.s }

// Compare orders datums first by kind, then by value. NULL sorts first.
func (d Datum) Compare(o Datum) int {
	if d.kind != o.kind {
		if d.kind < o.kind {
			return -1
		}
		return 1
	}
	switch d.kind {
	case BoolKind, IntKind:
		switch {
		case d.i < o.i:
			return -1
		case d.i > o.i:
			return 1
		}
		return 0
	case StringKind:
		return strings.Compare(d.s, o.s)
	}
	return 0
}

func (d Datum) String() string {
	switch d.kind {
	case BoolKind:
		return strconv.FormatBool(d.Bool())
	case IntKind:
		return strconv.FormatInt(d.i, 10)
	case StringKind:
		return "'" + strings.ReplaceAll(d.s, "'", "''") + "'"
	}
	return "null"
}
