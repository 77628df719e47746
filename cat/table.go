package cat

import (
	"bytes"
	"fmt"

	"github.com/cockroachdb/errors"
)

type TableName string

type Table struct {
	ID      TableID
	Name    TableName
	Columns []Column
	Keys    []TableKey

	// RowCount is the estimated number of rows in the table.
	RowCount float64
}

// AddColumn appends a column and returns its ordinal position.
func (t *Table) AddColumn(col *Column) int {
	for i := range t.Columns {
		if t.Columns[i].Name == col.Name {
			panic(errors.AssertionFailedf("table %s already has column %s", t.Name, col.Name))
		}
	}

	t.Columns = append(t.Columns, *col)
	return len(t.Columns) - 1
}

func (t *Table) AddKey(key *TableKey) *TableKey {
	for i := range t.Keys {
		existing := &t.Keys[i]
		if existing.Name == key.Name {
			panic(errors.AssertionFailedf("table %s already has key %s", t.Name, key.Name))
		}
	}

	t.Keys = append(t.Keys, *key)
	return &t.Keys[len(t.Keys)-1]
}

// ColumnByName returns the named column, or nil.
func (t *Table) ColumnByName(name ColumnName) *Column {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

func (t *Table) ordinal(id ColumnID) int {
	for i := range t.Columns {
		if t.Columns[i].ID == id {
			return i
		}
	}
	return -1
}

// PrimaryKey returns the primary key of the table, or nil if it has none.
func (t *Table) PrimaryKey() *TableKey {
	for i := range t.Keys {
		k := &t.Keys[i]
		if k.Primary {
			return k
		}
	}

	return nil
}

func (t *Table) String() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "table %s [id=%d rows=%g]\n", t.Name, t.ID, t.RowCount)
	for _, col := range t.Columns {
		fmt.Fprintf(&buf, "  %s:%d", col.Name, col.ID)
		if col.NotNull {
			buf.WriteString(" NOT NULL")
		} else {
			buf.WriteString(" NULL")
		}
		buf.WriteString("\n")
	}

	for _, key := range t.Keys {
		buf.WriteString("  (")
		for i, id := range key.Columns {
			if i > 0 {
				buf.WriteString(",")
			}
			if ord := t.ordinal(id); ord >= 0 {
				buf.WriteString(string(t.Columns[ord].Name))
			} else {
				fmt.Fprintf(&buf, "?%d", id)
			}
		}
		buf.WriteString(")")

		switch {
		case key.Primary:
			buf.WriteString(" PRIMARY KEY")
		case key.Unique:
			buf.WriteString(" UNIQUE")
		default:
			buf.WriteString(" INDEX")
		}
		buf.WriteString("\n")
	}

	return buf.String()
}

// TableKey describes a primary key, unique constraint or secondary index.
// Every key is backed by an index on its columns.
type TableKey struct {
	Name    string
	Primary bool
	Unique  bool
	Columns []ColumnID
}
