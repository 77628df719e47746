package cat

import (
	"github.com/cockroachdb/errors"
	"github.com/google/btree"
)

// TableID identifies a table. Ids are assigned by whoever builds the catalog
// and are stable for the lifetime of the catalog.
type TableID uint32

// ColumnID identifies a column. Column ids are unique across all tables in a
// catalog, so a column reference in an expression does not need to name its
// table.
type ColumnID uint32

// SafeValue implements redact.SafeValue.
func (TableID) SafeValue() {}

// SafeValue implements redact.SafeValue.
func (ColumnID) SafeValue() {}

// Stats is the read-only interface the optimizer uses to consult table and
// column statistics and index metadata. Implementations must be safe for
// concurrent readers.
type Stats interface {
	// TableRowCount returns the number of rows in the table, if known.
	TableRowCount(id TableID) (float64, bool)

	// ColumnTable returns the table owning the column.
	ColumnTable(id ColumnID) (TableID, bool)

	// ColumnDistinctCount returns the number of distinct values in the column,
	// if known.
	ColumnDistinctCount(id ColumnID) (float64, bool)

	// ColumnHistogram returns the histogram for the column, or nil.
	ColumnHistogram(id ColumnID) *Histogram

	// HasIndex returns true if the table has an index whose leading column is
	// the given column.
	HasIndex(table TableID, col ColumnID) bool

	// PrimaryKey returns the primary key columns of the table, in key order.
	PrimaryKey(table TableID) []ColumnID

	// TableColumns returns the columns of the table, in ordinal order.
	TableColumns(table TableID) []ColumnID
}

type columnLoc struct {
	table   *Table
	ordinal int
}

// Catalog is an in-memory Stats implementation. A Catalog is mutated only
// while it is being built; once handed to the optimizer it must be treated as
// immutable.
type Catalog struct {
	// tables orders tables by id so that iteration is deterministic.
	tables *btree.BTreeG[*Table]

	names   map[TableName]*Table
	columns map[ColumnID]columnLoc
}

var _ Stats = (*Catalog)(nil)

func NewCatalog() *Catalog {
	return &Catalog{
		tables: btree.NewG[*Table](8, func(a, b *Table) bool {
			return a.ID < b.ID
		}),
		names:   make(map[TableName]*Table),
		columns: make(map[ColumnID]columnLoc),
	}
}

// AddTable registers a table. The table and column ids must not already be
// in use.
func (c *Catalog) AddTable(tbl *Table) error {
	if _, ok := c.tables.Get(tbl); ok {
		return errors.Newf("table id %d already exists", tbl.ID)
	}
	if _, ok := c.names[tbl.Name]; ok {
		return errors.Newf("table already exists: %s", tbl.Name)
	}
	for i := range tbl.Columns {
		col := &tbl.Columns[i]
		if existing, ok := c.columns[col.ID]; ok {
			return errors.Newf("column id %d of table %s already used by table %s",
				col.ID, tbl.Name, existing.table.Name)
		}
	}
	for i := range tbl.Keys {
		for _, id := range tbl.Keys[i].Columns {
			if tbl.ordinal(id) < 0 {
				return errors.Newf("key %s of table %s references unknown column %d",
					tbl.Keys[i].Name, tbl.Name, id)
			}
		}
	}

	c.tables.ReplaceOrInsert(tbl)
	c.names[tbl.Name] = tbl
	for i := range tbl.Columns {
		c.columns[tbl.Columns[i].ID] = columnLoc{table: tbl, ordinal: i}
	}
	return nil
}

// Table returns the table with the given id, or nil.
func (c *Catalog) Table(id TableID) *Table {
	tbl, _ := c.tables.Get(&Table{ID: id})
	return tbl
}

// TableByName returns the table with the given name, or nil.
func (c *Catalog) TableByName(name TableName) *Table {
	return c.names[name]
}

// Column returns the column with the given id, or nil.
func (c *Catalog) Column(id ColumnID) *Column {
	loc, ok := c.columns[id]
	if !ok {
		return nil
	}
	return &loc.table.Columns[loc.ordinal]
}

// Tables returns all tables in ascending id order.
func (c *Catalog) Tables() []*Table {
	res := make([]*Table, 0, c.tables.Len())
	c.tables.Ascend(func(tbl *Table) bool {
		res = append(res, tbl)
		return true
	})
	return res
}

func (c *Catalog) TableRowCount(id TableID) (float64, bool) {
	tbl := c.Table(id)
	if tbl == nil {
		return 0, false
	}
	return tbl.RowCount, true
}

func (c *Catalog) ColumnTable(id ColumnID) (TableID, bool) {
	loc, ok := c.columns[id]
	if !ok {
		return 0, false
	}
	return loc.table.ID, true
}

func (c *Catalog) ColumnDistinctCount(id ColumnID) (float64, bool) {
	col := c.Column(id)
	if col == nil {
		return 0, false
	}
	if col.DistinctCount > 0 {
		return col.DistinctCount, true
	}
	if col.Stats != nil && col.Stats.DistinctCount > 0 {
		return float64(col.Stats.DistinctCount), true
	}
	return 0, false
}

func (c *Catalog) ColumnHistogram(id ColumnID) *Histogram {
	col := c.Column(id)
	if col == nil {
		return nil
	}
	return col.Stats
}

func (c *Catalog) HasIndex(table TableID, col ColumnID) bool {
	tbl := c.Table(table)
	if tbl == nil {
		return false
	}
	for i := range tbl.Keys {
		if cols := tbl.Keys[i].Columns; len(cols) > 0 && cols[0] == col {
			return true
		}
	}
	return false
}

func (c *Catalog) PrimaryKey(table TableID) []ColumnID {
	tbl := c.Table(table)
	if tbl == nil {
		return nil
	}
	if key := tbl.PrimaryKey(); key != nil {
		return key.Columns
	}
	return nil
}

func (c *Catalog) TableColumns(table TableID) []ColumnID {
	tbl := c.Table(table)
	if tbl == nil {
		return nil
	}
	res := make([]ColumnID, len(tbl.Columns))
	for i := range tbl.Columns {
		res[i] = tbl.Columns[i].ID
	}
	return res
}
