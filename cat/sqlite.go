package cat

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"
)

// SQLiteSchema creates the tables that persist a catalog and its statistics.
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS tables (
	id        INTEGER PRIMARY KEY,
	name      TEXT NOT NULL UNIQUE,
	row_count REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS columns (
	id             INTEGER PRIMARY KEY,
	table_id       INTEGER NOT NULL,
	ordinal        INTEGER NOT NULL,
	name           TEXT NOT NULL,
	not_null       INTEGER NOT NULL,
	distinct_count REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS keys (
	table_id   INTEGER NOT NULL,
	name       TEXT NOT NULL,
	is_primary INTEGER NOT NULL,
	is_unique  INTEGER NOT NULL,
	seq        INTEGER NOT NULL,
	column_id  INTEGER NOT NULL,
	PRIMARY KEY (table_id, name, seq)
);
CREATE TABLE IF NOT EXISTS histograms (
	column_id      INTEGER PRIMARY KEY,
	row_count      INTEGER NOT NULL,
	distinct_count INTEGER NOT NULL,
	null_count     INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS buckets (
	column_id   INTEGER NOT NULL,
	seq         INTEGER NOT NULL,
	upper_bound INTEGER NOT NULL,
	num_range   INTEGER NOT NULL,
	num_eq      INTEGER NOT NULL,
	PRIMARY KEY (column_id, seq)
);`

// OpenSQLite opens (creating if needed) a statistics database.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	if _, err := db.ExecContext(ctx, SQLiteSchema); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "initializing %s", path)
	}
	return db, nil
}

// clearTableStmts delete a previously saved table with the same id or name,
// along with its columns, keys and histograms. ?1 is the table id and ?2 its
// name.
var clearTableStmts = []string{
	`DELETE FROM buckets WHERE column_id IN (SELECT id FROM columns WHERE table_id IN
		(SELECT id FROM tables WHERE id = ?1 OR name = ?2))`,
	`DELETE FROM histograms WHERE column_id IN (SELECT id FROM columns WHERE table_id IN
		(SELECT id FROM tables WHERE id = ?1 OR name = ?2))`,
	`DELETE FROM columns WHERE table_id IN (SELECT id FROM tables WHERE id = ?1 OR name = ?2)`,
	`DELETE FROM keys WHERE table_id IN (SELECT id FROM tables WHERE id = ?1 OR name = ?2)`,
	`DELETE FROM tables WHERE id = ?1 OR name = ?2`,
}

// clearColumnStmts delete the histogram of a column id that may have been
// saved with another table.
var clearColumnStmts = []string{
	"DELETE FROM buckets WHERE column_id = ?",
	"DELETE FROM histograms WHERE column_id = ?",
}

// SaveSQLite writes every table of the catalog to db in a single transaction.
// A table that was saved before, by id or by name, is replaced.
func SaveSQLite(ctx context.Context, db *sql.DB, c *Catalog) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, tbl := range c.Tables() {
		for _, stmt := range clearTableStmts {
			if _, err = tx.ExecContext(ctx, stmt, int64(tbl.ID), string(tbl.Name)); err != nil {
				return errors.Wrapf(err, "clearing table %s", tbl.Name)
			}
		}
		if _, err = tx.ExecContext(ctx,
			"INSERT OR REPLACE INTO tables (id, name, row_count) VALUES (?, ?, ?)",
			int64(tbl.ID), string(tbl.Name), tbl.RowCount); err != nil {
			return errors.Wrapf(err, "saving table %s", tbl.Name)
		}

		for i := range tbl.Columns {
			col := &tbl.Columns[i]
			for _, stmt := range clearColumnStmts {
				if _, err = tx.ExecContext(ctx, stmt, int64(col.ID)); err != nil {
					return errors.Wrapf(err, "clearing column %s.%s", tbl.Name, col.Name)
				}
			}
			if _, err = tx.ExecContext(ctx,
				"INSERT OR REPLACE INTO columns (id, table_id, ordinal, name, not_null, distinct_count) VALUES (?, ?, ?, ?, ?, ?)",
				int64(col.ID), int64(tbl.ID), i, string(col.Name), col.NotNull, col.DistinctCount); err != nil {
				return errors.Wrapf(err, "saving column %s.%s", tbl.Name, col.Name)
			}
			if col.Stats == nil {
				continue
			}
			h := col.Stats
			if _, err = tx.ExecContext(ctx,
				"INSERT OR REPLACE INTO histograms (column_id, row_count, distinct_count, null_count) VALUES (?, ?, ?, ?)",
				int64(col.ID), h.RowCount, h.DistinctCount, h.NullCount); err != nil {
				return errors.Wrapf(err, "saving histogram %s.%s", tbl.Name, col.Name)
			}
			for seq, b := range h.Buckets {
				if _, err = tx.ExecContext(ctx,
					"INSERT OR REPLACE INTO buckets (column_id, seq, upper_bound, num_range, num_eq) VALUES (?, ?, ?, ?, ?)",
					int64(col.ID), seq, b.UpperBound, b.NumRange, b.NumEq); err != nil {
					return errors.Wrapf(err, "saving histogram %s.%s", tbl.Name, col.Name)
				}
			}
		}

		for _, key := range tbl.Keys {
			for seq, id := range key.Columns {
				if _, err = tx.ExecContext(ctx,
					"INSERT OR REPLACE INTO keys (table_id, name, is_primary, is_unique, seq, column_id) VALUES (?, ?, ?, ?, ?, ?)",
					int64(tbl.ID), key.Name, key.Primary, key.Unique, seq, int64(id)); err != nil {
					return errors.Wrapf(err, "saving key %s.%s", tbl.Name, key.Name)
				}
			}
		}
	}

	return tx.Commit()
}

// LoadSQLite builds a catalog from the tables described by SQLiteSchema.
func LoadSQLite(ctx context.Context, db *sql.DB) (*Catalog, error) {
	var tables []*Table
	byID := make(map[TableID]*Table)

	rows, err := db.QueryContext(ctx, "SELECT id, name, row_count FROM tables ORDER BY id")
	if err != nil {
		return nil, errors.Wrap(err, "loading tables")
	}
	for rows.Next() {
		var id int64
		var name string
		var rowCount float64
		if err := rows.Scan(&id, &name, &rowCount); err != nil {
			rows.Close()
			return nil, err
		}
		tbl := &Table{ID: TableID(id), Name: TableName(name), RowCount: rowCount}
		tables = append(tables, tbl)
		byID[tbl.ID] = tbl
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	hists, err := loadHistograms(ctx, db)
	if err != nil {
		return nil, err
	}

	rows, err = db.QueryContext(ctx,
		"SELECT id, table_id, name, not_null, distinct_count FROM columns ORDER BY table_id, ordinal")
	if err != nil {
		return nil, errors.Wrap(err, "loading columns")
	}
	for rows.Next() {
		var id, tableID int64
		var name string
		var notNull bool
		var distinct float64
		if err := rows.Scan(&id, &tableID, &name, &notNull, &distinct); err != nil {
			rows.Close()
			return nil, err
		}
		tbl, ok := byID[TableID(tableID)]
		if !ok {
			rows.Close()
			return nil, errors.Newf("column %s references unknown table %d", name, tableID)
		}
		if tbl.ColumnByName(ColumnName(name)) != nil {
			rows.Close()
			return nil, errors.Newf("table %s has duplicate column %s", tbl.Name, name)
		}
		tbl.AddColumn(&Column{
			ID:            ColumnID(id),
			Name:          ColumnName(name),
			NotNull:       notNull,
			DistinctCount: distinct,
			Stats:         hists[ColumnID(id)],
		})
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	rows, err = db.QueryContext(ctx,
		"SELECT table_id, name, is_primary, is_unique, column_id FROM keys ORDER BY table_id, name, seq")
	if err != nil {
		return nil, errors.Wrap(err, "loading keys")
	}
	var key *TableKey
	var keyTable *Table
	for rows.Next() {
		var tableID, columnID int64
		var name string
		var primary, unique bool
		if err := rows.Scan(&tableID, &name, &primary, &unique, &columnID); err != nil {
			rows.Close()
			return nil, err
		}
		tbl, ok := byID[TableID(tableID)]
		if !ok {
			rows.Close()
			return nil, errors.Newf("key %s references unknown table %d", name, tableID)
		}
		if key == nil || keyTable != tbl || key.Name != name {
			key = tbl.AddKey(&TableKey{Name: name, Primary: primary, Unique: unique})
			keyTable = tbl
		}
		key.Columns = append(key.Columns, ColumnID(columnID))
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	c := NewCatalog()
	for _, tbl := range tables {
		if err := c.AddTable(tbl); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func loadHistograms(ctx context.Context, db *sql.DB) (map[ColumnID]*Histogram, error) {
	hists := make(map[ColumnID]*Histogram)
	rows, err := db.QueryContext(ctx,
		"SELECT column_id, row_count, distinct_count, null_count FROM histograms")
	if err != nil {
		return nil, errors.Wrap(err, "loading histograms")
	}
	for rows.Next() {
		var id int64
		h := &Histogram{}
		if err := rows.Scan(&id, &h.RowCount, &h.DistinctCount, &h.NullCount); err != nil {
			rows.Close()
			return nil, err
		}
		hists[ColumnID(id)] = h
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	rows, err = db.QueryContext(ctx,
		"SELECT column_id, upper_bound, num_range, num_eq FROM buckets ORDER BY column_id, seq")
	if err != nil {
		return nil, errors.Wrap(err, "loading buckets")
	}
	for rows.Next() {
		var id int64
		var b Bucket
		if err := rows.Scan(&id, &b.UpperBound, &b.NumRange, &b.NumEq); err != nil {
			rows.Close()
			return nil, err
		}
		h, ok := hists[ColumnID(id)]
		if !ok {
			rows.Close()
			return nil, errors.Newf("bucket references column %d without a histogram", id)
		}
		h.Buckets = append(h.Buckets, b)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	for id, h := range hists {
		if err := h.Validate(); err != nil {
			return nil, errors.Wrapf(err, "histogram for column %d", id)
		}
	}
	return hists, nil
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	return rows.Close()
}
