package cat

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

const testCatalogTOML = `
[[table]]
id = 1
name = "t"
rows = 10000

  [[table.column]]
  id = 1
  name = "a"
  not-null = true
  distinct = 10000

  [[table.column]]
  id = 2
  name = "b"

    [table.column.histogram]
    rows = 1000
    distinct = 100
    buckets = [[0, 0, 1], [10, 90, 10], [100, 800, 99]]

  [[table.key]]
  name = "primary"
  primary = true
  columns = ["a"]

[[table]]
id = 2
name = "u"
rows = 50

  [[table.column]]
  id = 3
  name = "x"

  [[table.key]]
  name = "u_x_idx"
  columns = ["x"]
`

func TestLoadTOML(t *testing.T) {
	c, err := LoadTOML(strings.NewReader(testCatalogTOML))
	require.NoError(t, err)
	checkTestCatalog(t, c)
}

func checkTestCatalog(t *testing.T, c *Catalog) {
	t.Helper()

	tables := c.Tables()
	require.Len(t, tables, 2)
	require.Equal(t, TableName("t"), tables[0].Name)
	require.Equal(t, TableName("u"), tables[1].Name)
	require.Same(t, tables[0], c.TableByName("t"))

	rows, ok := c.TableRowCount(1)
	require.True(t, ok)
	require.Equal(t, 10000.0, rows)
	_, ok = c.TableRowCount(9)
	require.False(t, ok)

	tbl, ok := c.ColumnTable(3)
	require.True(t, ok)
	require.Equal(t, TableID(2), tbl)

	distinct, ok := c.ColumnDistinctCount(1)
	require.True(t, ok)
	require.Equal(t, 10000.0, distinct)

	// Falls back to the histogram.
	distinct, ok = c.ColumnDistinctCount(2)
	require.True(t, ok)
	require.Equal(t, 100.0, distinct)

	_, ok = c.ColumnDistinctCount(3)
	require.False(t, ok)

	require.Nil(t, c.ColumnHistogram(1))
	h := c.ColumnHistogram(2)
	require.NotNil(t, h)
	require.Len(t, h.Buckets, 3)
	require.Equal(t, Bucket{UpperBound: 100, NumRange: 800, NumEq: 99}, h.Buckets[2])

	require.True(t, c.HasIndex(1, 1))
	require.False(t, c.HasIndex(1, 2))
	require.True(t, c.HasIndex(2, 3))
	require.Equal(t, []ColumnID{1}, c.PrimaryKey(1))
	require.Nil(t, c.PrimaryKey(2))
	require.Equal(t, []ColumnID{1, 2}, c.TableColumns(1))
	require.True(t, c.Column(1).NotNull)
	require.False(t, c.Column(2).NotNull)
}

func TestLoadTOMLErrors(t *testing.T) {
	testCases := []struct {
		name string
		in   string
		err  string
	}{
		{
			name: "unknown-key",
			in:   "[[table]]\nid = 1\nname = \"t\"\nbogus = 1\n",
			err:  "unknown key",
		},
		{
			name: "unknown-key-column",
			in:   "[[table]]\nid = 1\nname = \"t\"\n[[table.key]]\nname = \"k\"\ncolumns = [\"z\"]\n",
			err:  "unknown column z",
		},
		{
			name: "bad-bucket",
			in: "[[table]]\nid = 1\nname = \"t\"\n[[table.column]]\nid = 1\nname = \"a\"\n" +
				"[table.column.histogram]\nbuckets = [[1, 2]]\n",
			err: "bucket must be",
		},
		{
			name: "duplicate-table-id",
			in:   "[[table]]\nid = 1\nname = \"t\"\n[[table]]\nid = 1\nname = \"u\"\n",
			err:  "table id 1 already exists",
		},
		{
			name: "duplicate-column-id",
			in: "[[table]]\nid = 1\nname = \"t\"\n[[table.column]]\nid = 1\nname = \"a\"\n" +
				"[[table]]\nid = 2\nname = \"u\"\n[[table.column]]\nid = 1\nname = \"b\"\n",
			err: "column id 1 of table u already used by table t",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadTOML(strings.NewReader(tc.in))
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.err)
		})
	}
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, err := LoadTOML(strings.NewReader(testCatalogTOML))
	require.NoError(t, err)

	db, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "stats.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, SaveSQLite(ctx, db, c))

	loaded, err := LoadSQLite(ctx, db)
	require.NoError(t, err)
	checkTestCatalog(t, loaded)
	require.Equal(t, c.Table(1).String(), loaded.Table(1).String())
}

func TestSQLiteReimport(t *testing.T) {
	ctx := context.Background()
	c, err := LoadTOML(strings.NewReader(testCatalogTOML))
	require.NoError(t, err)

	db, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "stats.db"))
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, SaveSQLite(ctx, db, c))

	// Table t is saved again with fewer buckets, no key, and without column
	// a; u is left alone.
	updated, err := LoadTOML(strings.NewReader(`
[[table]]
id = 1
name = "t"
rows = 2000

  [[table.column]]
  id = 2
  name = "b"

    [table.column.histogram]
    rows = 2000
    distinct = 50
    buckets = [[200, 0, 1], [300, 999, 0]]
`))
	require.NoError(t, err)
	require.NoError(t, SaveSQLite(ctx, db, updated))
	// Saving twice changes nothing.
	require.NoError(t, SaveSQLite(ctx, db, updated))

	loaded, err := LoadSQLite(ctx, db)
	require.NoError(t, err)
	require.Len(t, loaded.Tables(), 2)
	require.Equal(t, updated.Table(1).String(), loaded.Table(1).String())
	require.Nil(t, loaded.Column(1))
	require.Empty(t, loaded.PrimaryKey(1))

	h := loaded.ColumnHistogram(2)
	require.NotNil(t, h)
	require.Equal(t, []Bucket{{UpperBound: 200, NumEq: 1}, {UpperBound: 300, NumRange: 999}}, h.Buckets)
	require.Equal(t, c.Table(2).String(), loaded.Table(2).String())

	// A table renamed onto the id of another replaces it.
	renamed := NewCatalog()
	require.NoError(t, renamed.AddTable(&Table{ID: 2, Name: "t", RowCount: 1}))
	require.NoError(t, SaveSQLite(ctx, db, renamed))
	loaded, err = LoadSQLite(ctx, db)
	require.NoError(t, err)
	require.Len(t, loaded.Tables(), 1)
	require.Equal(t, TableID(2), loaded.TableByName("t").ID)
	require.Empty(t, loaded.Table(2).Columns)
}

func TestTableString(t *testing.T) {
	tbl := &Table{ID: 7, Name: "t", RowCount: 5}
	tbl.AddColumn(&Column{ID: 1, Name: "a", NotNull: true})
	tbl.AddColumn(&Column{ID: 2, Name: "b"})
	tbl.AddKey(&TableKey{Name: "primary", Primary: true, Columns: []ColumnID{1}})
	tbl.AddKey(&TableKey{Name: "b_idx", Columns: []ColumnID{2, 1}})

	expected := `table t [id=7 rows=5]
  a:1 NOT NULL
  b:2 NULL
  (a) PRIMARY KEY
  (b,a) INDEX
`
	require.Equal(t, expected, tbl.String())
	for _, fn := range []func(){
		func() { tbl.AddColumn(&Column{ID: 3, Name: "a"}) },
		func() { tbl.AddKey(&TableKey{Name: "primary"}) },
	} {
		err := func() (err error) {
			defer func() { err, _ = recover().(error) }()
			fn()
			return nil
		}()
		require.Error(t, err)
		require.True(t, errors.HasAssertionFailure(err))
		require.Contains(t, err.Error(), "table t already has")
	}
}
