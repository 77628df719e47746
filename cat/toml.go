package cat

import (
	"io"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
)

// tomlCatalog mirrors the catalog file layout:
//
//	[[table]]
//	id = 1
//	name = "t"
//	rows = 10000
//
//	  [[table.column]]
//	  id = 1
//	  name = "a"
//	  distinct = 100
//
//	  [table.column.histogram]
//	  rows = 10000
//	  distinct = 100
//	  buckets = [[0, 0, 1], [100, 9800, 199]]
//
//	  [[table.key]]
//	  name = "primary"
//	  primary = true
//	  columns = ["a"]
//
// Buckets are written as [upper-bound, num-range, num-eq] triples.
type tomlCatalog struct {
	Tables []tomlTable `toml:"table"`
}

type tomlTable struct {
	ID      uint32       `toml:"id"`
	Name    string       `toml:"name"`
	Rows    float64      `toml:"rows"`
	Columns []tomlColumn `toml:"column"`
	Keys    []tomlKey    `toml:"key"`
}

type tomlColumn struct {
	ID        uint32         `toml:"id"`
	Name      string         `toml:"name"`
	NotNull   bool           `toml:"not-null"`
	Distinct  float64        `toml:"distinct"`
	Histogram *tomlHistogram `toml:"histogram"`
}

type tomlHistogram struct {
	Rows     int64     `toml:"rows"`
	Distinct int64     `toml:"distinct"`
	Nulls    int64     `toml:"nulls"`
	Buckets  [][]int64 `toml:"buckets"`
}

type tomlKey struct {
	Name    string   `toml:"name"`
	Primary bool     `toml:"primary"`
	Unique  bool     `toml:"unique"`
	Columns []string `toml:"columns"`
}

// LoadTOMLFile reads a catalog from the named TOML file.
func LoadTOMLFile(path string) (*Catalog, error) {
	var raw tomlCatalog
	md, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, errors.Wrapf(err, "loading catalog %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, errors.Newf("catalog %s: unknown key %q", path, undecoded[0].String())
	}
	return raw.build()
}

// LoadTOML reads a catalog in TOML format.
func LoadTOML(r io.Reader) (*Catalog, error) {
	var raw tomlCatalog
	md, err := toml.NewDecoder(r).Decode(&raw)
	if err != nil {
		return nil, errors.Wrap(err, "loading catalog")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, errors.Newf("catalog: unknown key %q", undecoded[0].String())
	}
	return raw.build()
}

func (raw *tomlCatalog) build() (*Catalog, error) {
	c := NewCatalog()
	for i := range raw.Tables {
		rt := &raw.Tables[i]
		if rt.Name == "" {
			return nil, errors.Newf("table %d has no name", rt.ID)
		}
		tbl := &Table{ID: TableID(rt.ID), Name: TableName(rt.Name), RowCount: rt.Rows}

		for j := range rt.Columns {
			rc := &rt.Columns[j]
			if tbl.ColumnByName(ColumnName(rc.Name)) != nil {
				return nil, errors.Newf("table %s has duplicate column %s", rt.Name, rc.Name)
			}
			col := &Column{
				ID:            ColumnID(rc.ID),
				Name:          ColumnName(rc.Name),
				NotNull:       rc.NotNull,
				DistinctCount: rc.Distinct,
			}
			if rc.Histogram != nil {
				h, err := rc.Histogram.build()
				if err != nil {
					return nil, errors.Wrapf(err, "column %s.%s", rt.Name, rc.Name)
				}
				col.Stats = h
			}
			tbl.AddColumn(col)
		}

		for j := range rt.Keys {
			rk := &rt.Keys[j]
			key := &TableKey{Name: rk.Name, Primary: rk.Primary, Unique: rk.Unique || rk.Primary}
			for _, name := range rk.Columns {
				col := tbl.ColumnByName(ColumnName(name))
				if col == nil {
					return nil, errors.Newf("key %s of table %s references unknown column %s",
						rk.Name, rt.Name, name)
				}
				key.Columns = append(key.Columns, col.ID)
			}
			for k := range tbl.Keys {
				if tbl.Keys[k].Name == key.Name {
					return nil, errors.Newf("table %s has duplicate key %s", rt.Name, rk.Name)
				}
			}
			tbl.AddKey(key)
		}

		if err := c.AddTable(tbl); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (rh *tomlHistogram) build() (*Histogram, error) {
	h := &Histogram{RowCount: rh.Rows, DistinctCount: rh.Distinct, NullCount: rh.Nulls}
	for _, b := range rh.Buckets {
		if len(b) != 3 {
			return nil, errors.Newf("bucket must be [upper-bound, num-range, num-eq], got %v", b)
		}
		h.Buckets = append(h.Buckets, Bucket{UpperBound: b[0], NumRange: b[1], NumEq: b[2]})
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}
	return h, nil
}
