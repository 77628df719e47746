package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testCatalog = `
[[table]]
id = 1
name = "t1"
rows = 1000

  [[table.column]]
  id = 1
  name = "c1"
  distinct = 100

  [[table.column]]
  id = 2
  name = "c2"
  distinct = 10

  [[table.key]]
  name = "primary"
  primary = true
  columns = ["c1"]
`

const testQuery = "(filter (scan $t1 (list $c1 $c2)) (= $c1 5))"

const indexConfig = `
[optimizer]
enable-range-filter-scan = true
`

func writeFile(t *testing.T, name, contents string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func run(args ...string) (string, error) {
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestOptimizeCmd(t *testing.T) {
	catalog := writeFile(t, "catalog.toml", testCatalog)
	config := writeFile(t, "satopt.toml", indexConfig)

	out, err := run("optimize", "--catalog", catalog, "--config", config, testQuery)
	require.NoError(t, err)
	require.Contains(t, out, "(indexscan $t1 (list $c1 $c2) (= $c1 5))")
	require.Contains(t, out, "cost: ")

	out, err = run("optimize", "--catalog", catalog, testQuery)
	require.NoError(t, err)
	require.NotContains(t, out, "indexscan")

	out, err = run("optimize", "--catalog", catalog, "--config", config,
		"--explain", "--costs", "--rounds-table", testQuery)
	require.NoError(t, err)
	require.Contains(t, out, "indexscan")
	require.Contains(t, out, "ROWS")
	require.Contains(t, out, "ALTERNATIVES")
	require.Contains(t, out, "saturated")
}

func TestOptimizeCmdConfig(t *testing.T) {
	catalog := writeFile(t, "catalog.toml", testCatalog)
	config := writeFile(t, "satopt.toml", `
[optimizer]
enable-range-filter-scan = true

[stages.2]
rounds = 1
`)
	out, err := run("optimize", "--catalog", catalog, "--config", config, testQuery)
	require.NoError(t, err)
	require.Contains(t, out, "indexscan")

	bad := writeFile(t, "bad.toml", "[stages.9]\nrounds = 1\n")
	_, err = run("optimize", "--config", bad, testQuery)
	require.Error(t, err)
}

func TestOptimizeCmdErrors(t *testing.T) {
	_, err := run("optimize", "(filter")
	require.ErrorContains(t, err, "unbalanced parenthesis")

	_, err = run("optimize")
	require.Error(t, err)

	_, err = run("optimize", "--catalog", "a.toml", "--sqlite", "b.db", testQuery)
	require.Error(t, err)

	_, err = run("optimize", "--catalog", filepath.Join(t.TempDir(), "missing.toml"), testQuery)
	require.Error(t, err)
}

func TestCatalogCmd(t *testing.T) {
	catalog := writeFile(t, "catalog.toml", testCatalog)
	db := filepath.Join(t.TempDir(), "stats.db")

	out, err := run("catalog", "import", catalog, db)
	require.NoError(t, err)
	require.Equal(t, "imported 1 tables\n", out)

	fromTOML, err := run("catalog", "show", "--catalog", catalog)
	require.NoError(t, err)
	require.Contains(t, fromTOML, "table t1 [id=1 rows=1000]")

	fromSQLite, err := run("catalog", "show", "--sqlite", db)
	require.NoError(t, err)
	require.Equal(t, fromTOML, fromSQLite)

	config := writeFile(t, "satopt.toml", indexConfig)
	out, err = run("optimize", "--sqlite", db, "--config", config, testQuery)
	require.NoError(t, err)
	require.Contains(t, out, "indexscan")
}
