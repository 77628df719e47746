package observe

import (
	"bytes"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/petermattis/satopt/cat"
	"github.com/petermattis/satopt/opt"
	"github.com/petermattis/satopt/rules"
	"github.com/petermattis/satopt/xform"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const query = "(filter (scan $t1 (list $c1 $c2)) (= $c1 5))"

func optimize(t *testing.T, obs xform.Observer) {
	t.Helper()
	c := cat.NewCatalog()
	tbl := &cat.Table{ID: 1, Name: "t", RowCount: 1000}
	tbl.AddColumn(&cat.Column{ID: 1, Name: "a", DistinctCount: 100})
	tbl.AddColumn(&cat.Column{ID: 2, Name: "b"})
	tbl.AddKey(&cat.TableKey{Name: "primary", Primary: true, Unique: true, Columns: []cat.ColumnID{1}})
	require.NoError(t, c.AddTable(tbl))

	o := xform.New(c, rules.Config{EnableRangeFilterScan: true}, xform.WithObserver(obs))
	_, err := o.Optimize(opt.MustParseRecExpr(query))
	require.NoError(t, err)
}

func family(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	t.Fatalf("metric %s not found", name)
	return nil
}

func TestSinks(t *testing.T) {
	rec := &Recorder{}
	var buf bytes.Buffer
	table := NewTableSink(&buf)
	reg := prometheus.NewRegistry()
	metrics, err := NewMetricsSink(reg)
	require.NoError(t, err)
	core, logs := observer.New(zapcore.DebugLevel)

	optimize(t, Multi(rec, table, metrics, NewLogSink(zap.New(core))))

	records := rec.Records()
	require.Len(t, records, 10)
	require.Equal(t, "0", records[0].Stage)
	require.Equal(t, "3", records[9].Stage)

	require.Equal(t, 10, logs.FilterMessage("round").Len())
	require.NotZero(t, logs.FilterMessage("rule applied").Len())

	table.Flush()
	out := buf.String()
	require.Contains(t, out, "STAGE")
	require.Contains(t, out, "ALTERNATIVES")
	require.Contains(t, out, "saturated")
	buf.Reset()
	table.Flush()
	require.NotContains(t, buf.String(), "saturated")

	// Nine rounds over three stages.
	var rounds float64
	for _, m := range family(t, reg, "satopt_runner_rounds_total").GetMetric() {
		rounds += m.GetCounter().GetValue()
	}
	require.Equal(t, 9.0, rounds)

	costs := family(t, reg, "satopt_plan_cost").GetMetric()
	require.Len(t, costs, 4)
	var applied []string
	for _, m := range family(t, reg, "satopt_runner_rule_applications_total").GetMetric() {
		applied = append(applied, m.GetLabel()[0].GetValue())
	}
	require.Contains(t, applied, "filter-scan-to-index")
}

func TestMetricsSinkRegisterTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetricsSink(reg)
	require.NoError(t, err)
	_, err = NewMetricsSink(reg)
	require.Error(t, err)
	require.Len(t, multierr.Errors(err), 5)
}

func TestMulti(t *testing.T) {
	fail := xform.ObserverFunc(func(xform.Record) error { return errors.New("boom") })
	rec := &Recorder{}
	err := Multi(fail, rec, fail).OnRound(xform.Record{Stage: "1"})
	require.Len(t, multierr.Errors(err), 2)
	require.Len(t, rec.Records(), 1)

	require.NoError(t, Multi().OnRound(xform.Record{}))
}
