package observe

import (
	"github.com/petermattis/satopt/xform"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
)

// MetricsSink exports the latest record of every stage as gauges, and counts
// rounds and rule applications.
type MetricsSink struct {
	cost    *prometheus.GaugeVec
	classes *prometheus.GaugeVec
	nodes   *prometheus.GaugeVec
	rounds  *prometheus.CounterVec
	rules   *prometheus.CounterVec
}

var _ xform.Observer = (*MetricsSink)(nil)

// NewMetricsSink creates the metrics and registers them with reg.
func NewMetricsSink(reg prometheus.Registerer) (*MetricsSink, error) {
	s := &MetricsSink{
		cost: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "satopt",
				Subsystem: "plan",
				Name:      "cost",
				Help:      "Estimated cost of the plan carried out of the last round.",
			}, []string{"stage"}),
		classes: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "satopt",
				Subsystem: "egraph",
				Name:      "classes",
				Help:      "Number of classes of the e-graph of the last round.",
			}, []string{"stage"}),
		nodes: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "satopt",
				Subsystem: "egraph",
				Name:      "nodes",
				Help:      "Number of nodes of the e-graph of the last round.",
			}, []string{"stage"}),
		rounds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "satopt",
				Subsystem: "runner",
				Name:      "rounds_total",
				Help:      "Counter of rounds by the reason saturation stopped.",
			}, []string{"stage", "stop"}),
		rules: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "satopt",
				Subsystem: "runner",
				Name:      "rule_applications_total",
				Help:      "Counter of rule applications that changed the e-graph.",
			}, []string{"rule"}),
	}

	var err error
	for _, c := range []prometheus.Collector{s.cost, s.classes, s.nodes, s.rounds, s.rules} {
		err = multierr.Append(err, reg.Register(c))
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MetricsSink) OnRound(rec xform.Record) error {
	s.cost.WithLabelValues(rec.Stage).Set(rec.Cost)
	s.classes.WithLabelValues(rec.Stage).Set(float64(rec.Classes))
	s.nodes.WithLabelValues(rec.Stage).Set(float64(rec.Nodes))
	if rec.Stage == "0" {
		return nil
	}
	s.rounds.WithLabelValues(rec.Stage, rec.StopReason.String()).Inc()
	for _, rc := range rec.Rules {
		s.rules.WithLabelValues(rc.Name).Add(float64(rc.Count))
	}
	return nil
}
