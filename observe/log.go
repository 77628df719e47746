package observe

import (
	"github.com/petermattis/satopt/xform"
	"go.uber.org/zap"
)

// LogSink logs one line per record.
type LogSink struct {
	logger *zap.Logger
}

var _ xform.Observer = (*LogSink)(nil)

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) OnRound(rec xform.Record) error {
	fields := []zap.Field{
		zap.String("stage", rec.Stage),
		zap.Int("round", rec.Round),
		zap.Float64("cost", rec.Cost),
		zap.Int("relational", rec.Relational),
		zap.Int("classes", rec.Classes),
		zap.Int("nodes", rec.Nodes),
		zap.Int("merges", rec.MergeCount),
		zap.Int("min-nodes", rec.MinNodes),
		zap.Int("max-nodes", rec.MaxNodes),
		zap.Float64("avg-nodes", rec.AvgNodes),
	}
	if rec.Stage != "0" {
		fields = append(fields,
			zap.Float64("extracted", rec.Extracted),
			zap.Bool("accepted", rec.Accepted),
			zap.Int("iterations", rec.Iterations),
			zap.Stringer("stop", rec.StopReason),
		)
	}
	s.logger.Info("round", fields...)
	for _, rc := range rec.Rules {
		s.logger.Debug("rule applied",
			zap.String("stage", rec.Stage),
			zap.Int("round", rec.Round),
			zap.String("rule", rc.Name),
			zap.Int("count", rc.Count),
		)
	}
	return nil
}
