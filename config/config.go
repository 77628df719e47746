// Package config holds the configuration file of the satopt tool.
package config

import (
	"io"
	"math"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"github.com/petermattis/satopt/opt"
	"github.com/petermattis/satopt/rules"
	"github.com/petermattis/satopt/util/logutil"
	"github.com/petermattis/satopt/xform"
)

// Config contains configuration options.
type Config struct {
	Optimizer Optimizer        `toml:"optimizer" json:"optimizer"`
	Stages    map[string]Stage `toml:"stages" json:"stages"`
	Cost      Cost             `toml:"cost" json:"cost"`
	Log       Log              `toml:"log" json:"log"`
}

// Optimizer is the optimizer section of the config.
type Optimizer struct {
	EnableRangeFilterScan     bool `toml:"enable-range-filter-scan" json:"enable-range-filter-scan"`
	TableIsSortedByPrimaryKey bool `toml:"table-is-sorted-by-primary-key" json:"table-is-sorted-by-primary-key"`
	// NodeLimit and ClassLimit bound every e-graph.
	NodeLimit  int `toml:"node-limit" json:"node-limit"`
	ClassLimit int `toml:"class-limit" json:"class-limit"`
}

// Stage overrides the rounds and iteration limit of a stage. The stage is
// the table key: [stages.2].
type Stage struct {
	Rounds    int `toml:"rounds" json:"rounds"`
	IterLimit int `toml:"iter-limit" json:"iter-limit"`
}

// Cost is the cost section of the config. It mirrors opt.CostConfig.
type Cost struct {
	SeqRowCost          float64 `toml:"seq-row-cost" json:"seq-row-cost"`
	IndexRowCost        float64 `toml:"index-row-cost" json:"index-row-cost"`
	IndexSeekCost       float64 `toml:"index-seek-cost" json:"index-seek-cost"`
	CPURowCost          float64 `toml:"cpu-row-cost" json:"cpu-row-cost"`
	SortRowCost         float64 `toml:"sort-row-cost" json:"sort-row-cost"`
	HashBuildCost       float64 `toml:"hash-build-cost" json:"hash-build-cost"`
	HashProbeCost       float64 `toml:"hash-probe-cost" json:"hash-probe-cost"`
	NestedLoopCost      float64 `toml:"nested-loop-cost" json:"nested-loop-cost"`
	MergeRowCost        float64 `toml:"merge-row-cost" json:"merge-row-cost"`
	ApplyPenalty        float64 `toml:"apply-penalty" json:"apply-penalty"`
	ScalarCost          float64 `toml:"scalar-cost" json:"scalar-cost"`
	MissingIndexPenalty float64 `toml:"missing-index-penalty" json:"missing-index-penalty"`
}

// Log is the log section of config.
type Log struct {
	// Log level.
	Level string `toml:"level" json:"level"`
	// Log format. one of json or text.
	Format string `toml:"format" json:"format"`
	// Disable automatic timestamps in output.
	DisableTimestamp bool `toml:"disable-timestamp" json:"disable-timestamp"`
}

// NewConfig creates a new config instance with default values.
func NewConfig() *Config {
	c := opt.DefaultCostConfig
	return &Config{
		Optimizer: Optimizer{
			NodeLimit:  opt.DefaultNodeLimit,
			ClassLimit: opt.DefaultClassLimit,
		},
		Cost: Cost{
			SeqRowCost:          c.SeqRowCost,
			IndexRowCost:        c.IndexRowCost,
			IndexSeekCost:       c.IndexSeekCost,
			CPURowCost:          c.CPURowCost,
			SortRowCost:         c.SortRowCost,
			HashBuildCost:       c.HashBuildCost,
			HashProbeCost:       c.HashProbeCost,
			NestedLoopCost:      c.NestedLoopCost,
			MergeRowCost:        c.MergeRowCost,
			ApplyPenalty:        c.ApplyPenalty,
			ScalarCost:          c.ScalarCost,
			MissingIndexPenalty: c.MissingIndexPenalty,
		},
		Log: Log{
			Level:  logutil.DefaultLogLevel,
			Format: logutil.DefaultLogFormat,
		},
	}
}

// Load reads a config file over the defaults.
func Load(path string) (*Config, error) {
	c := NewConfig()
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return nil, errors.Wrapf(err, "loading config %s", path)
	}
	if err := c.check(md); err != nil {
		return nil, err
	}
	return c, nil
}

// Parse reads a config over the defaults.
func Parse(r io.Reader) (*Config, error) {
	c := NewConfig()
	md, err := toml.NewDecoder(r).Decode(c)
	if err != nil {
		return nil, errors.Wrap(err, "parsing config")
	}
	if err := c.check(md); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) check(md toml.MetaData) error {
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return errors.Newf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	return c.Valid()
}

// Valid checks if this config is valid.
func (c *Config) Valid() error {
	if c.Optimizer.NodeLimit <= 0 {
		return errors.Newf("node-limit must be positive, got %d", c.Optimizer.NodeLimit)
	}
	if c.Optimizer.ClassLimit <= 0 {
		return errors.Newf("class-limit must be positive, got %d", c.Optimizer.ClassLimit)
	}
	known := make(map[string]bool)
	for _, s := range rules.Stages(rules.Config{}) {
		known[s.Name] = true
	}
	for name, s := range c.Stages {
		if !known[name] {
			return errors.Newf("unknown stage %q", name)
		}
		if s.Rounds < 0 || s.IterLimit < 0 {
			return errors.Newf("stage %s: rounds and iter-limit must not be negative", name)
		}
	}
	return c.Cost.Valid()
}

// Valid checks that every cost constant is finite and not negative. The
// extractor relies on costs never decreasing towards the root.
func (c *Cost) Valid() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"seq-row-cost", c.SeqRowCost},
		{"index-row-cost", c.IndexRowCost},
		{"index-seek-cost", c.IndexSeekCost},
		{"cpu-row-cost", c.CPURowCost},
		{"sort-row-cost", c.SortRowCost},
		{"hash-build-cost", c.HashBuildCost},
		{"hash-probe-cost", c.HashProbeCost},
		{"nested-loop-cost", c.NestedLoopCost},
		{"merge-row-cost", c.MergeRowCost},
		{"apply-penalty", c.ApplyPenalty},
		{"scalar-cost", c.ScalarCost},
		{"missing-index-penalty", c.MissingIndexPenalty},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) || f.v < 0 {
			return errors.Newf("cost.%s must be finite and not negative, got %g", f.name, f.v)
		}
	}
	return nil
}

// Rules returns the rule catalog configuration.
func (c *Config) Rules() rules.Config {
	return rules.Config{
		EnableRangeFilterScan:     c.Optimizer.EnableRangeFilterScan,
		TableIsSortedByPrimaryKey: c.Optimizer.TableIsSortedByPrimaryKey,
	}
}

// ToCostConfig converts the cost section to the cost model constants.
func (c *Cost) ToCostConfig() opt.CostConfig {
	return opt.CostConfig{
		SeqRowCost:          c.SeqRowCost,
		IndexRowCost:        c.IndexRowCost,
		IndexSeekCost:       c.IndexSeekCost,
		CPURowCost:          c.CPURowCost,
		SortRowCost:         c.SortRowCost,
		HashBuildCost:       c.HashBuildCost,
		HashProbeCost:       c.HashProbeCost,
		NestedLoopCost:      c.NestedLoopCost,
		MergeRowCost:        c.MergeRowCost,
		ApplyPenalty:        c.ApplyPenalty,
		ScalarCost:          c.ScalarCost,
		MissingIndexPenalty: c.MissingIndexPenalty,
	}
}

// ToLogConfig converts *Log to *logutil.LogConfig.
func (l *Log) ToLogConfig() *logutil.LogConfig {
	return &logutil.LogConfig{
		Level:            l.Level,
		Format:           l.Format,
		DisableTimestamp: l.DisableTimestamp,
	}
}

// XformOptions returns the optimizer options the config sets.
func (c *Config) XformOptions() []xform.Option {
	opts := []xform.Option{
		xform.WithNodeLimit(c.Optimizer.NodeLimit),
		xform.WithClassLimit(c.Optimizer.ClassLimit),
		xform.WithCostModel(opt.NewCoster(c.Cost.ToCostConfig())),
	}
	for name, s := range c.Stages {
		opts = append(opts, xform.WithStageLimits(name, s.Rounds, s.IterLimit))
	}
	return opts
}
