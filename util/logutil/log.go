// Package logutil builds the zap loggers used by the command line tool.
package logutil

import (
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// DefaultLogLevel is the level used when none is configured.
	DefaultLogLevel = "info"
	// DefaultLogFormat is the format used when none is configured.
	DefaultLogFormat = "text"
)

// LogConfig is the configuration of a logger.
type LogConfig struct {
	// Level is one of debug, info, warn or error.
	Level string
	// Format is json, or text for human readable output.
	Format string
	// DisableTimestamp drops the time from every entry.
	DisableTimestamp bool
	// OutputPaths defaults to stderr.
	OutputPaths []string
}

// NewLogger builds a logger from the configuration.
func NewLogger(cfg *LogConfig) (*zap.Logger, error) {
	level := cfg.Level
	if level == "" {
		level = DefaultLogLevel
	}
	lvl, err := zap.ParseAtomicLevel(strings.ToLower(level))
	if err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", cfg.Level)
	}

	var zc zap.Config
	switch strings.ToLower(cfg.Format) {
	case "json":
		zc = zap.NewProductionConfig()
	case "", "text", "console":
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		zc.Development = false
	default:
		return nil, errors.Newf("invalid log format %q", cfg.Format)
	}
	zc.Level = lvl
	zc.Sampling = nil
	zc.DisableStacktrace = true
	zc.OutputPaths = []string{"stderr"}
	if len(cfg.OutputPaths) > 0 {
		zc.OutputPaths = cfg.OutputPaths
	}
	if cfg.DisableTimestamp {
		zc.EncoderConfig.TimeKey = ""
	}
	return zc.Build()
}
