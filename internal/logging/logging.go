// Package logging builds the zap logger used across the daemon.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sweeney/co2-monitor/internal/logic"
)

// New creates a logger.
// level: "debug", "info", "warn", "error" (default "info").
// format: "json" or "console" (default "json").
func New(level, format string) (*zap.Logger, error) {
	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.OutputPaths = []string{"stdout"}
		cfg.ErrorOutputPaths = []string{"stderr"}
	}
	cfg.Level = zap.NewAtomicLevelAt(ParseLevel(level))

	log, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		log = log.With(zap.String("hostname", hostname))
	}
	return log, nil
}

// ParseLevel maps a level name to a zap level, defaulting to info.
func ParseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Summary formats the one-line reading summary logged every decision tick.
func Summary(ppm float64, tier logic.Tier, warning bool) string {
	s := fmt.Sprintf("PPM: %.1f | Quality: %s", ppm, tier)
	if warning {
		s += " | WARNING ACTIVE"
	}
	return s
}

// ReadingFields returns the structured fields that accompany Summary.
func ReadingFields(r logic.Reading) []zap.Field {
	return []zap.Field{
		zap.Float64("ppm", r.PPM),
		zap.String("tier", r.Tier.String()),
		zap.String("mode", string(r.Mode)),
		zap.Float64("voltage", r.Voltage),
		zap.Float64("rs_kohm", r.Resistance),
		zap.Float64("ratio", r.Ratio),
		zap.Float64("r0_kohm", r.R0),
	}
}
