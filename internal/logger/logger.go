// Package logger builds the zap loggers shared by the server, the CLI and migrations.
package logger

import (
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func encoderConfig(loc *time.Location) zapcore.EncoderConfig {
	if loc == nil {
		loc = time.UTC
	}
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.EncodeTime = func(t time.Time, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString(t.In(loc).Format(time.RFC3339Nano))
	}
	return enc
}

// New returns a JSON logger writing to stdout at the given level.
// Timestamps are rendered in loc as RFC3339 with nanoseconds under the "ts" key.
func New(level string, loc *time.Location) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Sampling = nil
	cfg.EncoderConfig = encoderConfig(loc)

	return cfg.Build()
}

// NewWriter returns a JSON logger that writes every entry at or above level to w.
func NewWriter(w io.Writer, level zapcore.Level, loc *time.Location) *zap.Logger {
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig(loc)), zapcore.AddSync(w), level)
	return zap.New(core)
}

// Nop returns a logger that discards everything.
func Nop() *zap.Logger {
	return zap.NewNop()
}
