// Package zaplogger implements the logging port on zap. Output is JSON on
// stdout, duplicated to LOG_FILE when that is set.
package zaplogger

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tradeyard/tradeyard/internal/observability"
)

func New(fixed ...observability.Field) observability.Logger {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.MessageKey = "msg"
	enc.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	enc.EncodeLevel = zapcore.LowercaseLevelEncoder

	sinks := []zapcore.WriteSyncer{zapcore.Lock(os.Stdout)}
	if path := os.Getenv("LOG_FILE"); path != "" {
		f, err := openLogFile(path)
		if err != nil {
			panic(fmt.Errorf("prepare log file: %w", err))
		}
		sinks = append(sinks, zapcore.Lock(f))
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(enc),
		zapcore.NewMultiWriteSyncer(sinks...),
		zapcore.InfoLevel,
	)
	l := zap.New(core).With(toZap(fixed)...)
	return &logger{l}
}

type logger struct{ l *zap.Logger }

func (z *logger) With(fields ...observability.Field) observability.Logger {
	if len(fields) == 0 {
		return z
	}
	return &logger{z.l.With(toZap(fields)...)}
}

func (z *logger) Debug(msg string, fields ...observability.Field) { z.l.Debug(msg, toZap(fields)...) }
func (z *logger) Info(msg string, fields ...observability.Field)  { z.l.Info(msg, toZap(fields)...) }
func (z *logger) Warn(msg string, fields ...observability.Field)  { z.l.Warn(msg, toZap(fields)...) }
func (z *logger) Error(msg string, fields ...observability.Field) { z.l.Error(msg, toZap(fields)...) }

// Sync flushes buffered entries. main defers it for shutdown.
func (z *logger) Sync() error { return z.l.Sync() }

func toZap(fs []observability.Field) []zap.Field {
	out := make([]zap.Field, 0, len(fs))
	for _, f := range fs {
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}
