// Package logger provides the zap-backed implementation of the es.Logger
// contract used by every orchestrator component.
package logger

import (
	"context"
	"fmt"

	"github.com/getpup/pupsourcing/es"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger implements es.Logger on top of a zap.SugaredLogger.
// Log arguments are alternating key/value pairs.
type ZapLogger struct {
	log *zap.SugaredLogger
}

var _ es.Logger = (*ZapLogger)(nil)

// FromZap wraps an existing zap logger.
func FromZap(l *zap.Logger) *ZapLogger {
	return &ZapLogger{log: l.Sugar()}
}

// NewNop returns a logger that discards everything.
func NewNop() *ZapLogger {
	return FromZap(zap.NewNop())
}

// New builds a production logger. format is "json" or "text"; level is one
// of debug, info, warn, error or none.
func New(format, level string) (*ZapLogger, error) {
	if level == "none" {
		return NewNop(), nil
	}

	var lvl zapcore.Level
	switch level {
	case "debug":
		lvl = zap.DebugLevel
	case "info", "":
		lvl = zap.InfoLevel
	case "warn":
		lvl = zap.WarnLevel
	case "error":
		lvl = zap.ErrorLevel
	default:
		return nil, fmt.Errorf("unknown log level: %s", level)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true

	switch format {
	case "json", "":
	case "text":
		cfg.Encoding = "console"
		cfg.DisableCaller = true
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, fmt.Errorf("unknown log format: %s", format)
	}

	log, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	return FromZap(log), nil
}

// Debug implements es.Logger.
func (l *ZapLogger) Debug(ctx context.Context, msg string, args ...interface{}) {
	l.log.Debugw(msg, args...)
}

// Info implements es.Logger.
func (l *ZapLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	l.log.Infow(msg, args...)
}

// Warn logs at warning level.
func (l *ZapLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	l.log.Warnw(msg, args...)
}

// Error implements es.Logger.
func (l *ZapLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	l.log.Errorw(msg, args...)
}

// With returns a child logger that adds args to every entry.
func (l *ZapLogger) With(args ...interface{}) *ZapLogger {
	return &ZapLogger{log: l.log.With(args...)}
}

// Sync flushes buffered entries.
func (l *ZapLogger) Sync() error {
	return l.log.Sync()
}

type warner interface {
	Warn(ctx context.Context, msg string, args ...interface{})
}

// Warn logs at warning level when l supports it and at info level otherwise.
// A nil logger is ignored.
func Warn(ctx context.Context, l es.Logger, msg string, args ...interface{}) {
	if l == nil {
		return
	}
	if w, ok := l.(warner); ok {
		w.Warn(ctx, msg, args...)
		return
	}
	l.Info(ctx, msg, args...)
}
