// Package logging provides the service-wide structured logger.
//
// Every component creates a named logger with NewLoggerV2 and logs with
// a message plus Fields. Output is JSON by default and console-formatted
// when LOG_FORMAT=console.
package logging

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Fields carries structured key/value pairs for a log entry.
type Fields map[string]interface{}

var (
	baseOnce sync.Once
	base     *zap.Logger
	level    = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

func root() *zap.Logger {
	baseOnce.Do(func() {
		base = build(os.Getenv("LOG_FORMAT"), os.Getenv("LOG_LEVEL"))
	})
	return base
}

func build(format, lvl string) *zap.Logger {
	if lvl != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(lvl))); err != nil {
			level.SetLevel(zapcore.InfoLevel)
		}
	}

	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = level
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// SetLevel changes the level of every logger created by this package.
func SetLevel(lvl string) error {
	return level.UnmarshalText([]byte(strings.ToLower(lvl)))
}

// UseLogger replaces the underlying zap logger. Tests use it with
// zaptest/observer cores or zap.NewNop.
func UseLogger(l *zap.Logger) {
	baseOnce.Do(func() {})
	base = l
}

// Sync flushes buffered entries.
func Sync() {
	_ = root().Sync()
}

// LoggerV2 is a named structured logger.
type LoggerV2 struct {
	name string
}

// NewLoggerV2 returns a logger tagged with the given component name.
func NewLoggerV2(name string) *LoggerV2 {
	return &LoggerV2{name: name}
}

// With returns a child logger with the name suffixed.
func (l *LoggerV2) With(name string) *LoggerV2 {
	if l == nil || l.name == "" {
		return NewLoggerV2(name)
	}
	return NewLoggerV2(l.name + "." + name)
}

func (l *LoggerV2) zap() *zap.Logger {
	z := root()
	if l != nil && l.name != "" {
		z = z.Named(l.name)
	}
	return z
}

func (l *LoggerV2) Debug(msg string, fields ...Fields) {
	l.zap().Debug(msg, toZap(fields)...)
}

func (l *LoggerV2) Info(msg string, fields ...Fields) {
	l.zap().Info(msg, toZap(fields)...)
}

func (l *LoggerV2) Warn(msg string, fields ...Fields) {
	l.zap().Warn(msg, toZap(fields)...)
}

func (l *LoggerV2) Error(msg string, fields ...Fields) {
	l.zap().Error(msg, toZap(fields)...)
}

// Fatal logs and exits the process.
func (l *LoggerV2) Fatal(msg string, fields ...Fields) {
	l.zap().Fatal(msg, toZap(fields)...)
}

// Infof logs a formatted message without structured fields.
func Infof(format string, args ...interface{}) {
	root().Info(fmt.Sprintf(format, args...))
}

// Info logs on the root logger.
func Info(msg string, fields ...Fields) {
	root().Info(msg, toZap(fields)...)
}

func toZap(fields []Fields) []zap.Field {
	if len(fields) == 0 {
		return nil
	}

	merged := make(Fields)
	for _, f := range fields {
		for k, v := range f {
			merged[k] = v
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		switch v := merged[k].(type) {
		case error:
			out = append(out, zap.NamedError(k, v))
		case fmt.Stringer:
			out = append(out, zap.Stringer(k, v))
		default:
			out = append(out, zap.Any(k, v))
		}
	}
	return out
}
