// Package logging builds the process zap logger and adapts it to the small
// Logger interface the client store depends on.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the leveled key/value logging surface used by the store and
// service. keysAndValues alternate key, value.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Config selects level and encoding.
type Config struct {
	Level  string // debug|info|warn|error
	Format string // json|console
}

// New builds a production (json) or development (console) zap logger.
func New(cfg Config) (*zap.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	var zc zap.Config
	switch strings.ToLower(cfg.Format) {
	case "", "json":
		zc = zap.NewProductionConfig()
	case "console", "text":
		zc = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}

// ParseLevel maps a level name to a zap level. Empty means info.
func ParseLevel(raw string) (zapcore.Level, error) {
	if strings.TrimSpace(raw) == "" {
		return zapcore.InfoLevel, nil
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(raw)))); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", raw)
	}
	return level, nil
}

// Adapt exposes a zap logger through Logger. A nil logger yields Nop.
func Adapt(l *zap.Logger) Logger {
	if l == nil {
		return Nop()
	}
	return sugared{s: l.Sugar()}
}

type sugared struct {
	s *zap.SugaredLogger
}

func (l sugared) Debug(msg string, kv ...any) { l.s.Debugw(msg, kv...) }
func (l sugared) Info(msg string, kv ...any)  { l.s.Infow(msg, kv...) }
func (l sugared) Warn(msg string, kv ...any)  { l.s.Warnw(msg, kv...) }
func (l sugared) Error(msg string, kv ...any) { l.s.Errorw(msg, kv...) }

// Nop returns a Logger that discards everything.
func Nop() Logger { return noopLogger{} }

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
