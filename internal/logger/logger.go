// Package logger builds the zap logger shared by the client and the stub backend.
package logger

import (
	"strings"

	"go.uber.org/zap"
)

// ZapLogger holds the process logger. Log is a no-op logger until Init succeeds.
type ZapLogger struct {
	Log *zap.Logger
}

// New returns a ZapLogger with a no-op Log.
func New() *ZapLogger {
	return &ZapLogger{Log: zap.NewNop()}
}

// Init replaces Log with a production JSON logger at the given level
// ("debug", "info", "warn", "error").
func (l *ZapLogger) Init(level string) error {
	lvl, err := zap.ParseAtomicLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = lvl

	zl, err := cfg.Build()
	if err != nil {
		return err
	}

	l.Log = zl
	return nil
}
