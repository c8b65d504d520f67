// Package observability builds the logger and metrics shared by the client.
package observability

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger creates a structured zap.Logger writing JSON to stderr.
// debug forces the debug level; otherwise level is parsed, falling back to warn.
func NewLogger(level string, debug bool) (*zap.Logger, error) {
	lvl := zapcore.WarnLevel
	if debug {
		lvl = zapcore.DebugLevel
	} else if err := lvl.Set(strings.ToLower(level)); err != nil {
		lvl = zapcore.WarnLevel
	}

	zapCfg := zap.Config{
		Level:    zap.NewAtomicLevelAt(lvl),
		Encoding: "json",
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey: "message",
			LevelKey:   "level",
			TimeKey:    "ts",
			NameKey:    "logger",
			EncodeLevel: func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
				enc.AppendString(l.String())
			},
			EncodeTime: zapcore.ISO8601TimeEncoder,
		},
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return zapCfg.Build()
}
