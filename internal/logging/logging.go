// Package logging builds the zap loggers used across the service.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLoggerConfig is a console config with ISO8601 timestamps and no
// stacktraces.
func NewLoggerConfig(debug bool) zap.Config {
	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
	}
	return zap.Config{
		Level:    zap.NewAtomicLevelAt(level),
		Encoding: "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		DisableStacktrace: true,
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
	}
}

// NewLogger returns a named sugared logger. It falls back to a no-op logger
// if the config cannot be built.
func NewLogger(name string, debug bool) *zap.SugaredLogger {
	logger, err := NewLoggerConfig(debug).Build()
	if err != nil {
		return NewNop()
	}
	return logger.Named(name).Sugar()
}

func NewNop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// EveryN logs at most once per n calls. It is not safe for concurrent use.
type EveryN struct {
	N       int
	counter int
}

func (e *EveryN) Warnw(logger *zap.SugaredLogger, msg string, keysAndValues ...any) {
	e.counter++
	n := e.N
	if n < 1 {
		n = 1
	}
	if e.counter%n == 0 {
		logger.Warnw(msg, append(keysAndValues, "occurrences", e.counter)...)
	}
}
