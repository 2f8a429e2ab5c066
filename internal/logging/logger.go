// Package logging builds the zap loggers shared by the daemon and its services.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// New returns a logger writing to stderr. debug lowers the level to Debug and
// enables caller annotations.
func New(debug bool, format string) (*zap.Logger, error) {
	if format != FormatJSON && format != FormatConsole {
		return nil, fmt.Errorf("unsupported log format %q", format)
	}

	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}

	core := zapcore.NewCore(newEncoder(format), zapcore.Lock(os.Stderr), level)

	opts := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
	if debug {
		opts = append(opts, zap.AddCaller())
	}

	return zap.New(core, opts...), nil
}

// Must is New that panics, for command entry points.
func Must(debug bool, format string) *zap.Logger {
	logger, err := New(debug, format)
	if err != nil {
		panic(err)
	}
	return logger
}

func newEncoder(format string) zapcore.Encoder {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	if format == FormatConsole {
		return zapcore.NewConsoleEncoder(encoderCfg)
	}
	return zapcore.NewJSONEncoder(encoderCfg)
}
