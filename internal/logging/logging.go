// Package logging builds the process logger from configuration.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"docqa/internal/config"
)

// New builds a zap logger. Unknown levels fall back to info and an unknown
// format to json. If the configured outputs cannot be opened a production
// logger on stderr is returned instead.
func New(cfg config.LoggingConfig) *zap.Logger {
	logger, err := build(cfg)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

func build(cfg config.LoggingConfig) (*zap.Logger, error) {
	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
	}
	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(ParseLevel(cfg.Level)),
		Development:      cfg.Format == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
	}
	return zapConfig.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
}

// ParseLevel maps a level name onto a zap level.
func ParseLevel(s string) zapcore.Level {
	switch s {
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
