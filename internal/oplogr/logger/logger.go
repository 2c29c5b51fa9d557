package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger *zap.SugaredLogger
)

// LogConfig selects level, encoding and destinations of the global logger.
type LogConfig struct {
	Level       string
	Development bool
	File        string // optional, appended to alongside stderr
}

// InitLogger initializes the global sugared logger.
func InitLogger(lc LogConfig) error {
	cfg := zap.NewProductionConfig()
	if lc.Development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(lc.Level))
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if lc.File != "" {
		cfg.OutputPaths = append(cfg.OutputPaths, lc.File)
	}

	z, err := cfg.Build()
	if err != nil {
		return err
	}

	logger = z.Sugar()
	return nil
}

func parseLevel(level string) zapcore.Level {
	switch level {
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

// L returns the global sugared logger.
// If InitLogger has not been called, it initializes at info level.
func L() *zap.SugaredLogger {
	if logger == nil {
		_ = InitLogger(LogConfig{Level: "info"})
	}
	return logger
}

// Sync flushes buffered log entries.
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}
