package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"lendus/internal/platform/config"
)

// New builds the process logger. JSON output in production, console otherwise.
func New(cfg config.Log) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}
