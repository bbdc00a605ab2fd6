package logger

import (
	"context"

	"github.com/smallbiznis/erpcore/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

// NewFromConfig creates a zap logger from Config and replaces globals.
func NewFromConfig(appCfg config.Config) (*zap.Logger, error) {
	return New(Config{
		ServiceName:         appCfg.AppName,
		Environment:         appCfg.Environment,
		Version:             appCfg.AppVersion,
		Level:               appCfg.LogLevel,
		Format:              appCfg.LogFormat,
		IncludeCaller:       true,
		IncludeStackOnError: appCfg.Environment != "production",
	})
}

func newGormLogger() gormlogger.Interface {
	return NewGormLogger(DefaultGormLoggerConfig())
}

func registerHooks(lc fx.Lifecycle, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			_ = log.Sync()
			return nil
		},
	})
}

// Module wires the global zap logger for the application.
var Module = fx.Module("logger",
	fx.Provide(
		NewFromConfig,
		newGormLogger,
	),
	fx.Invoke(registerHooks),
)
