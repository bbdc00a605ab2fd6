package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/erpcore/internal/clock"
	"github.com/smallbiznis/erpcore/internal/config"
	"github.com/smallbiznis/erpcore/internal/logger"
	"github.com/smallbiznis/erpcore/internal/migration"
	"github.com/smallbiznis/erpcore/internal/observability"
	"github.com/smallbiznis/erpcore/internal/seed"
	"github.com/smallbiznis/erpcore/internal/server"
	"github.com/smallbiznis/erpcore/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Domains and HTTP surface
		server.Module,
		seed.Module,

		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
