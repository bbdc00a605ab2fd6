package migration

import (
	"github.com/smallbiznis/erpcore/internal/config"
	"github.com/smallbiznis/erpcore/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(cfg config.Config, conn *gorm.DB, log *zap.Logger) error {
		log = log.Named("migration")
		if !cfg.RunMigrations {
			log.Info("migrations disabled")
			return nil
		}
		if !db.IsPostgres(conn) {
			log.Info("applying schema from models", zap.String("dialect", conn.Dialector.Name()))
			return AutoMigrate(conn)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		if err := RunMigrations(sqlDB); err != nil {
			return err
		}
		log.Info("migrations applied")
		return nil
	}),
)
