package seed

import (
	"context"

	"github.com/smallbiznis/erpcore/internal/config"
	seqdomain "github.com/smallbiznis/erpcore/internal/sequence/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Module seeds SEED_TENANT_ID on start when it is set.
var Module = fx.Module("seed",
	fx.Invoke(register),
)

func register(lc fx.Lifecycle, cfg config.Config, db *gorm.DB, svc seqdomain.Service, defaults *config.SequenceDefaultsHolder, log *zap.Logger) {
	if cfg.SeedTenantID <= 0 {
		return
	}
	log = log.Named("seed")
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			res, err := EnsureTenant(ctx, db, svc, defaults.Get(), cfg.SeedTenantID, cfg.SeedOwnerUserID)
			if err != nil {
				return err
			}
			logResult(log, cfg.SeedTenantID, res)
			return nil
		},
	})
}
