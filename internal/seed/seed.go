package seed

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/samber/lo"
	"github.com/smallbiznis/erpcore/internal/authorization"
	"github.com/smallbiznis/erpcore/internal/config"
	seqdomain "github.com/smallbiznis/erpcore/internal/sequence/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const systemActor = "system"

type Result struct {
	OwnerCreated bool
	Created      []string
	Skipped      []string
}

// EnsureTenant bootstraps a tenant with an owner membership and one sequence
// per configured preset. Existing rows are left untouched.
func EnsureTenant(ctx context.Context, db *gorm.DB, svc seqdomain.Service, defaults config.SequenceDefaults, tenantID, ownerUserID int64) (*Result, error) {
	if db == nil {
		return nil, errors.New("seed database handle is required")
	}
	if tenantID <= 0 {
		return nil, seqdomain.ErrInvalidTenant
	}

	res := &Result{}
	if ownerUserID > 0 {
		created, err := ensureOwner(ctx, db, tenantID, ownerUserID)
		if err != nil {
			return nil, err
		}
		res.OwnerCreated = created
	}

	names := lo.Keys(defaults.Presets)
	sort.Strings(names)
	for _, name := range names {
		_, err := svc.CreateSequence(ctx, seqdomain.CreateRequest{
			TenantID: tenantID,
			Actor:    systemActor,
			Name:     name,
		})
		switch {
		case err == nil:
			res.Created = append(res.Created, name)
		case errors.Is(err, seqdomain.ErrSequenceExists):
			res.Skipped = append(res.Skipped, name)
		default:
			return nil, fmt.Errorf("seed sequence %s: %w", name, err)
		}
	}
	return res, nil
}

func ensureOwner(ctx context.Context, db *gorm.DB, tenantID, userID int64) (bool, error) {
	member := authorization.TenantMember{
		TenantID: tenantID,
		UserID:   userID,
		Role:     authorization.RoleOwner,
	}
	tx := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&member)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func logResult(log *zap.Logger, tenantID int64, res *Result) {
	log.Info("tenant seeded",
		zap.Int64("tenant_id", tenantID),
		zap.Bool("owner_created", res.OwnerCreated),
		zap.Strings("sequences_created", res.Created),
		zap.Strings("sequences_skipped", res.Skipped),
	)
}
