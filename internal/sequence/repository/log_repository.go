package repository

import (
	"context"

	"github.com/smallbiznis/erpcore/internal/sequence/domain"
	"github.com/smallbiznis/erpcore/pkg/db/pagination"
	"gorm.io/gorm"
)

type logRepo struct{}

func ProvideLogRepository() domain.LogRepository {
	return &logRepo{}
}

func (r *logRepo) Insert(ctx context.Context, db *gorm.DB, entry *domain.SerialNumberLog) error {
	if entry == nil {
		return nil
	}
	return db.WithContext(ctx).Create(entry).Error
}

func (r *logRepo) ExistsNumber(ctx context.Context, db *gorm.DB, tenantID int64, name, value string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.SerialNumberLog{}).
		Where("tenant_id = ? AND sequence_name = ? AND generated_number = ?", tenantID, name, value).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *logRepo) List(ctx context.Context, db *gorm.DB, filter domain.LogFilter) ([]domain.SerialNumberLog, error) {
	var items []domain.SerialNumberLog
	stmt := db.WithContext(ctx).
		Model(&domain.SerialNumberLog{}).
		Where("tenant_id = ?", filter.TenantID)

	if filter.SequenceName != "" {
		stmt = stmt.Where("sequence_name = ?", filter.SequenceName)
	}
	if filter.Override != nil {
		stmt = stmt.Where("override = ?", *filter.Override)
	}

	if err := stmt.Scopes(pagination.Keyset(filter.Cursor, filter.Limit)).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
