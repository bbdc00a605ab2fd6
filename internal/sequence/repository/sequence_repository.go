package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/smallbiznis/erpcore/internal/sequence/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type sequenceRepo struct{}

func ProvideSequenceRepository() domain.Repository {
	return &sequenceRepo{}
}

func (r *sequenceRepo) Create(ctx context.Context, db *gorm.DB, seq *domain.Sequence) error {
	return db.WithContext(ctx).Create(seq).Error
}

func (r *sequenceRepo) FindByName(ctx context.Context, db *gorm.DB, tenantID int64, name string) (*domain.Sequence, error) {
	var seq domain.Sequence
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND sequence_name = ?", tenantID, name).
		Order("id ASC").
		Take(&seq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &seq, nil
}

func (r *sequenceRepo) FindForUpdate(ctx context.Context, db *gorm.DB, tenantID int64, name string, period domain.ResetPeriod) (*domain.Sequence, error) {
	var seq domain.Sequence
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND sequence_name = ? AND reset_period = ?", tenantID, name, string(period)).
		Take(&seq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &seq, nil
}

func (r *sequenceRepo) List(ctx context.Context, db *gorm.DB, tenantID int64, filter domain.ListFilter) ([]domain.Sequence, error) {
	var items []domain.Sequence
	stmt := db.WithContext(ctx).
		Model(&domain.Sequence{}).
		Where("tenant_id = ?", tenantID)

	if name := strings.TrimSpace(filter.Name); name != "" {
		stmt = stmt.Where("sequence_name = ?", name)
	}
	if period := strings.TrimSpace(filter.ResetPeriod); period != "" {
		stmt = stmt.Where("reset_period = ?", period)
	}
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}

	if err := stmt.Order("sequence_name ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *sequenceRepo) UpdateConfig(ctx context.Context, db *gorm.DB, seq *domain.Sequence, expectedVersion int64) error {
	res := db.WithContext(ctx).
		Model(&domain.Sequence{}).
		Where("id = ? AND tenant_id = ? AND version = ?", seq.ID, seq.TenantID, expectedVersion).
		Updates(map[string]any{
			"pattern":        seq.Pattern,
			"padding":        seq.Padding,
			"step_size":      seq.StepSize,
			"reset_limit":    seq.ResetLimit,
			"evaluator_type": seq.EvaluatorType,
			"metadata":       seq.Metadata,
			"version":        expectedVersion + 1,
			"updated_at":     seq.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrVersionConflict
	}
	seq.Version = expectedVersion + 1
	return nil
}

func (r *sequenceRepo) SaveCounter(ctx context.Context, db *gorm.DB, seq *domain.Sequence) error {
	return db.WithContext(ctx).
		Model(&domain.Sequence{}).
		Where("id = ?", seq.ID).
		Updates(map[string]any{
			"current_value":     seq.CurrentValue,
			"version":           seq.Version,
			"last_reset_at":     seq.LastResetAt,
			"last_generated_at": seq.LastGeneratedAt,
			"updated_at":        seq.UpdatedAt,
		}).Error
}

func (r *sequenceRepo) Delete(ctx context.Context, db *gorm.DB, tenantID int64, name string) error {
	res := db.WithContext(ctx).
		Where("tenant_id = ? AND sequence_name = ?", tenantID, name).
		Delete(&domain.Sequence{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrSequenceNotFound
	}
	return nil
}
