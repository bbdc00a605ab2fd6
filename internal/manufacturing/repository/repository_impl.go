package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/smallbiznis/erpcore/internal/manufacturing/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) CreateProduct(ctx context.Context, db *gorm.DB, product *domain.Product) error {
	return db.WithContext(ctx).Create(product).Error
}

func (r *repo) FindProduct(ctx context.Context, db *gorm.DB, tenantID, id int64) (*domain.Product, error) {
	return r.findProduct(db.WithContext(ctx), tenantID, id)
}

// FindProductForUpdate serialises BOM changes of one product.
func (r *repo) FindProductForUpdate(ctx context.Context, db *gorm.DB, tenantID, id int64) (*domain.Product, error) {
	return r.findProduct(db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), tenantID, id)
}

func (r *repo) findProduct(stmt *gorm.DB, tenantID, id int64) (*domain.Product, error) {
	var product domain.Product
	err := stmt.Where("tenant_id = ? AND id = ?", tenantID, id).Take(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *repo) FindProducts(ctx context.Context, db *gorm.DB, tenantID int64, ids []int64) ([]domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var items []domain.Product
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND id IN ?", tenantID, ids).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListProducts(ctx context.Context, db *gorm.DB, tenantID int64, filter domain.ProductFilter) ([]domain.Product, error) {
	var items []domain.Product
	stmt := db.WithContext(ctx).
		Model(&domain.Product{}).
		Where("tenant_id = ?", tenantID)
	if filter.Type != "" {
		stmt = stmt.Where("type = ?", string(filter.Type))
	}
	if code := strings.TrimSpace(filter.Code); code != "" {
		stmt = stmt.Where("code = ?", code)
	}
	if err := stmt.Order("code ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) CreateBOM(ctx context.Context, db *gorm.DB, bom *domain.BillOfMaterial) error {
	return db.WithContext(ctx).Create(bom).Error
}

func (r *repo) FindBOM(ctx context.Context, db *gorm.DB, tenantID, id int64) (*domain.BillOfMaterial, error) {
	return r.findBOM(db.WithContext(ctx), tenantID, id)
}

func (r *repo) FindBOMForUpdate(ctx context.Context, db *gorm.DB, tenantID, id int64) (*domain.BillOfMaterial, error) {
	return r.findBOM(db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), tenantID, id)
}

func (r *repo) findBOM(stmt *gorm.DB, tenantID, id int64) (*domain.BillOfMaterial, error) {
	var bom domain.BillOfMaterial
	err := stmt.Where("tenant_id = ? AND id = ?", tenantID, id).Take(&bom).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &bom, nil
}

func (r *repo) FindActiveBOM(ctx context.Context, db *gorm.DB, tenantID, productID int64) (*domain.BillOfMaterial, error) {
	var bom domain.BillOfMaterial
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND product_id = ? AND status = ?", tenantID, productID, string(domain.BOMStatusActive)).
		Order("version DESC").
		Take(&bom).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &bom, nil
}

func (r *repo) ListBOMs(ctx context.Context, db *gorm.DB, tenantID, productID int64) ([]domain.BillOfMaterial, error) {
	var items []domain.BillOfMaterial
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND product_id = ?", tenantID, productID).
		Order("version ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) NextBOMVersion(ctx context.Context, db *gorm.DB, tenantID, productID int64) (int, error) {
	var current int
	err := db.WithContext(ctx).
		Model(&domain.BillOfMaterial{}).
		Where("tenant_id = ? AND product_id = ?", tenantID, productID).
		Select("COALESCE(MAX(version), 0)").
		Scan(&current).Error
	if err != nil {
		return 0, err
	}
	return current + 1, nil
}

func (r *repo) UpdateBOMStatus(ctx context.Context, db *gorm.DB, bom *domain.BillOfMaterial) error {
	return db.WithContext(ctx).
		Model(&domain.BillOfMaterial{}).
		Where("tenant_id = ? AND id = ?", bom.TenantID, bom.ID).
		Updates(map[string]any{
			"status":         string(bom.Status),
			"effective_date": bom.EffectiveDate,
			"updated_at":     bom.UpdatedAt,
		}).Error
}

func (r *repo) ObsoleteActive(ctx context.Context, db *gorm.DB, tenantID, productID, exceptID int64, now time.Time) ([]int64, error) {
	var ids []int64
	err := db.WithContext(ctx).
		Model(&domain.BillOfMaterial{}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND product_id = ? AND status = ? AND id <> ?", tenantID, productID, string(domain.BOMStatusActive), exceptID).
		Order("id ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	err = db.WithContext(ctx).
		Model(&domain.BillOfMaterial{}).
		Where("tenant_id = ? AND id IN ?", tenantID, ids).
		Updates(map[string]any{
			"status":     string(domain.BOMStatusObsolete),
			"updated_at": now,
		}).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) CreateItem(ctx context.Context, db *gorm.DB, item *domain.BOMItem) error {
	return db.WithContext(ctx).Create(item).Error
}

func (r *repo) ListItems(ctx context.Context, db *gorm.DB, tenantID, bomID int64) ([]domain.BOMItem, error) {
	var items []domain.BOMItem
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND bill_of_material_id = ?", tenantID, bomID).
		Order("line_number ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) NextLineNumber(ctx context.Context, db *gorm.DB, tenantID, bomID int64) (int, error) {
	var current int
	err := db.WithContext(ctx).
		Model(&domain.BOMItem{}).
		Where("tenant_id = ? AND bill_of_material_id = ?", tenantID, bomID).
		Select("COALESCE(MAX(line_number), 0)").
		Scan(&current).Error
	if err != nil {
		return 0, err
	}
	return current + 10, nil
}

func (r *repo) FindParentBOMs(ctx context.Context, db *gorm.DB, tenantID, productID int64) ([]domain.BillOfMaterial, error) {
	var items []domain.BillOfMaterial
	sub := db.WithContext(ctx).
		Model(&domain.BOMItem{}).
		Select("bill_of_material_id").
		Where("tenant_id = ? AND component_product_id = ?", tenantID, productID)
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND id IN (?)", tenantID, sub).
		Order("product_id ASC, version ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
