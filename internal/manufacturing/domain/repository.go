package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	CreateProduct(ctx context.Context, db *gorm.DB, product *Product) error
	FindProduct(ctx context.Context, db *gorm.DB, tenantID, id int64) (*Product, error)
	FindProductForUpdate(ctx context.Context, db *gorm.DB, tenantID, id int64) (*Product, error)
	FindProducts(ctx context.Context, db *gorm.DB, tenantID int64, ids []int64) ([]Product, error)
	ListProducts(ctx context.Context, db *gorm.DB, tenantID int64, filter ProductFilter) ([]Product, error)

	CreateBOM(ctx context.Context, db *gorm.DB, bom *BillOfMaterial) error
	FindBOM(ctx context.Context, db *gorm.DB, tenantID, id int64) (*BillOfMaterial, error)
	FindBOMForUpdate(ctx context.Context, db *gorm.DB, tenantID, id int64) (*BillOfMaterial, error)
	FindActiveBOM(ctx context.Context, db *gorm.DB, tenantID, productID int64) (*BillOfMaterial, error)
	ListBOMs(ctx context.Context, db *gorm.DB, tenantID, productID int64) ([]BillOfMaterial, error)
	NextBOMVersion(ctx context.Context, db *gorm.DB, tenantID, productID int64) (int, error)
	UpdateBOMStatus(ctx context.Context, db *gorm.DB, bom *BillOfMaterial) error
	// ObsoleteActive moves every active BOM of productID except exceptID to
	// obsolete and returns the ids it changed.
	ObsoleteActive(ctx context.Context, db *gorm.DB, tenantID, productID, exceptID int64, now time.Time) ([]int64, error)

	CreateItem(ctx context.Context, db *gorm.DB, item *BOMItem) error
	ListItems(ctx context.Context, db *gorm.DB, tenantID, bomID int64) ([]BOMItem, error)
	NextLineNumber(ctx context.Context, db *gorm.DB, tenantID, bomID int64) (int, error)
	FindParentBOMs(ctx context.Context, db *gorm.DB, tenantID, productID int64) ([]BillOfMaterial, error)
}

type ProductFilter struct {
	Type ProductType
	Code string
}
