package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type ProductType string

const (
	ProductTypeRawMaterial  ProductType = "raw_material"
	ProductTypeComponent    ProductType = "component"
	ProductTypeSubAssembly  ProductType = "sub_assembly"
	ProductTypeFinishedGood ProductType = "finished_good"
)

func ParseProductType(raw string) (ProductType, error) {
	switch t := ProductType(raw); t {
	case ProductTypeRawMaterial, ProductTypeComponent, ProductTypeSubAssembly, ProductTypeFinishedGood:
		return t, nil
	}
	return "", ErrInvalidProductType
}

type Product struct {
	ID                   int64             `json:"id" gorm:"primaryKey"`
	TenantID             int64             `json:"tenant_id" gorm:"not null;uniqueIndex:ux_mfg_products_tenant_code,priority:1"`
	Code                 string            `json:"code" gorm:"type:varchar(64);not null;uniqueIndex:ux_mfg_products_tenant_code,priority:2"`
	Name                 string            `json:"name" gorm:"type:text;not null"`
	Type                 ProductType       `json:"type" gorm:"type:varchar(32);not null"`
	UOM                  string            `json:"uom" gorm:"column:uom;type:varchar(16);not null"`
	StandardCost         decimal.Decimal   `json:"standard_cost" gorm:"type:numeric(20,6);not null;default:0"`
	LeadTimeDays         int               `json:"lead_time_days" gorm:"not null;default:0"`
	MinimumOrderQuantity decimal.Decimal   `json:"minimum_order_quantity" gorm:"type:numeric(20,6);not null;default:0"`
	Metadata             datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt            time.Time         `json:"created_at" gorm:"not null"`
	UpdatedAt            time.Time         `json:"updated_at" gorm:"not null"`
}

func (Product) TableName() string { return "products" }

// CanHaveBOM is true for products assembled from other products.
func (p Product) CanHaveBOM() bool {
	return p.Type == ProductTypeSubAssembly || p.Type == ProductTypeFinishedGood
}

// CanBePurchased is true for raw materials, and for components that are not
// produced in-house.
func (p Product) CanBePurchased(hasBOM bool) bool {
	switch p.Type {
	case ProductTypeRawMaterial:
		return true
	case ProductTypeComponent:
		return !hasBOM
	}
	return false
}

type BOMStatus string

const (
	BOMStatusDraft    BOMStatus = "draft"
	BOMStatusActive   BOMStatus = "active"
	BOMStatusObsolete BOMStatus = "obsolete"
)

// CanTransitionTo encodes draft -> active -> obsolete. Obsolete is terminal.
func (s BOMStatus) CanTransitionTo(next BOMStatus) bool {
	switch s {
	case BOMStatusDraft:
		return next == BOMStatusActive
	case BOMStatusActive:
		return next == BOMStatusObsolete
	}
	return false
}

func (s BOMStatus) Editable() bool { return s == BOMStatusDraft }

type BillOfMaterial struct {
	ID            int64             `json:"id" gorm:"primaryKey"`
	TenantID      int64             `json:"tenant_id" gorm:"not null;uniqueIndex:ux_boms_product_version,priority:1"`
	ProductID     int64             `json:"product_id" gorm:"not null;uniqueIndex:ux_boms_product_version,priority:2;index:ix_boms_product_status,priority:1"`
	Version       int               `json:"version" gorm:"not null;uniqueIndex:ux_boms_product_version,priority:3"`
	Status        BOMStatus         `json:"status" gorm:"type:varchar(16);not null;default:draft;index:ix_boms_product_status,priority:2"`
	EffectiveDate *time.Time        `json:"effective_date,omitempty"`
	Notes         *string           `json:"notes,omitempty" gorm:"type:text"`
	Metadata      datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt     time.Time         `json:"created_at" gorm:"not null"`
	UpdatedAt     time.Time         `json:"updated_at" gorm:"not null"`
}

func (BillOfMaterial) TableName() string { return "bills_of_material" }

type ComponentType string

const (
	ComponentRegular ComponentType = "regular"
	// ComponentPhantom is never stocked; explosion takes it as a leaf even
	// when it has an active BOM of its own.
	ComponentPhantom ComponentType = "phantom"
	// ComponentReference documents a part without consuming it.
	ComponentReference ComponentType = "reference"
)

func ParseComponentType(raw string) (ComponentType, error) {
	switch t := ComponentType(raw); t {
	case "":
		return ComponentRegular, nil
	case ComponentRegular, ComponentPhantom, ComponentReference:
		return t, nil
	}
	return "", ErrInvalidComponentType
}

type BOMItem struct {
	ID                       int64           `json:"id" gorm:"primaryKey"`
	TenantID                 int64           `json:"tenant_id" gorm:"not null;index:ix_bom_items_component,priority:1"`
	BillOfMaterialID         int64           `json:"bill_of_material_id" gorm:"not null;uniqueIndex:ux_bom_items_line,priority:1"`
	ComponentProductID       int64           `json:"component_product_id" gorm:"not null;index:ix_bom_items_component,priority:2"`
	LineNumber               int             `json:"line_number" gorm:"not null;uniqueIndex:ux_bom_items_line,priority:2"`
	Quantity                 decimal.Decimal `json:"quantity" gorm:"type:numeric(20,6);not null"`
	UOM                      string          `json:"uom" gorm:"column:uom;type:varchar(16);not null"`
	ScrapAllowancePercentage decimal.Decimal `json:"scrap_allowance_percentage" gorm:"type:numeric(9,4);not null;default:0"`
	ComponentType            ComponentType   `json:"component_type" gorm:"type:varchar(16);not null;default:regular"`
	Notes                    *string         `json:"notes,omitempty" gorm:"type:text"`
	CreatedAt                time.Time       `json:"created_at" gorm:"not null"`
}

func (BOMItem) TableName() string { return "bom_items" }

var hundred = decimal.NewFromInt(100)

// TotalQuantityNeeded is quantity * multiplier * (1 + scrap%/100).
func (i BOMItem) TotalQuantityNeeded(multiplier decimal.Decimal) decimal.Decimal {
	factor := decimal.NewFromInt(1).Add(i.ScrapAllowancePercentage.Div(hundred))
	return i.Quantity.Mul(multiplier).Mul(factor)
}
