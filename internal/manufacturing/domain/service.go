package domain

import (
	"context"
	"io"
	"time"

	"github.com/shopspring/decimal"
)

type Service interface {
	CreateProduct(ctx context.Context, req CreateProductRequest) (*ProductResponse, error)
	GetProduct(ctx context.Context, tenantID int64, id string) (*ProductResponse, error)
	ListProducts(ctx context.Context, req ListProductsRequest) ([]ProductResponse, error)

	CreateBOM(ctx context.Context, req CreateBOMRequest) (*BOMResponse, error)
	AddItem(ctx context.Context, req AddItemRequest) (*BOMItemResponse, error)
	Activate(ctx context.Context, req TransitionRequest) (*BOMResponse, error)
	Obsolete(ctx context.Context, req TransitionRequest) (*BOMResponse, error)
	GetBOM(ctx context.Context, tenantID int64, id string) (*BOMResponse, error)
	ListBOMs(ctx context.Context, tenantID int64, productID string) ([]BOMResponse, error)

	Explode(ctx context.Context, tenantID int64, bomID string, quantity decimal.Decimal) ([]Requirement, error)
	ExplodeMany(ctx context.Context, tenantID int64, reqs []ExplosionRequest) ([]ExplosionResult, error)
	CalculateCost(ctx context.Context, tenantID int64, bomID string) (*CostBreakdown, error)
	WhereUsed(ctx context.Context, tenantID int64, productID string) ([]BOMResponse, error)
	RequirementSheet(ctx context.Context, tenantID int64, bomID string, quantity decimal.Decimal) (io.Reader, error)
}

type CreateProductRequest struct {
	TenantID             int64            `json:"-"`
	Actor                string           `json:"-"`
	Code                 string           `json:"code"`
	Name                 string           `json:"name"`
	Type                 string           `json:"type"`
	UOM                  string           `json:"uom"`
	StandardCost         decimal.Decimal  `json:"standard_cost"`
	LeadTimeDays         int              `json:"lead_time_days"`
	MinimumOrderQuantity *decimal.Decimal `json:"minimum_order_quantity"`
	Metadata             map[string]any   `json:"metadata"`
}

type ListProductsRequest struct {
	TenantID int64
	Type     string
	Code     string
}

type CreateBOMRequest struct {
	TenantID      int64          `json:"-"`
	Actor         string         `json:"-"`
	ProductID     string         `json:"product_id"`
	EffectiveDate *time.Time     `json:"effective_date"`
	Notes         *string        `json:"notes"`
	Metadata      map[string]any `json:"metadata"`
}

type AddItemRequest struct {
	TenantID                 int64            `json:"-"`
	Actor                    string           `json:"-"`
	BOMID                    string           `json:"-"`
	ComponentProductID       string           `json:"component_product_id"`
	LineNumber               *int             `json:"line_number"`
	Quantity                 decimal.Decimal  `json:"quantity"`
	UOM                      string           `json:"uom"`
	ScrapAllowancePercentage *decimal.Decimal `json:"scrap_allowance_percentage"`
	ComponentType            string           `json:"component_type"`
	Notes                    *string          `json:"notes"`
}

type TransitionRequest struct {
	TenantID int64
	Actor    string
	BOMID    string
}

type ExplosionRequest struct {
	BOMID    string          `json:"bom_id"`
	Quantity decimal.Decimal `json:"quantity"`
}

type ExplosionResult struct {
	BOMID        string          `json:"bom_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	Requirements []Requirement   `json:"requirements"`
}

// Requirement is the total quantity of one leaf component.
type Requirement struct {
	ProductID     string          `json:"product_id"`
	ProductCode   string          `json:"product_code"`
	ProductName   string          `json:"product_name"`
	UOM           string          `json:"uom"`
	TotalQuantity decimal.Decimal `json:"total_quantity"`
}

type CostLine struct {
	LineNumber   int             `json:"line_number"`
	ProductID    string          `json:"product_id"`
	ProductCode  string          `json:"product_code"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	ExtendedCost decimal.Decimal `json:"extended_cost"`
}

// CostBreakdown rolls up direct components only.
type CostBreakdown struct {
	BOMID        string          `json:"bom_id"`
	Lines        []CostLine      `json:"lines"`
	MaterialCost decimal.Decimal `json:"material_cost"`
	TotalCost    decimal.Decimal `json:"total_cost"`
}

type ProductResponse struct {
	ID                   string          `json:"id"`
	TenantID             string          `json:"tenant_id"`
	Code                 string          `json:"code"`
	Name                 string          `json:"name"`
	Type                 ProductType     `json:"type"`
	UOM                  string          `json:"uom"`
	StandardCost         decimal.Decimal `json:"standard_cost"`
	LeadTimeDays         int             `json:"lead_time_days"`
	MinimumOrderQuantity decimal.Decimal `json:"minimum_order_quantity"`
	CanHaveBOM           bool            `json:"can_have_bom"`
	Metadata             map[string]any  `json:"metadata,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

type BOMItemResponse struct {
	ID                       string          `json:"id"`
	BOMID                    string          `json:"bill_of_material_id"`
	ComponentProductID       string          `json:"component_product_id"`
	LineNumber               int             `json:"line_number"`
	Quantity                 decimal.Decimal `json:"quantity"`
	UOM                      string          `json:"uom"`
	ScrapAllowancePercentage decimal.Decimal `json:"scrap_allowance_percentage"`
	ComponentType            ComponentType   `json:"component_type"`
	Notes                    *string         `json:"notes,omitempty"`
	CreatedAt                time.Time       `json:"created_at"`
}

type BOMResponse struct {
	ID            string            `json:"id"`
	TenantID      string            `json:"tenant_id"`
	ProductID     string            `json:"product_id"`
	Version       int               `json:"version"`
	Status        BOMStatus         `json:"status"`
	EffectiveDate *time.Time        `json:"effective_date,omitempty"`
	Notes         *string           `json:"notes,omitempty"`
	Metadata      map[string]any    `json:"metadata,omitempty"`
	Items         []BOMItemResponse `json:"items,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}
