package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/erpcore/internal/audit/domain"
	"github.com/smallbiznis/erpcore/internal/authorization"
	"github.com/smallbiznis/erpcore/internal/events"
	"github.com/smallbiznis/erpcore/internal/manufacturing/domain"
	"github.com/smallbiznis/erpcore/pkg/db"
	"github.com/smallbiznis/erpcore/pkg/log/ctxlogger"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func (s *Service) CreateProduct(ctx context.Context, req domain.CreateProductRequest) (*domain.ProductResponse, error) {
	if req.TenantID <= 0 {
		return nil, domain.ErrInvalidTenant
	}
	if err := s.authz.Authorize(ctx, req.Actor, req.TenantID, authorization.ObjectProduct, authorization.ActionProductManage); err != nil {
		return nil, err
	}

	code := strings.TrimSpace(req.Code)
	if code == "" || len(code) > 64 {
		return nil, domain.ErrInvalidCode
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	productType, err := domain.ParseProductType(strings.TrimSpace(req.Type))
	if err != nil {
		return nil, err
	}
	uom := strings.TrimSpace(req.UOM)
	if uom == "" || len(uom) > 16 {
		return nil, domain.ErrInvalidUOM
	}
	if req.StandardCost.IsNegative() {
		return nil, domain.ErrInvalidCost
	}
	if req.LeadTimeDays < 0 {
		return nil, fmt.Errorf("%w: lead time must not be negative", domain.ErrInvalidQuantity)
	}
	moq := decimal.Zero
	if req.MinimumOrderQuantity != nil {
		if req.MinimumOrderQuantity.IsNegative() {
			return nil, fmt.Errorf("%w: minimum order quantity must not be negative", domain.ErrInvalidQuantity)
		}
		moq = *req.MinimumOrderQuantity
	}

	now := s.clock.Now()
	product := &domain.Product{
		ID:                   s.genID.Generate().Int64(),
		TenantID:             req.TenantID,
		Code:                 code,
		Name:                 name,
		Type:                 productType,
		UOM:                  uom,
		StandardCost:         req.StandardCost,
		LeadTimeDays:         req.LeadTimeDays,
		MinimumOrderQuantity: moq,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if req.Metadata != nil {
		product.Metadata = datatypes.JSONMap(req.Metadata)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.CreateProduct(ctx, tx, product); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrProductExists
			}
			return err
		}
		return s.auditSvc.AuditLogTx(ctx, tx, auditdomain.Entry{
			TenantID:   product.TenantID,
			Actor:      req.Actor,
			Action:     "product.create",
			TargetType: "product",
			TargetID:   formatID(product.ID),
			Metadata: map[string]any{
				"code": product.Code,
				"type": string(product.Type),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	resp := toProductResponse(product)
	return &resp, nil
}

func (s *Service) GetProduct(ctx context.Context, tenantID int64, id string) (*domain.ProductResponse, error) {
	if tenantID <= 0 {
		return nil, domain.ErrInvalidTenant
	}
	productID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	product, err := s.repo.FindProduct(ctx, s.db, tenantID, productID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, domain.ErrProductNotFound
	}
	resp := toProductResponse(product)
	return &resp, nil
}

func (s *Service) ListProducts(ctx context.Context, req domain.ListProductsRequest) ([]domain.ProductResponse, error) {
	if req.TenantID <= 0 {
		return nil, domain.ErrInvalidTenant
	}
	filter := domain.ProductFilter{Code: strings.TrimSpace(req.Code)}
	if raw := strings.TrimSpace(req.Type); raw != "" {
		productType, err := domain.ParseProductType(raw)
		if err != nil {
			return nil, err
		}
		filter.Type = productType
	}

	items, err := s.repo.ListProducts(ctx, s.db, req.TenantID, filter)
	if err != nil {
		return nil, err
	}
	resp := make([]domain.ProductResponse, 0, len(items))
	for i := range items {
		resp = append(resp, toProductResponse(&items[i]))
	}
	return resp, nil
}

// CreateBOM opens the next draft version for a product.
func (s *Service) CreateBOM(ctx context.Context, req domain.CreateBOMRequest) (*domain.BOMResponse, error) {
	if req.TenantID <= 0 {
		return nil, domain.ErrInvalidTenant
	}
	if err := s.authz.Authorize(ctx, req.Actor, req.TenantID, authorization.ObjectBillOfMaterial, authorization.ActionBOMManage); err != nil {
		return nil, err
	}
	productID, err := parseID(req.ProductID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	bom := &domain.BillOfMaterial{
		ID:            s.genID.Generate().Int64(),
		TenantID:      req.TenantID,
		ProductID:     productID,
		Status:        domain.BOMStatusDraft,
		EffectiveDate: req.EffectiveDate,
		Notes:         req.Notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if req.Metadata != nil {
		bom.Metadata = datatypes.JSONMap(req.Metadata)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		product, err := s.repo.FindProductForUpdate(ctx, tx, req.TenantID, productID)
		if err != nil {
			return err
		}
		if product == nil {
			return domain.ErrProductNotFound
		}
		if !product.CanHaveBOM() {
			return fmt.Errorf("%w: %s is a %s", domain.ErrProductCannotHaveBOM, product.Code, product.Type)
		}
		version, err := s.repo.NextBOMVersion(ctx, tx, req.TenantID, productID)
		if err != nil {
			return err
		}
		bom.Version = version
		if err := s.repo.CreateBOM(ctx, tx, bom); err != nil {
			return err
		}
		return s.auditSvc.AuditLogTx(ctx, tx, auditdomain.Entry{
			TenantID:   bom.TenantID,
			Actor:      req.Actor,
			Action:     "bom.create",
			TargetType: "bill_of_material",
			TargetID:   formatID(bom.ID),
			Metadata: map[string]any{
				"product_id": formatID(productID),
				"version":    version,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	resp := toBOMResponse(bom, nil)
	return &resp, nil
}

// AddItem appends a component line to a draft BOM.
func (s *Service) AddItem(ctx context.Context, req domain.AddItemRequest) (*domain.BOMItemResponse, error) {
	if req.TenantID <= 0 {
		return nil, domain.ErrInvalidTenant
	}
	if err := s.authz.Authorize(ctx, req.Actor, req.TenantID, authorization.ObjectBillOfMaterial, authorization.ActionBOMManage); err != nil {
		return nil, err
	}
	bomID, err := parseID(req.BOMID)
	if err != nil {
		return nil, err
	}
	componentID, err := parseID(req.ComponentProductID)
	if err != nil {
		return nil, err
	}
	if !req.Quantity.IsPositive() {
		return nil, fmt.Errorf("%w: quantity must be positive", domain.ErrInvalidQuantity)
	}
	scrap := decimal.Zero
	if req.ScrapAllowancePercentage != nil {
		scrap = *req.ScrapAllowancePercentage
	}
	if scrap.IsNegative() {
		return nil, domain.ErrInvalidScrap
	}
	componentType, err := domain.ParseComponentType(strings.TrimSpace(req.ComponentType))
	if err != nil {
		return nil, err
	}
	if req.LineNumber != nil && *req.LineNumber <= 0 {
		return nil, domain.ErrInvalidLineNumber
	}

	item := &domain.BOMItem{
		ID:                       s.genID.Generate().Int64(),
		TenantID:                 req.TenantID,
		BillOfMaterialID:         bomID,
		ComponentProductID:       componentID,
		Quantity:                 req.Quantity,
		UOM:                      strings.TrimSpace(req.UOM),
		ScrapAllowancePercentage: scrap,
		ComponentType:            componentType,
		Notes:                    req.Notes,
		CreatedAt:                s.clock.Now(),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bom, err := s.repo.FindBOMForUpdate(ctx, tx, req.TenantID, bomID)
		if err != nil {
			return err
		}
		if bom == nil {
			return domain.ErrBOMNotFound
		}
		if !bom.Status.Editable() {
			return fmt.Errorf("%w: status is %s", domain.ErrBOMNotEditable, bom.Status)
		}
		if componentID == bom.ProductID {
			return domain.ErrSelfReference
		}
		component, err := s.repo.FindProduct(ctx, tx, req.TenantID, componentID)
		if err != nil {
			return err
		}
		if component == nil {
			return domain.ErrProductNotFound
		}
		if item.UOM == "" {
			item.UOM = component.UOM
		}
		if req.LineNumber != nil {
			item.LineNumber = *req.LineNumber
		} else if item.LineNumber, err = s.repo.NextLineNumber(ctx, tx, req.TenantID, bomID); err != nil {
			return err
		}
		if err := s.repo.CreateItem(ctx, tx, item); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return fmt.Errorf("%w: line %d", domain.ErrLineExists, item.LineNumber)
			}
			return err
		}
		return s.auditSvc.AuditLogTx(ctx, tx, auditdomain.Entry{
			TenantID:   req.TenantID,
			Actor:      req.Actor,
			Action:     "bom.item_add",
			TargetType: "bill_of_material",
			TargetID:   formatID(bomID),
			Metadata: map[string]any{
				"component_product_id": formatID(componentID),
				"line_number":          item.LineNumber,
				"quantity":             item.Quantity.String(),
				"component_type":       string(item.ComponentType),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	resp := toItemResponse(item)
	return &resp, nil
}

// Activate makes a draft the product's only active BOM. Any other active
// version of the same product becomes obsolete in the same transaction.
func (s *Service) Activate(ctx context.Context, req domain.TransitionRequest) (*domain.BOMResponse, error) {
	log := ctxlogger.WithContext(ctx, s.log)

	if req.TenantID <= 0 {
		return nil, domain.ErrInvalidTenant
	}
	if err := s.authz.Authorize(ctx, req.Actor, req.TenantID, authorization.ObjectBillOfMaterial, authorization.ActionBOMActivate); err != nil {
		return nil, err
	}
	bomID, err := parseID(req.BOMID)
	if err != nil {
		return nil, err
	}

	var (
		bom       *domain.BillOfMaterial
		items     []domain.BOMItem
		obsoleted []int64
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindBOM(ctx, tx, req.TenantID, bomID)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrBOMNotFound
		}
		// product first, then BOM, so concurrent activations of one product queue up
		if _, err := s.repo.FindProductForUpdate(ctx, tx, req.TenantID, current.ProductID); err != nil {
			return err
		}
		if bom, err = s.repo.FindBOMForUpdate(ctx, tx, req.TenantID, bomID); err != nil {
			return err
		}
		if bom == nil {
			return domain.ErrBOMNotFound
		}
		if !bom.Status.CanTransitionTo(domain.BOMStatusActive) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, bom.Status, domain.BOMStatusActive)
		}
		if items, err = s.repo.ListItems(ctx, tx, req.TenantID, bomID); err != nil {
			return err
		}
		if len(items) == 0 {
			return domain.ErrBOMEmpty
		}

		now := s.clock.Now()
		if obsoleted, err = s.repo.ObsoleteActive(ctx, tx, req.TenantID, bom.ProductID, bom.ID, now); err != nil {
			return err
		}
		bom.Status = domain.BOMStatusActive
		if bom.EffectiveDate == nil {
			bom.EffectiveDate = &now
		}
		bom.UpdatedAt = now
		if err := s.repo.UpdateBOMStatus(ctx, tx, bom); err != nil {
			return err
		}
		return s.auditSvc.AuditLogTx(ctx, tx, auditdomain.Entry{
			TenantID:   req.TenantID,
			Actor:      req.Actor,
			Action:     "bom.activate",
			TargetType: "bill_of_material",
			TargetID:   formatID(bom.ID),
			Metadata: map[string]any{
				"product_id": formatID(bom.ProductID),
				"version":    bom.Version,
				"obsoleted":  formatIDs(obsoleted),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info("bom activated",
		zap.Int64("bom_id", bom.ID),
		zap.Int64("product_id", bom.ProductID),
		zap.Int("version", bom.Version),
		zap.Int("obsoleted", len(obsoleted)),
	)
	s.metrics.RecordBOMActivation(ctx, formatID(req.TenantID))
	for _, id := range obsoleted {
		s.publish(ctx, events.TopicBOMObsoleted, req.TenantID, map[string]any{
			"bom_id":        formatID(id),
			"product_id":    formatID(bom.ProductID),
			"superseded_by": formatID(bom.ID),
		})
	}
	s.publish(ctx, events.TopicBOMActivated, req.TenantID, map[string]any{
		"bom_id":     formatID(bom.ID),
		"product_id": formatID(bom.ProductID),
		"version":    bom.Version,
		"obsoleted":  formatIDs(obsoleted),
	})

	resp := toBOMResponse(bom, items)
	return &resp, nil
}

func (s *Service) Obsolete(ctx context.Context, req domain.TransitionRequest) (*domain.BOMResponse, error) {
	log := ctxlogger.WithContext(ctx, s.log)

	if req.TenantID <= 0 {
		return nil, domain.ErrInvalidTenant
	}
	if err := s.authz.Authorize(ctx, req.Actor, req.TenantID, authorization.ObjectBillOfMaterial, authorization.ActionBOMObsolete); err != nil {
		return nil, err
	}
	bomID, err := parseID(req.BOMID)
	if err != nil {
		return nil, err
	}

	var bom *domain.BillOfMaterial
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.repo.FindBOMForUpdate(ctx, tx, req.TenantID, bomID)
		if err != nil {
			return err
		}
		if locked == nil {
			return domain.ErrBOMNotFound
		}
		bom = locked
		if !bom.Status.CanTransitionTo(domain.BOMStatusObsolete) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, bom.Status, domain.BOMStatusObsolete)
		}
		bom.Status = domain.BOMStatusObsolete
		bom.UpdatedAt = s.clock.Now()
		if err := s.repo.UpdateBOMStatus(ctx, tx, bom); err != nil {
			return err
		}
		return s.auditSvc.AuditLogTx(ctx, tx, auditdomain.Entry{
			TenantID:   req.TenantID,
			Actor:      req.Actor,
			Action:     "bom.obsolete",
			TargetType: "bill_of_material",
			TargetID:   formatID(bom.ID),
			Metadata: map[string]any{
				"product_id": formatID(bom.ProductID),
				"version":    bom.Version,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info("bom obsoleted", zap.Int64("bom_id", bom.ID), zap.Int64("product_id", bom.ProductID))
	s.publish(ctx, events.TopicBOMObsoleted, req.TenantID, map[string]any{
		"bom_id":     formatID(bom.ID),
		"product_id": formatID(bom.ProductID),
	})

	resp := toBOMResponse(bom, nil)
	return &resp, nil
}

func (s *Service) GetBOM(ctx context.Context, tenantID int64, id string) (*domain.BOMResponse, error) {
	bom, err := s.loadBOM(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListItems(ctx, s.db, tenantID, bom.ID)
	if err != nil {
		return nil, err
	}
	resp := toBOMResponse(bom, items)
	return &resp, nil
}

func (s *Service) ListBOMs(ctx context.Context, tenantID int64, productID string) ([]domain.BOMResponse, error) {
	if tenantID <= 0 {
		return nil, domain.ErrInvalidTenant
	}
	id, err := parseID(productID)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListBOMs(ctx, s.db, tenantID, id)
	if err != nil {
		return nil, err
	}
	resp := make([]domain.BOMResponse, 0, len(items))
	for i := range items {
		resp = append(resp, toBOMResponse(&items[i], nil))
	}
	return resp, nil
}

func (s *Service) loadBOM(ctx context.Context, tenantID int64, id string) (*domain.BillOfMaterial, error) {
	if tenantID <= 0 {
		return nil, domain.ErrInvalidTenant
	}
	bomID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	bom, err := s.repo.FindBOM(ctx, s.db, tenantID, bomID)
	if err != nil {
		return nil, err
	}
	if bom == nil {
		return nil, domain.ErrBOMNotFound
	}
	return bom, nil
}

func formatIDs(ids []int64) []string {
	return lo.Map(ids, func(id int64, _ int) string { return formatID(id) })
}
