package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/erpcore/internal/manufacturing/domain"
	"github.com/smallbiznis/erpcore/internal/manufacturing/report"
	"github.com/smallbiznis/erpcore/pkg/log/ctxlogger"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

const (
	explosionOK       = "ok"
	explosionCircular = "circular_reference"
	explosionMaxDepth = "max_depth"
	explosionNotFound = "not_found"
	explosionFailed   = "error"
)

// Explode flattens bomID into leaf component totals for quantity units of
// the parent. Reference lines are skipped; phantom lines and components
// without an active BOM are leaves.
func (s *Service) Explode(ctx context.Context, tenantID int64, bomID string, quantity decimal.Decimal) ([]domain.Requirement, error) {
	bom, err := s.loadBOM(ctx, tenantID, bomID)
	if err != nil {
		return nil, err
	}
	reqs, err := s.explode(ctx, bom, quantity)
	s.metrics.RecordBOMExplosion(ctx, formatID(tenantID), explosionOutcome(err))
	if err != nil {
		ctxlogger.WithContext(ctx, s.log).Error("bom explosion failed",
			zap.Int64("bom_id", bom.ID),
			zap.String("quantity", quantity.String()),
			zap.Error(err),
		)
		return nil, err
	}
	return reqs, nil
}

func (s *Service) explode(ctx context.Context, bom *domain.BillOfMaterial, quantity decimal.Decimal) ([]domain.Requirement, error) {
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("%w: quantity must be positive", domain.ErrInvalidQuantity)
	}

	w := &walker{
		svc:      s,
		tenantID: bom.TenantID,
		maxDepth: s.maxDepth,
		items:    map[int64][]domain.BOMItem{},
		active:   map[int64]*domain.BillOfMaterial{},
		totals:   map[int64]decimal.Decimal{},
	}
	if err := w.walk(ctx, bom.ID, quantity, nil); err != nil {
		return nil, err
	}
	return w.requirements(ctx)
}

// walker holds the lookups of one explosion. It is not shared between
// explosions.
type walker struct {
	svc      *Service
	tenantID int64
	maxDepth int
	items    map[int64][]domain.BOMItem
	active   map[int64]*domain.BillOfMaterial
	totals   map[int64]decimal.Decimal
}

func (w *walker) walk(ctx context.Context, bomID int64, multiplier decimal.Decimal, path []int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if lo.Contains(path, bomID) {
		cycle := append(append([]int64{}, path...), bomID)
		return &domain.CircularReferenceError{Path: cycle}
	}
	if len(path) >= w.maxDepth {
		return fmt.Errorf("%w: deeper than %d levels", domain.ErrMaxDepthExceeded, w.maxDepth)
	}
	// full slice expression so sibling branches never share a backing array
	path = append(path[:len(path):len(path)], bomID)

	items, err := w.bomItems(ctx, bomID)
	if err != nil {
		return err
	}
	for _, item := range items {
		if item.ComponentType == domain.ComponentReference {
			continue
		}
		required := item.TotalQuantityNeeded(multiplier)
		if item.ComponentType != domain.ComponentPhantom {
			child, err := w.activeBOM(ctx, item.ComponentProductID)
			if err != nil {
				return err
			}
			if child != nil {
				if err := w.walk(ctx, child.ID, required, path); err != nil {
					return err
				}
				continue
			}
		}
		w.totals[item.ComponentProductID] = w.totals[item.ComponentProductID].Add(required)
	}
	return nil
}

func (w *walker) bomItems(ctx context.Context, bomID int64) ([]domain.BOMItem, error) {
	if items, ok := w.items[bomID]; ok {
		return items, nil
	}
	items, err := w.svc.repo.ListItems(ctx, w.svc.db, w.tenantID, bomID)
	if err != nil {
		return nil, err
	}
	w.items[bomID] = items
	return items, nil
}

func (w *walker) activeBOM(ctx context.Context, productID int64) (*domain.BillOfMaterial, error) {
	if bom, ok := w.active[productID]; ok {
		return bom, nil
	}
	bom, err := w.svc.repo.FindActiveBOM(ctx, w.svc.db, w.tenantID, productID)
	if err != nil {
		return nil, err
	}
	w.active[productID] = bom
	return bom, nil
}

// requirements resolves product details and orders the totals by code.
func (w *walker) requirements(ctx context.Context) ([]domain.Requirement, error) {
	ids := lo.Keys(w.totals)
	products, err := w.svc.repo.FindProducts(ctx, w.svc.db, w.tenantID, ids)
	if err != nil {
		return nil, err
	}
	byID := lo.KeyBy(products, func(p domain.Product) int64 { return p.ID })

	out := make([]domain.Requirement, 0, len(ids))
	for _, id := range ids {
		product, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: component %d", domain.ErrProductNotFound, id)
		}
		out = append(out, domain.Requirement{
			ProductID:     formatID(id),
			ProductCode:   product.Code,
			ProductName:   product.Name,
			UOM:           product.UOM,
			TotalQuantity: w.totals[id],
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductCode != out[j].ProductCode {
			return out[i].ProductCode < out[j].ProductCode
		}
		return out[i].ProductID < out[j].ProductID
	})
	return out, nil
}

func explosionOutcome(err error) string {
	switch {
	case err == nil:
		return explosionOK
	case errors.Is(err, domain.ErrCircularReference):
		return explosionCircular
	case errors.Is(err, domain.ErrMaxDepthExceeded):
		return explosionMaxDepth
	case errors.Is(err, domain.ErrBOMNotFound), errors.Is(err, domain.ErrProductNotFound):
		return explosionNotFound
	}
	return explosionFailed
}

// ExplodeMany runs independent explosions in parallel. Results keep the
// request order; the first failure cancels the rest.
func (s *Service) ExplodeMany(ctx context.Context, tenantID int64, reqs []domain.ExplosionRequest) ([]domain.ExplosionResult, error) {
	if tenantID <= 0 {
		return nil, domain.ErrInvalidTenant
	}
	results := make([]domain.ExplosionResult, len(reqs))
	p := pool.New().
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError().
		WithMaxGoroutines(s.parallelism)
	for i, req := range reqs {
		i, req := i, req // per-iteration copies; go.mod targets go1.21 loop semantics
		p.Go(func(ctx context.Context) error {
			requirements, err := s.Explode(ctx, tenantID, req.BOMID, req.Quantity)
			if err != nil {
				return fmt.Errorf("bom %s: %w", req.BOMID, err)
			}
			results[i] = domain.ExplosionResult{
				BOMID:        req.BOMID,
				Quantity:     req.Quantity,
				Requirements: requirements,
			}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// CalculateCost sums quantity * standard cost over the direct lines of the
// BOM. Sub-assemblies contribute their own standard cost; their BOMs are
// not rolled up.
func (s *Service) CalculateCost(ctx context.Context, tenantID int64, bomID string) (*domain.CostBreakdown, error) {
	bom, err := s.loadBOM(ctx, tenantID, bomID)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListItems(ctx, s.db, tenantID, bom.ID)
	if err != nil {
		return nil, err
	}
	items = lo.Filter(items, func(item domain.BOMItem, _ int) bool {
		return item.ComponentType != domain.ComponentReference
	})

	ids := lo.Uniq(lo.Map(items, func(item domain.BOMItem, _ int) int64 { return item.ComponentProductID }))
	products, err := s.repo.FindProducts(ctx, s.db, tenantID, ids)
	if err != nil {
		return nil, err
	}
	byID := lo.KeyBy(products, func(p domain.Product) int64 { return p.ID })

	breakdown := &domain.CostBreakdown{
		BOMID:        formatID(bom.ID),
		Lines:        make([]domain.CostLine, 0, len(items)),
		MaterialCost: decimal.Zero,
	}
	for _, item := range items {
		product, ok := byID[item.ComponentProductID]
		if !ok {
			return nil, fmt.Errorf("%w: component %d", domain.ErrProductNotFound, item.ComponentProductID)
		}
		extended := item.Quantity.Mul(product.StandardCost)
		breakdown.Lines = append(breakdown.Lines, domain.CostLine{
			LineNumber:   item.LineNumber,
			ProductID:    formatID(product.ID),
			ProductCode:  product.Code,
			Quantity:     item.Quantity,
			UnitCost:     product.StandardCost,
			ExtendedCost: extended,
		})
		breakdown.MaterialCost = breakdown.MaterialCost.Add(extended)
	}
	breakdown.TotalCost = breakdown.MaterialCost
	return breakdown, nil
}

// WhereUsed lists the BOMs that reference productID directly.
func (s *Service) WhereUsed(ctx context.Context, tenantID int64, productID string) ([]domain.BOMResponse, error) {
	if tenantID <= 0 {
		return nil, domain.ErrInvalidTenant
	}
	id, err := parseID(productID)
	if err != nil {
		return nil, err
	}
	parents, err := s.repo.FindParentBOMs(ctx, s.db, tenantID, id)
	if err != nil {
		return nil, err
	}
	resp := make([]domain.BOMResponse, 0, len(parents))
	for i := range parents {
		resp = append(resp, toBOMResponse(&parents[i], nil))
	}
	return resp, nil
}

// RequirementSheet renders the explosion of bomID as a PDF.
func (s *Service) RequirementSheet(ctx context.Context, tenantID int64, bomID string, quantity decimal.Decimal) (io.Reader, error) {
	bom, err := s.loadBOM(ctx, tenantID, bomID)
	if err != nil {
		return nil, err
	}
	product, err := s.repo.FindProduct(ctx, s.db, tenantID, bom.ProductID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, domain.ErrProductNotFound
	}
	requirements, err := s.Explode(ctx, tenantID, bomID, quantity)
	if err != nil {
		return nil, err
	}
	return s.renderer.RenderRequirementSheet(ctx, report.RequirementSheet{
		ProductCode:  product.Code,
		ProductName:  product.Name,
		BOMVersion:   bom.Version,
		BOMStatus:    bom.Status,
		Quantity:     quantity,
		GeneratedAt:  s.clock.Now(),
		Requirements: requirements,
	})
}
