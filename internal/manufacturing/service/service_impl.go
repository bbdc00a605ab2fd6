package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/erpcore/internal/audit/domain"
	"github.com/smallbiznis/erpcore/internal/authorization"
	"github.com/smallbiznis/erpcore/internal/clock"
	"github.com/smallbiznis/erpcore/internal/config"
	"github.com/smallbiznis/erpcore/internal/events"
	"github.com/smallbiznis/erpcore/internal/manufacturing/domain"
	"github.com/smallbiznis/erpcore/internal/manufacturing/report"
	"github.com/smallbiznis/erpcore/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultMaxDepth    = 50
	defaultParallelism = 4
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Config   config.Config
	Repo     domain.Repository
	Authz    authorization.Service
	AuditSvc auditdomain.Service
	Events   events.Publisher
	Renderer report.Renderer
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        domain.Repository
	authz       authorization.Service
	auditSvc    auditdomain.Service
	events      events.Publisher
	renderer    report.Renderer
	metrics     *metrics.Metrics
	maxDepth    int
	parallelism int
}

func New(p Params) domain.Service {
	maxDepth := p.Config.BOM.MaxDepth
	if maxDepth <= 0 {
		maxDepth = defaultMaxDepth
	}
	parallelism := p.Config.BOM.Parallelism
	if parallelism <= 0 {
		parallelism = defaultParallelism
	}
	renderer := p.Renderer
	if renderer == nil {
		renderer = report.New()
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("manufacturing.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		authz:       p.Authz,
		auditSvc:    p.AuditSvc,
		events:      p.Events,
		renderer:    renderer,
		metrics:     p.Metrics,
		maxDepth:    maxDepth,
		parallelism: parallelism,
	}
}

func parseID(raw string) (int64, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id.Int64() <= 0 {
		return 0, domain.ErrInvalidID
	}
	return id.Int64(), nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func (s *Service) publish(ctx context.Context, topic string, tenantID int64, payload map[string]any) {
	if s.events == nil {
		return
	}
	err := s.events.Publish(ctx, topic, events.Event{
		TenantID:   tenantID,
		OccurredAt: s.clock.Now(),
		Payload:    payload,
	})
	if err != nil {
		s.log.Error("failed to publish manufacturing event", zap.String("topic", topic), zap.Int64("tenant_id", tenantID), zap.Error(err))
	}
}

func toProductResponse(p *domain.Product) domain.ProductResponse {
	resp := domain.ProductResponse{
		ID:                   formatID(p.ID),
		TenantID:             formatID(p.TenantID),
		Code:                 p.Code,
		Name:                 p.Name,
		Type:                 p.Type,
		UOM:                  p.UOM,
		StandardCost:         p.StandardCost,
		LeadTimeDays:         p.LeadTimeDays,
		MinimumOrderQuantity: p.MinimumOrderQuantity,
		CanHaveBOM:           p.CanHaveBOM(),
		CreatedAt:            p.CreatedAt,
		UpdatedAt:            p.UpdatedAt,
	}
	if len(p.Metadata) > 0 {
		resp.Metadata = map[string]any(p.Metadata)
	}
	return resp
}

func toItemResponse(item *domain.BOMItem) domain.BOMItemResponse {
	return domain.BOMItemResponse{
		ID:                       formatID(item.ID),
		BOMID:                    formatID(item.BillOfMaterialID),
		ComponentProductID:       formatID(item.ComponentProductID),
		LineNumber:               item.LineNumber,
		Quantity:                 item.Quantity,
		UOM:                      item.UOM,
		ScrapAllowancePercentage: item.ScrapAllowancePercentage,
		ComponentType:            item.ComponentType,
		Notes:                    item.Notes,
		CreatedAt:                item.CreatedAt,
	}
}

func toBOMResponse(bom *domain.BillOfMaterial, items []domain.BOMItem) domain.BOMResponse {
	resp := domain.BOMResponse{
		ID:            formatID(bom.ID),
		TenantID:      formatID(bom.TenantID),
		ProductID:     formatID(bom.ProductID),
		Version:       bom.Version,
		Status:        bom.Status,
		EffectiveDate: bom.EffectiveDate,
		Notes:         bom.Notes,
		CreatedAt:     bom.CreatedAt,
		UpdatedAt:     bom.UpdatedAt,
	}
	if len(bom.Metadata) > 0 {
		resp.Metadata = map[string]any(bom.Metadata)
	}
	for i := range items {
		resp.Items = append(resp.Items, toItemResponse(&items[i]))
	}
	return resp
}
