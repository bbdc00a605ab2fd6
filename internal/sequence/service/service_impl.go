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
	"github.com/smallbiznis/erpcore/internal/observability/metrics"
	"github.com/smallbiznis/erpcore/internal/sequence/domain"
	"github.com/smallbiznis/erpcore/internal/sequence/pattern"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     config.Config
	Defaults   *config.SequenceDefaultsHolder
	Registry   *pattern.Registry
	Repo       domain.Repository
	LogRepo    domain.LogRepository
	Counter    domain.CounterRepository
	Authz      authorization.Service
	AuditSvc   auditdomain.Service
	Events     events.Publisher
	Metrics    *metrics.Metrics         `optional:"true"`
	SeqMetrics *metrics.SequenceMetrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	defaults   *config.SequenceDefaultsHolder
	registry   *pattern.Registry
	repo       domain.Repository
	logRepo    domain.LogRepository
	counter    domain.CounterRepository
	authz      authorization.Service
	auditSvc   auditdomain.Service
	events     events.Publisher
	metrics    *metrics.Metrics
	seqMetrics *metrics.SequenceMetrics
	retries    int
}

func New(p Params) domain.Service {
	registry := p.Registry
	if registry == nil {
		registry = pattern.NewDefaultRegistry()
	}
	defaults := p.Defaults
	if defaults == nil {
		defaults = config.NewStaticSequenceDefaults(config.DefaultSequenceDefaults())
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("sequence.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		defaults:   defaults,
		registry:   registry,
		repo:       p.Repo,
		logRepo:    p.LogRepo,
		counter:    p.Counter,
		authz:      p.Authz,
		auditSvc:   p.AuditSvc,
		events:     p.Events,
		metrics:    p.Metrics,
		seqMetrics: p.SeqMetrics,
		retries:    p.Config.Sequence.LockRetries,
	}
}

// loadConfig resolves the stored row and its validated config.
func (s *Service) loadConfig(ctx context.Context, tenantID int64, name string) (*domain.Sequence, domain.SequenceConfig, error) {
	if tenantID <= 0 {
		return nil, domain.SequenceConfig{}, domain.ErrInvalidTenant
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.SequenceConfig{}, domain.ErrInvalidName
	}
	seq, err := s.repo.FindByName(ctx, s.db, tenantID, name)
	if err != nil {
		return nil, domain.SequenceConfig{}, err
	}
	if seq == nil {
		return nil, domain.SequenceConfig{}, domain.ErrSequenceNotFound
	}
	cfg, err := domain.ConfigFromSequence(seq)
	if err != nil {
		return nil, domain.SequenceConfig{}, err
	}
	if cfg.EvaluatorType() != domain.DefaultEvaluator {
		return nil, domain.SequenceConfig{}, domain.ErrUnsupportedEvaluator
	}
	return seq, cfg, nil
}

// publish runs after commit. A failed publish is logged; the number is
// already issued and recorded.
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
		s.log.Error("failed to publish sequence event", zap.String("topic", topic), zap.Int64("tenant_id", tenantID), zap.Error(err))
	}
}

func tenantLabel(tenantID int64) string {
	return strconv.FormatInt(tenantID, 10)
}

func causer(actor string) (string, string) {
	actor = strings.TrimSpace(actor)
	if actor == "" || actor == "system" {
		return "system", ""
	}
	if kind, id, ok := strings.Cut(actor, ":"); ok {
		return kind, id
	}
	return "system", actor
}

func (s *Service) toResponse(seq *domain.Sequence) domain.Response {
	resp := domain.Response{
		ID:              strconv.FormatInt(seq.ID, 10),
		TenantID:        strconv.FormatInt(seq.TenantID, 10),
		Name:            seq.SequenceName,
		Pattern:         seq.Pattern,
		ResetPeriod:     seq.ResetPeriod,
		Padding:         seq.Padding,
		StepSize:        seq.StepSize,
		CurrentValue:    seq.CurrentValue,
		Version:         seq.Version,
		ResetLimit:      seq.ResetLimit,
		LastResetAt:     seq.LastResetAt,
		LastGeneratedAt: seq.LastGeneratedAt,
		EvaluatorType:   seq.EvaluatorType,
		CreatedAt:       seq.CreatedAt,
		UpdatedAt:       seq.UpdatedAt,
	}
	if len(seq.Metadata) > 0 {
		resp.Metadata = map[string]any(seq.Metadata)
	}
	return resp
}
