package service

import (
	"context"
	"strings"

	auditdomain "github.com/smallbiznis/erpcore/internal/audit/domain"
	"github.com/smallbiznis/erpcore/internal/authorization"
	"github.com/smallbiznis/erpcore/internal/sequence/domain"
	"github.com/smallbiznis/erpcore/internal/sequence/pattern"
	"github.com/smallbiznis/erpcore/pkg/db"
	"github.com/smallbiznis/erpcore/pkg/db/pagination"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func (s *Service) CreateSequence(ctx context.Context, req domain.CreateRequest) (*domain.Response, error) {
	if err := s.authz.Authorize(ctx, req.Actor, req.TenantID, authorization.ObjectSequence, authorization.ActionSequenceManage); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	params := s.applyDefaults(req.TenantID, name, req)
	cfg, err := domain.NewSequenceConfig(params)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.FindByName(ctx, s.db, cfg.TenantID(), cfg.Name())
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrSequenceExists
	}

	now := s.clock.Now()
	seq := &domain.Sequence{
		ID:            s.genID.Generate().Int64(),
		TenantID:      cfg.TenantID(),
		SequenceName:  cfg.Name(),
		ResetPeriod:   string(cfg.ResetPeriod()),
		Pattern:       cfg.Pattern(),
		Padding:       cfg.Padding(),
		StepSize:      cfg.StepSize(),
		CurrentValue:  domain.ResetBase,
		Version:       1,
		ResetLimit:    cfg.ResetLimit(),
		EvaluatorType: cfg.EvaluatorType(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if req.Metadata != nil {
		seq.Metadata = datatypes.JSONMap(req.Metadata)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Create(ctx, tx, seq); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrSequenceExists
			}
			return err
		}
		return s.auditSvc.AuditLogTx(ctx, tx, auditdomain.Entry{
			TenantID:   seq.TenantID,
			Actor:      req.Actor,
			Action:     "sequence.create",
			TargetType: "sequence",
			TargetID:   seq.SequenceName,
			Metadata: map[string]any{
				"pattern":      seq.Pattern,
				"reset_period": seq.ResetPeriod,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("sequence created",
		zap.Int64("tenant_id", seq.TenantID),
		zap.String("sequence", seq.SequenceName),
		zap.String("pattern", seq.Pattern),
	)
	resp := s.toResponse(seq)
	return &resp, nil
}

// applyDefaults fills blanks from the preset for name, then the global defaults.
func (s *Service) applyDefaults(tenantID int64, name string, req domain.CreateRequest) domain.SequenceConfigParams {
	defaults := s.defaults.Get()
	preset, hasPreset := defaults.Preset(name)

	params := domain.SequenceConfigParams{
		TenantID:      tenantID,
		Name:          name,
		Pattern:       strings.TrimSpace(req.Pattern),
		ResetPeriod:   domain.ResetPeriod(strings.TrimSpace(req.ResetPeriod)),
		Padding:       defaults.Padding,
		StepSize:      defaults.StepSize,
		ResetLimit:    req.ResetLimit,
		EvaluatorType: req.EvaluatorType,
	}
	if params.ResetPeriod == "" {
		params.ResetPeriod = domain.ResetPeriod(defaults.ResetPeriod)
	}
	if hasPreset {
		if params.Pattern == "" {
			params.Pattern = preset.Pattern
		}
		if strings.TrimSpace(req.ResetPeriod) == "" {
			params.ResetPeriod = domain.ResetPeriod(preset.ResetPeriod)
		}
		params.Padding = preset.Padding
		params.StepSize = preset.StepSize
		if params.ResetLimit == nil && preset.ResetLimit != nil {
			limit := *preset.ResetLimit
			params.ResetLimit = &limit
		}
	}
	if req.Padding != nil {
		params.Padding = *req.Padding
	}
	if req.StepSize != nil {
		params.StepSize = *req.StepSize
	}
	return params
}

func (s *Service) UpdateSequence(ctx context.Context, req domain.UpdateRequest) (*domain.Response, error) {
	if err := s.authz.Authorize(ctx, req.Actor, req.TenantID, authorization.ObjectSequence, authorization.ActionSequenceManage); err != nil {
		return nil, err
	}

	seq, _, err := s.loadConfig(ctx, req.TenantID, req.Name)
	if err != nil {
		return nil, err
	}

	expected := seq.Version
	if req.ExpectedVersion != nil {
		expected = *req.ExpectedVersion
	}
	if expected != seq.Version {
		return nil, domain.ErrVersionConflict
	}

	updated := *seq
	if req.Pattern != nil {
		updated.Pattern = strings.TrimSpace(*req.Pattern)
	}
	if req.Padding != nil {
		updated.Padding = *req.Padding
	}
	if req.StepSize != nil {
		updated.StepSize = *req.StepSize
	}
	if req.ClearResetLimit {
		updated.ResetLimit = nil
	} else if req.ResetLimit != nil {
		limit := *req.ResetLimit
		updated.ResetLimit = &limit
	}
	if req.Metadata != nil {
		updated.Metadata = datatypes.JSONMap(req.Metadata)
	}
	if _, err := domain.ConfigFromSequence(&updated); err != nil {
		return nil, err
	}
	updated.UpdatedAt = s.clock.Now()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.UpdateConfig(ctx, tx, &updated, expected); err != nil {
			return err
		}
		return s.auditSvc.AuditLogTx(ctx, tx, auditdomain.Entry{
			TenantID:   updated.TenantID,
			Actor:      req.Actor,
			Action:     "sequence.update",
			TargetType: "sequence",
			TargetID:   updated.SequenceName,
			Metadata: map[string]any{
				"version": updated.Version,
				"pattern": updated.Pattern,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	resp := s.toResponse(&updated)
	return &resp, nil
}

func (s *Service) GetSequence(ctx context.Context, tenantID int64, name string) (*domain.Response, error) {
	if tenantID <= 0 {
		return nil, domain.ErrInvalidTenant
	}
	seq, err := s.repo.FindByName(ctx, s.db, tenantID, strings.TrimSpace(name))
	if err != nil {
		return nil, err
	}
	if seq == nil {
		return nil, domain.ErrSequenceNotFound
	}
	resp := s.toResponse(seq)
	return &resp, nil
}

func (s *Service) ListSequences(ctx context.Context, req domain.ListRequest) ([]domain.Response, error) {
	if req.TenantID <= 0 {
		return nil, domain.ErrInvalidTenant
	}
	items, err := s.repo.List(ctx, s.db, req.TenantID, domain.ListFilter{
		Name:        strings.TrimSpace(req.Name),
		ResetPeriod: strings.TrimSpace(req.ResetPeriod),
	})
	if err != nil {
		return nil, err
	}

	resp := make([]domain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, s.toResponse(&items[i]))
	}
	return resp, nil
}

func (s *Service) DeleteSequence(ctx context.Context, req domain.DeleteRequest) error {
	if err := s.authz.Authorize(ctx, req.Actor, req.TenantID, authorization.ObjectSequence, authorization.ActionSequenceManage); err != nil {
		return err
	}
	name := strings.TrimSpace(req.Name)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Delete(ctx, tx, req.TenantID, name); err != nil {
			return err
		}
		return s.auditSvc.AuditLogTx(ctx, tx, auditdomain.Entry{
			TenantID:   req.TenantID,
			Actor:      req.Actor,
			Action:     "sequence.delete",
			TargetType: "sequence",
			TargetID:   name,
		})
	})
}

// ValidatePattern checks the pattern and, when a context is supplied, the
// context against it. Results are merged so every message is reported.
func (s *Service) ValidatePattern(_ context.Context, req domain.ValidatePatternRequest) pattern.ValidationResult {
	res := s.registry.ValidatePattern(req.Pattern)
	if req.Context != nil && res.Valid {
		res.Merge(s.registry.ValidateContext(pattern.Values(req.Context), req.Pattern))
	}
	return res
}

func (s *Service) ListLogs(ctx context.Context, req domain.ListLogsRequest) (*domain.ListLogsResponse, error) {
	if req.TenantID <= 0 {
		return nil, domain.ErrInvalidTenant
	}

	var cursor *pagination.Cursor
	if token := strings.TrimSpace(req.PageToken); token != "" {
		decoded, err := pagination.DecodeCursor(token)
		if err != nil {
			return nil, domain.ErrInvalidPageToken
		}
		cursor = decoded
	}
	pageSize := pagination.PageSize(req.PageSize)

	items, err := s.logRepo.List(ctx, s.db, domain.LogFilter{
		TenantID:     req.TenantID,
		SequenceName: strings.TrimSpace(req.SequenceName),
		Override:     req.Override,
		Cursor:       cursor,
		Limit:        pageSize,
	})
	if err != nil {
		return nil, err
	}

	items, pageInfo, err := pagination.Trim(items, pageSize, func(item domain.SerialNumberLog) pagination.Cursor {
		return pagination.Cursor{ID: item.ID, CreatedAt: item.CreatedAt}
	})
	if err != nil {
		return nil, err
	}
	return &domain.ListLogsResponse{
		Logs:          items,
		NextPageToken: pageInfo.NextPageToken,
		HasMore:       pageInfo.HasMore,
	}, nil
}
