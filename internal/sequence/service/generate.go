package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	auditdomain "github.com/smallbiznis/erpcore/internal/audit/domain"
	"github.com/smallbiznis/erpcore/internal/authorization"
	"github.com/smallbiznis/erpcore/internal/events"
	"github.com/smallbiznis/erpcore/internal/sequence/domain"
	"github.com/smallbiznis/erpcore/internal/sequence/pattern"
	"github.com/smallbiznis/erpcore/pkg/db"
	"github.com/smallbiznis/erpcore/pkg/log/ctxlogger"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	retryInitialInterval = 25 * time.Millisecond
	retryMaxInterval     = 500 * time.Millisecond
)

func (s *Service) Generate(ctx context.Context, req domain.GenerateRequest) (domain.GeneratedNumber, error) {
	started := time.Now()
	number, err := s.generate(ctx, req)
	s.seqMetrics.ObserveGenerate(time.Since(started))
	if err != nil {
		s.seqMetrics.IncError("generate", err)
		return domain.GeneratedNumber{}, err
	}
	return number, nil
}

func (s *Service) generate(ctx context.Context, req domain.GenerateRequest) (domain.GeneratedNumber, error) {
	log := ctxlogger.WithContext(ctx, s.log)

	seq, cfg, err := s.loadConfig(ctx, req.TenantID, req.SequenceName)
	if err != nil {
		return domain.GeneratedNumber{}, err
	}
	values := pattern.Values(req.Context)
	if err := s.registry.ValidateContext(values, cfg.Pattern()).Err(domain.ErrInvalidContext); err != nil {
		return domain.GeneratedNumber{}, err
	}
	tmpl, err := s.registry.Compile(cfg.Pattern())
	if err != nil {
		return domain.GeneratedNumber{}, err
	}

	causerType, causerID := causer(req.Actor)
	var (
		issued domain.GeneratedNumber
		result domain.IncrementResult
	)
	issue := func(ctx context.Context, tx *gorm.DB, res domain.IncrementResult) error {
		current := tmpl
		if res.Sequence.Pattern != cfg.Pattern() {
			// The row changed between load and lock; render what is stored now.
			recompiled, err := s.registry.Compile(res.Sequence.Pattern)
			if err != nil {
				return err
			}
			current = recompiled
		}
		counter := res.State.Counter()
		generatedAt := res.State.Timestamp()
		value, err := s.registry.Evaluate(current, pattern.EvalInput{
			Values:    values,
			Counter:   counter,
			Padding:   res.Sequence.Padding,
			Timestamp: generatedAt,
		})
		if err != nil {
			return err
		}
		number, err := domain.NewGeneratedNumber(value, counter, generatedAt, map[string]any{
			"sequence_name": cfg.Name(),
			"reset_period":  string(cfg.ResetPeriod()),
			"version":       res.Sequence.Version,
			"reset":         res.Reset,
		})
		if err != nil {
			return err
		}

		entry := &domain.SerialNumberLog{
			ID:              s.genID.Generate().Int64(),
			TenantID:        cfg.TenantID(),
			SequenceName:    cfg.Name(),
			GeneratedNumber: value,
			CounterValue:    &counter,
			CauserType:      causerType,
			CauserID:        causerID,
			CreatedAt:       generatedAt,
		}
		if len(values) > 0 {
			entry.Metadata = datatypes.JSONMap{"context": map[string]any(values)}
		}
		taken, err := s.logRepo.ExistsNumber(ctx, tx, cfg.TenantID(), cfg.Name(), value)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: %s", domain.ErrNumberTaken, value)
		}
		if err := s.logRepo.Insert(ctx, tx, entry); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return &domain.DuplicateNumberError{TenantID: cfg.TenantID(), SequenceName: cfg.Name(), Value: value}
			}
			return err
		}
		issued = number
		return nil
	}

	op := func() error {
		res, err := s.counter.LockAndIncrement(ctx, cfg, s.clock.Now(), issue)
		if err != nil {
			if errors.Is(err, domain.ErrLockTimeout) {
				log.Warn("sequence lock timeout, retrying", zap.String("sequence", cfg.Name()), zap.Error(err))
				return err
			}
			return backoff.Permanent(err)
		}
		result = res
		return nil
	}
	if err := backoff.Retry(op, s.retryPolicy(ctx)); err != nil {
		return domain.GeneratedNumber{}, err
	}

	log.Debug("sequence number generated",
		zap.String("sequence", cfg.Name()),
		zap.String("value", issued.Value()),
		zap.Int64("counter", issued.Counter()),
	)
	if result.Reset {
		log.Info("sequence counter reset on generate",
			zap.String("sequence", cfg.Name()),
			zap.Int64("previous", result.Previous),
		)
		s.seqMetrics.IncReset(string(domain.TriggerFor(cfg)))
		s.metrics.RecordSequenceReset(ctx, tenantLabel(cfg.TenantID()), string(domain.TriggerFor(cfg)))
		s.publish(ctx, events.TopicSequenceReset, cfg.TenantID(), map[string]any{
			"sequence_name": cfg.Name(),
			"previous":      result.Previous,
			"counter":       domain.ResetBase,
			"trigger":       string(domain.TriggerFor(cfg)),
		})
	}
	s.metrics.RecordSequenceGenerated(ctx, tenantLabel(cfg.TenantID()), cfg.Name(), false)
	s.publish(ctx, events.TopicSequenceGenerated, cfg.TenantID(), map[string]any{
		"sequence_id":   seq.ID,
		"sequence_name": cfg.Name(),
		"value":         issued.Value(),
		"counter":       issued.Counter(),
		"generated_at":  issued.GeneratedAt(),
	})
	return issued, nil
}

func (s *Service) retryPolicy(ctx context.Context) backoff.BackOff {
	retries := s.retries
	if retries < 0 {
		retries = 0
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = retryInitialInterval
	bo.MaxInterval = retryMaxInterval
	return backoff.WithContext(backoff.WithMaxRetries(bo, uint64(retries)), ctx)
}

// Preview renders the value the next Generate would produce without
// touching the counter.
func (s *Service) Preview(ctx context.Context, req domain.PreviewRequest) (*domain.PreviewResult, error) {
	seq, cfg, err := s.loadConfig(ctx, req.TenantID, req.SequenceName)
	if err != nil {
		return nil, err
	}
	values := pattern.Values(req.Context)
	validation := s.registry.ValidateContext(values, cfg.Pattern())
	if err := validation.Err(domain.ErrInvalidContext); err != nil {
		return nil, err
	}

	state, err := s.counter.GetCurrentState(ctx, cfg)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	willReset := domain.ResetDueOnNext(cfg, state, now)
	base := state
	if willReset {
		if base, err = state.Reset(domain.ResetBase, now); err != nil {
			return nil, err
		}
	}
	next, err := base.Increment(cfg.StepSize(), now)
	if err != nil {
		return nil, err
	}

	value, err := s.registry.Render(cfg.Pattern(), pattern.EvalInput{
		Values:    values,
		Counter:   next.Counter(),
		Padding:   cfg.Padding(),
		Timestamp: next.Timestamp(),
	})
	if err != nil {
		return nil, err
	}

	return &domain.PreviewResult{
		Value:           value,
		CurrentValue:    state.Counter(),
		NextCounter:     next.Counter(),
		ResetDue:        domain.ShouldReset(cfg, state, now),
		WillResetOnNext: willReset,
		RemainingCount:  domain.RemainingCount(cfg, state),
		NextResetAt:     domain.NextResetTime(cfg, state),
		ResetTrigger:    domain.TriggerFor(cfg),
		Version:         seq.Version,
		Warnings:        validation.Warnings,
	}, nil
}

// Override records a manually chosen number. The counter is not moved;
// Generate steps over the value when the counter reaches it.
func (s *Service) Override(ctx context.Context, req domain.OverrideRequest) (*domain.SerialNumberLog, error) {
	log := ctxlogger.WithContext(ctx, s.log)

	if err := s.authz.Authorize(ctx, req.Actor, req.TenantID, authorization.ObjectSequence, authorization.ActionSequenceOverride); err != nil {
		s.seqMetrics.IncError("override", err)
		return nil, err
	}
	value := strings.TrimSpace(req.Value)
	if n := utf8.RuneCountInString(value); n == 0 || n > domain.MaxNumberLength {
		return nil, fmt.Errorf("%w: value length %d not in [1,%d]", domain.ErrInvalidOverride, n, domain.MaxNumberLength)
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: reason is required", domain.ErrInvalidOverride)
	}

	_, cfg, err := s.loadConfig(ctx, req.TenantID, req.SequenceName)
	if err != nil {
		return nil, err
	}

	causerType, causerID := causer(req.Actor)
	entry := &domain.SerialNumberLog{
		ID:              s.genID.Generate().Int64(),
		TenantID:        cfg.TenantID(),
		SequenceName:    cfg.Name(),
		GeneratedNumber: value,
		Override:        true,
		CauserType:      causerType,
		CauserID:        causerID,
		Reason:          &reason,
		Metadata:        datatypes.JSONMap{"override": true},
		CreatedAt:       s.clock.Now(),
	}
	if counter, ok := s.registry.ExtractCounter(cfg.Pattern(), value); ok {
		entry.CounterValue = &counter
	}

	duplicate := &domain.DuplicateNumberError{TenantID: cfg.TenantID(), SequenceName: cfg.Name(), Value: value}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, err := s.logRepo.ExistsNumber(ctx, tx, cfg.TenantID(), cfg.Name(), value)
		if err != nil {
			return err
		}
		if exists {
			return duplicate
		}
		if err := s.logRepo.Insert(ctx, tx, entry); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return duplicate
			}
			return err
		}
		return s.auditSvc.AuditLogTx(ctx, tx, auditdomain.Entry{
			TenantID:   cfg.TenantID(),
			Actor:      req.Actor,
			Action:     "sequence.override",
			TargetType: "sequence",
			TargetID:   cfg.Name(),
			Metadata: map[string]any{
				"value":  value,
				"reason": reason,
			},
		})
	})
	if err != nil {
		s.seqMetrics.IncError("override", err)
		return nil, err
	}

	log.Info("sequence number overridden",
		zap.String("sequence", cfg.Name()),
		zap.String("value", value),
		zap.String("actor", req.Actor),
	)
	s.metrics.RecordSequenceGenerated(ctx, tenantLabel(cfg.TenantID()), cfg.Name(), true)
	s.publish(ctx, events.TopicSequenceOverridden, cfg.TenantID(), map[string]any{
		"sequence_name": cfg.Name(),
		"value":         value,
		"reason":        reason,
		"actor":         req.Actor,
	})
	return entry, nil
}

// Reset sets the counter to NewValue; the next Generate issues NewValue + step.
func (s *Service) Reset(ctx context.Context, req domain.ResetRequest) (*domain.Response, error) {
	log := ctxlogger.WithContext(ctx, s.log)

	if err := s.authz.Authorize(ctx, req.Actor, req.TenantID, authorization.ObjectSequence, authorization.ActionSequenceReset); err != nil {
		s.seqMetrics.IncError("reset", err)
		return nil, err
	}
	if req.NewValue < 0 {
		return nil, fmt.Errorf("%w: %d", domain.ErrInvalidResetValue, req.NewValue)
	}
	reason := strings.TrimSpace(req.Reason)

	_, cfg, err := s.loadConfig(ctx, req.TenantID, req.SequenceName)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	newState, err := domain.NewCounterState(req.NewValue, now, &now)
	if err != nil {
		return nil, err
	}

	res, err := s.counter.Reset(ctx, cfg, newState, func(ctx context.Context, tx *gorm.DB, res domain.IncrementResult) error {
		return s.auditSvc.AuditLogTx(ctx, tx, auditdomain.Entry{
			TenantID:   cfg.TenantID(),
			Actor:      req.Actor,
			Action:     "sequence.reset",
			TargetType: "sequence",
			TargetID:   cfg.Name(),
			Metadata: map[string]any{
				"previous": res.Previous,
				"counter":  res.State.Counter(),
				"reason":   reason,
			},
		})
	})
	if err != nil {
		s.seqMetrics.IncError("reset", err)
		return nil, err
	}

	log.Info("sequence counter reset",
		zap.String("sequence", cfg.Name()),
		zap.Int64("previous", res.Previous),
		zap.Int64("counter", res.State.Counter()),
		zap.String("actor", req.Actor),
	)
	s.seqMetrics.IncReset("manual")
	s.metrics.RecordSequenceReset(ctx, tenantLabel(cfg.TenantID()), "manual")
	s.publish(ctx, events.TopicSequenceReset, cfg.TenantID(), map[string]any{
		"sequence_name": cfg.Name(),
		"previous":      res.Previous,
		"counter":       res.State.Counter(),
		"trigger":       "manual",
		"reason":        reason,
	})

	resp := s.toResponse(&res.Sequence)
	return &resp, nil
}
