package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/erpcore/internal/config"
	"github.com/smallbiznis/erpcore/internal/observability/metrics"
	"github.com/smallbiznis/erpcore/internal/sequence/domain"
	"github.com/smallbiznis/erpcore/internal/sequence/lock"
	"github.com/smallbiznis/erpcore/pkg/db"
	"github.com/smallbiznis/erpcore/pkg/rls"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type CounterStoreParams struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Config  config.Config
	Repo    domain.Repository
	Locker  lock.Locker
	Metrics *metrics.SequenceMetrics `optional:"true"`
}

// CounterStore serialises counter mutations per key: the Locker first, then
// a row lock inside the transaction.
type CounterStore struct {
	db          *gorm.DB
	log         *zap.Logger
	repo        domain.Repository
	locker      lock.Locker
	metrics     *metrics.SequenceMetrics
	backend     string
	lockTimeout time.Duration
}

func NewCounterStore(p CounterStoreParams) domain.CounterRepository {
	backend := p.Config.Sequence.LockBackend
	if backend == "" {
		backend = metrics.LockBackendLocal
	}
	return &CounterStore{
		db:          p.DB,
		log:         p.Log.Named("sequence.counter"),
		repo:        p.Repo,
		locker:      p.Locker,
		metrics:     p.Metrics,
		backend:     backend,
		lockTimeout: time.Duration(p.Config.Sequence.LockTimeoutMS) * time.Millisecond,
	}
}

func (s *CounterStore) Find(ctx context.Context, cfg domain.SequenceConfig) (domain.CounterState, error) {
	return s.GetCurrentState(ctx, cfg)
}

// GetCurrentState reads the stored state without locking.
func (s *CounterStore) GetCurrentState(ctx context.Context, cfg domain.SequenceConfig) (domain.CounterState, error) {
	seq, err := s.findUnlocked(ctx, cfg)
	if err != nil {
		return domain.CounterState{}, err
	}
	return seq.State()
}

func (s *CounterStore) findUnlocked(ctx context.Context, cfg domain.SequenceConfig) (*domain.Sequence, error) {
	var seq domain.Sequence
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND sequence_name = ? AND reset_period = ?", cfg.TenantID(), cfg.Name(), string(cfg.ResetPeriod())).
		Take(&seq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrSequenceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &seq, nil
}

func (s *CounterStore) LockAndIncrement(ctx context.Context, cfg domain.SequenceConfig, now time.Time, issue domain.IssueFunc) (domain.IncrementResult, error) {
	return s.mutate(ctx, cfg, true, issue, func(locked domain.SequenceConfig, state domain.CounterState) (domain.CounterState, bool, error) {
		reset := domain.ResetDueOnNext(locked, state, now)
		if reset {
			var err error
			state, err = state.Reset(domain.ResetBase, now)
			if err != nil {
				return domain.CounterState{}, false, err
			}
		}
		next, err := state.Increment(locked.StepSize(), now)
		return next, reset, err
	})
}

// Reset replaces the counter with newState under the same locks as generation.
func (s *CounterStore) Reset(ctx context.Context, cfg domain.SequenceConfig, newState domain.CounterState, issue domain.IssueFunc) (domain.IncrementResult, error) {
	return s.mutate(ctx, cfg, false, issue, func(domain.SequenceConfig, domain.CounterState) (domain.CounterState, bool, error) {
		return newState, true, nil
	})
}

type mutation func(locked domain.SequenceConfig, state domain.CounterState) (domain.CounterState, bool, error)

func (s *CounterStore) mutate(ctx context.Context, cfg domain.SequenceConfig, generated bool, issue domain.IssueFunc, apply mutation) (domain.IncrementResult, error) {
	waitStart := time.Now()
	unlock, err := s.locker.Lock(ctx, cfg.Key(), s.lockTimeout)
	s.metrics.ObserveLockWait(s.backend, time.Since(waitStart))
	if err != nil {
		if errors.Is(err, lock.ErrTimeout) {
			s.metrics.IncLockTimeout(s.backend)
			s.log.Warn("sequence lock timeout",
				zap.String("key", cfg.Key()),
				zap.String("backend", s.backend),
				zap.Duration("timeout", s.lockTimeout),
			)
			return domain.IncrementResult{}, fmt.Errorf("%w: %s", domain.ErrLockTimeout, cfg.Key())
		}
		return domain.IncrementResult{}, err
	}
	defer unlock()

	var result domain.IncrementResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := rls.WithTenant(tx, cfg.TenantID()); err != nil {
			return err
		}
		if err := rls.WithLockTimeout(tx, s.lockTimeout.Milliseconds()); err != nil {
			return err
		}

		rowWait := time.Now()
		seq, err := s.repo.FindForUpdate(ctx, tx, cfg.TenantID(), cfg.Name(), cfg.ResetPeriod())
		s.metrics.ObserveLockWait(metrics.LockBackendDatabase, time.Since(rowWait))
		if err != nil {
			return err
		}
		if seq == nil {
			return domain.ErrSequenceNotFound
		}

		locked, err := domain.ConfigFromSequence(seq)
		if err != nil {
			return err
		}
		state, err := seq.State()
		if err != nil {
			return err
		}

		previous := state.Counter()
		version := seq.Version + 1
		var reset bool
		for skipped := 0; ; skipped++ {
			next, didReset, err := apply(locked, state)
			if err != nil {
				return err
			}
			reset = reset || didReset

			ts := next.Timestamp()
			seq.CurrentValue = next.Counter()
			seq.LastResetAt = next.LastResetAt()
			if generated {
				seq.LastGeneratedAt = &ts
			}
			seq.Version = version
			seq.UpdatedAt = ts

			result = domain.IncrementResult{
				Sequence: *seq,
				State:    next,
				Previous: previous,
				Reset:    reset,
			}
			if issue == nil {
				break
			}
			err = issue(ctx, tx, result)
			if err == nil {
				break
			}
			// Numbers claimed by an override are stepped over, never reissued.
			if !generated || !errors.Is(err, domain.ErrNumberTaken) || skipped >= domain.MaxSkippedNumbers {
				return err
			}
			s.log.Info("sequence number already taken, skipping",
				zap.String("key", cfg.Key()),
				zap.Int64("counter", next.Counter()),
			)
			state = next
		}
		return s.repo.SaveCounter(ctx, tx, seq)
	})
	if err != nil {
		if db.IsLockTimeoutErr(err) {
			s.metrics.IncLockTimeout(metrics.LockBackendDatabase)
			return domain.IncrementResult{}, fmt.Errorf("%w: %v", domain.ErrLockTimeout, err)
		}
		return domain.IncrementResult{}, err
	}
	return result, nil
}
