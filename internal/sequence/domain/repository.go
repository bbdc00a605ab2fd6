package domain

import (
	"context"
	"time"

	"github.com/smallbiznis/erpcore/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, seq *Sequence) error
	FindByName(ctx context.Context, db *gorm.DB, tenantID int64, name string) (*Sequence, error)
	FindForUpdate(ctx context.Context, db *gorm.DB, tenantID int64, name string, period ResetPeriod) (*Sequence, error)
	List(ctx context.Context, db *gorm.DB, tenantID int64, filter ListFilter) ([]Sequence, error)
	// UpdateConfig writes configuration fields when the stored version still
	// equals expectedVersion and bumps it.
	UpdateConfig(ctx context.Context, db *gorm.DB, seq *Sequence, expectedVersion int64) error
	// SaveCounter persists counter fields of a row already locked by the caller.
	SaveCounter(ctx context.Context, db *gorm.DB, seq *Sequence) error
	Delete(ctx context.Context, db *gorm.DB, tenantID int64, name string) error
}

type LogRepository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *SerialNumberLog) error
	ExistsNumber(ctx context.Context, db *gorm.DB, tenantID int64, name, value string) (bool, error)
	List(ctx context.Context, db *gorm.DB, filter LogFilter) ([]SerialNumberLog, error)
}

type ListFilter struct {
	Name        string
	ResetPeriod string
	Limit       int
}

type LogFilter struct {
	TenantID     int64
	SequenceName string
	Override     *bool
	Cursor       *pagination.Cursor
	Limit        int
}

// IncrementResult describes one committed locked increment.
type IncrementResult struct {
	Sequence Sequence
	State    CounterState
	Previous int64
	Reset    bool
}

// MaxSkippedNumbers bounds how many taken numbers one Generate steps over.
const MaxSkippedNumbers = 1000

// IssueFunc runs inside the increment transaction before the counter row is
// saved. Returning an error rolls the increment back, except ErrNumberTaken
// on generation, which advances the counter once more and retries.
type IssueFunc func(ctx context.Context, tx *gorm.DB, res IncrementResult) error

// CounterRepository is the only path that mutates a sequence counter.
type CounterRepository interface {
	Find(ctx context.Context, cfg SequenceConfig) (CounterState, error)
	LockAndIncrement(ctx context.Context, cfg SequenceConfig, now time.Time, issue IssueFunc) (IncrementResult, error)
	Reset(ctx context.Context, cfg SequenceConfig, newState CounterState, issue IssueFunc) (IncrementResult, error)
	GetCurrentState(ctx context.Context, cfg SequenceConfig) (CounterState, error)
}
