package domain

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Sequence is the persisted counter row for one tenant sequence.
type Sequence struct {
	ID              int64             `json:"id" gorm:"primaryKey"`
	TenantID        int64             `json:"tenant_id" gorm:"not null;uniqueIndex:ux_sequences_tenant_name_period,priority:1"`
	SequenceName    string            `json:"sequence_name" gorm:"type:varchar(100);not null;uniqueIndex:ux_sequences_tenant_name_period,priority:2"`
	ResetPeriod     string            `json:"reset_period" gorm:"type:varchar(16);not null;uniqueIndex:ux_sequences_tenant_name_period,priority:3"`
	Pattern         string            `json:"pattern" gorm:"type:text;not null"`
	Padding         int               `json:"padding" gorm:"not null"`
	StepSize        int64             `json:"step_size" gorm:"not null"`
	CurrentValue    int64             `json:"current_value" gorm:"not null;default:0"`
	Version         int64             `json:"version" gorm:"not null;default:1"`
	ResetLimit      *int64            `json:"reset_limit,omitempty"`
	LastResetAt     *time.Time        `json:"last_reset_at,omitempty"`
	LastGeneratedAt *time.Time        `json:"last_generated_at,omitempty"`
	EvaluatorType   string            `json:"evaluator_type" gorm:"type:varchar(32);not null;default:default"`
	Metadata        datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt       time.Time         `json:"created_at" gorm:"not null"`
	UpdatedAt       time.Time         `json:"updated_at" gorm:"not null"`
	DeletedAt       gorm.DeletedAt    `json:"-" gorm:"index"`
}

func (Sequence) TableName() string { return "sequences" }

// State returns the counter snapshot stored on the row.
func (s *Sequence) State() (CounterState, error) {
	ts := s.UpdatedAt
	if s.LastGeneratedAt != nil {
		ts = *s.LastGeneratedAt
	}
	if s.LastResetAt != nil && s.LastResetAt.After(ts) {
		ts = *s.LastResetAt
	}
	return NewCounterState(s.CurrentValue, ts, s.LastResetAt)
}

// SerialNumberLog is the append-only record of every issued number.
type SerialNumberLog struct {
	ID              int64             `json:"id" gorm:"primaryKey"`
	TenantID        int64             `json:"tenant_id" gorm:"not null;uniqueIndex:ux_serial_number_logs_number,priority:1;index:ix_serial_number_logs_seq,priority:1"`
	SequenceName    string            `json:"sequence_name" gorm:"type:varchar(100);not null;uniqueIndex:ux_serial_number_logs_number,priority:2;index:ix_serial_number_logs_seq,priority:2"`
	GeneratedNumber string            `json:"generated_number" gorm:"type:varchar(255);not null;uniqueIndex:ux_serial_number_logs_number,priority:3"`
	CounterValue    *int64            `json:"counter_value,omitempty"`
	Override        bool              `json:"override" gorm:"not null;default:false"`
	CauserType      string            `json:"causer_type" gorm:"type:varchar(32);not null"`
	CauserID        string            `json:"causer_id" gorm:"type:varchar(64)"`
	Reason          *string           `json:"reason,omitempty" gorm:"type:text"`
	Metadata        datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt       time.Time         `json:"created_at" gorm:"not null;index:ix_serial_number_logs_seq,priority:3"`
}

func (SerialNumberLog) TableName() string { return "serial_number_logs" }
