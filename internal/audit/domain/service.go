package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/erpcore/pkg/db/pagination"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ActorType string

const (
	ActorTypeSystem ActorType = "system"
	ActorTypeUser   ActorType = "user"
	ActorTypeAPIKey ActorType = "api_key"
)

// AuditLog is an append-only record of an administrative action or an
// authorization decision.
type AuditLog struct {
	ID            snowflake.ID      `json:"id" gorm:"primaryKey"`
	TenantID      int64             `json:"tenant_id" gorm:"not null;index:ix_audit_logs_tenant_created,priority:1"`
	ActorType     string            `json:"actor_type" gorm:"type:varchar(32);not null"`
	ActorID       *string           `json:"actor_id,omitempty" gorm:"type:varchar(64)"`
	Action        string            `json:"action" gorm:"type:varchar(64);not null"`
	TargetType    string            `json:"target_type" gorm:"type:varchar(64);not null"`
	TargetID      *string           `json:"target_id,omitempty" gorm:"type:varchar(128)"`
	Metadata      datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:jsonb"`
	CorrelationID *string           `json:"correlation_id,omitempty" gorm:"type:varchar(64)"`
	CreatedAt     time.Time         `json:"created_at" gorm:"not null;index:ix_audit_logs_tenant_created,priority:2"`
}

func (AuditLog) TableName() string { return "audit_logs" }

type ListFilter struct {
	TenantID   int64
	Action     string
	TargetType string
	TargetID   string
	ActorType  string
	StartAt    *time.Time
	EndAt      *time.Time
	Cursor     *pagination.Cursor
	Limit      int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AuditLog, error)
}

// Entry describes one action to record. Actor uses the same
// "system" / "user:<id>" / "api_key:<id>" form as authorization.
type Entry struct {
	TenantID   int64
	Actor      string
	Action     string
	TargetType string
	TargetID   string
	Metadata   map[string]any
}

type ListAuditLogRequest struct {
	pagination.Pagination
	TenantID   int64
	Action     string
	TargetType string
	TargetID   string
	ActorType  string
	StartAt    *time.Time
	EndAt      *time.Time
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

type Service interface {
	AuditLog(ctx context.Context, entry Entry) error
	// AuditLogTx writes the entry on tx so it commits with the audited change.
	AuditLogTx(ctx context.Context, tx *gorm.DB, entry Entry) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

var (
	ErrInvalidTenant    = errors.New("invalid_tenant")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
	ErrInvalidAction    = errors.New("invalid_action")
)
