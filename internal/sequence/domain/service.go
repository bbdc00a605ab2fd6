package domain

import (
	"context"
	"time"

	"github.com/smallbiznis/erpcore/internal/sequence/pattern"
)

type Service interface {
	Generate(ctx context.Context, req GenerateRequest) (GeneratedNumber, error)
	Preview(ctx context.Context, req PreviewRequest) (*PreviewResult, error)
	Override(ctx context.Context, req OverrideRequest) (*SerialNumberLog, error)
	Reset(ctx context.Context, req ResetRequest) (*Response, error)

	CreateSequence(ctx context.Context, req CreateRequest) (*Response, error)
	UpdateSequence(ctx context.Context, req UpdateRequest) (*Response, error)
	GetSequence(ctx context.Context, tenantID int64, name string) (*Response, error)
	ListSequences(ctx context.Context, req ListRequest) ([]Response, error)
	DeleteSequence(ctx context.Context, req DeleteRequest) error

	ValidatePattern(ctx context.Context, req ValidatePatternRequest) pattern.ValidationResult
	ListLogs(ctx context.Context, req ListLogsRequest) (*ListLogsResponse, error)
}

type GenerateRequest struct {
	TenantID     int64
	SequenceName string
	Context      map[string]any
	Actor        string
}

type PreviewRequest struct {
	TenantID     int64
	SequenceName string
	Context      map[string]any
}

type PreviewResult struct {
	Value           string       `json:"value"`
	CurrentValue    int64        `json:"current_value"`
	NextCounter     int64        `json:"next_counter"`
	ResetDue        bool         `json:"reset_due"`
	WillResetOnNext bool         `json:"will_reset_on_next"`
	RemainingCount  *int64       `json:"remaining_count"`
	NextResetAt     *time.Time   `json:"next_reset_at"`
	ResetTrigger    ResetTrigger `json:"reset_trigger"`
	Version         int64        `json:"version"`
	Warnings        []string     `json:"warnings,omitempty"`
}

type OverrideRequest struct {
	TenantID     int64
	SequenceName string
	Value        string
	Reason       string
	Actor        string
}

type ResetRequest struct {
	TenantID     int64
	SequenceName string
	NewValue     int64
	Reason       string
	Actor        string
}

type CreateRequest struct {
	TenantID      int64          `json:"-"`
	Actor         string         `json:"-"`
	Name          string         `json:"name"`
	Pattern       string         `json:"pattern"`
	ResetPeriod   string         `json:"reset_period"`
	Padding       *int           `json:"padding"`
	StepSize      *int64         `json:"step_size"`
	ResetLimit    *int64         `json:"reset_limit"`
	EvaluatorType string         `json:"evaluator_type"`
	Metadata      map[string]any `json:"metadata"`
}

// UpdateRequest changes configuration only; counters move through
// Generate, Reset and Override.
type UpdateRequest struct {
	TenantID        int64          `json:"-"`
	Actor           string         `json:"-"`
	Name            string         `json:"-"`
	ExpectedVersion *int64         `json:"expected_version"`
	Pattern         *string        `json:"pattern"`
	Padding         *int           `json:"padding"`
	StepSize        *int64         `json:"step_size"`
	ResetLimit      *int64         `json:"reset_limit"`
	ClearResetLimit bool           `json:"clear_reset_limit"`
	Metadata        map[string]any `json:"metadata"`
}

type DeleteRequest struct {
	TenantID int64
	Name     string
	Actor    string
}

type ListRequest struct {
	TenantID    int64
	Name        string
	ResetPeriod string
}

type ValidatePatternRequest struct {
	Pattern string         `json:"pattern"`
	Context map[string]any `json:"context"`
}

type ListLogsRequest struct {
	TenantID     int64
	SequenceName string
	Override     *bool
	PageToken    string
	PageSize     int
}

type ListLogsResponse struct {
	Logs          []SerialNumberLog `json:"logs"`
	NextPageToken string            `json:"next_page_token,omitempty"`
	HasMore       bool              `json:"has_more"`
}

type Response struct {
	ID              string         `json:"id"`
	TenantID        string         `json:"tenant_id"`
	Name            string         `json:"name"`
	Pattern         string         `json:"pattern"`
	ResetPeriod     string         `json:"reset_period"`
	Padding         int            `json:"padding"`
	StepSize        int64          `json:"step_size"`
	CurrentValue    int64          `json:"current_value"`
	Version         int64          `json:"version"`
	ResetLimit      *int64         `json:"reset_limit,omitempty"`
	LastResetAt     *time.Time     `json:"last_reset_at,omitempty"`
	LastGeneratedAt *time.Time     `json:"last_generated_at,omitempty"`
	EvaluatorType   string         `json:"evaluator_type"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}
