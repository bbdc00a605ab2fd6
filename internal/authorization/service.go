package authorization

import (
	"context"
	"errors"
)

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidTenant = errors.New("invalid_tenant")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)

// Service decides whether an actor may perform action on object inside a tenant.
type Service interface {
	Authorize(ctx context.Context, actor string, tenantID int64, object string, action string) error
}

// TenantMember binds a user to a role inside one tenant.
type TenantMember struct {
	TenantID int64  `gorm:"primaryKey;autoIncrement:false"`
	UserID   int64  `gorm:"primaryKey;autoIncrement:false"`
	Role     string `gorm:"type:varchar(32);not null"`
}

func (TenantMember) TableName() string { return "tenant_members" }

const (
	RoleOwner    = "owner"
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	RoleMember   = "member"
)
