package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/erpcore/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectSequence       = "sequence"
	ObjectBillOfMaterial = "bill_of_material"
	ObjectProduct        = "product"
	ObjectAuditLog       = "audit_log"
)

const (
	ActionSequenceView     = "sequence.view"
	ActionSequenceGenerate = "sequence.generate"
	ActionSequenceManage   = "sequence.manage"
	ActionSequenceOverride = "sequence.override"
	ActionSequenceReset    = "sequence.reset"

	ActionBOMView     = "bom.view"
	ActionBOMManage   = "bom.manage"
	ActionBOMActivate = "bom.activate"
	ActionBOMObsolete = "bom.obsolete"

	ActionProductManage = "product.manage"

	ActionAuditLogView = "audit_log.view"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, tenantID int64, object string, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	if tenantID <= 0 {
		return ErrInvalidTenant
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject, roleName, err := s.resolveActor(ctx, actor, tenantID)
	if err != nil {
		s.auditDecision(ctx, "authorization.denied", actor, tenantID, object, action)
		return err
	}

	domain := fmt.Sprintf("tenant:%d", tenantID)
	if err := s.ensureGrouping(subject, roleName, domain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Debug("authorization denied",
			zap.String("subject", subject),
			zap.Int64("tenant_id", tenantID),
			zap.String("action", action),
		)
		s.auditDecision(ctx, "authorization.denied", actor, tenantID, object, action)
		return ErrForbidden
	}

	if shouldAuditGrant(action) {
		s.auditDecision(ctx, "authorization.granted", actor, tenantID, object, action)
	}
	return nil
}

func (s *ServiceImpl) resolveActor(ctx context.Context, actor string, tenantID int64) (string, string, error) {
	if actor == "system" {
		return actor, "role:system", nil
	}
	if strings.HasPrefix(actor, "api_key:") {
		apiKeyID, err := snowflake.ParseString(strings.TrimPrefix(actor, "api_key:"))
		if err != nil || apiKeyID == 0 {
			return "", "", ErrInvalidActor
		}
		return actor, "role:system", nil
	}
	if strings.HasPrefix(actor, "user:") {
		userID, err := strconv.ParseInt(strings.TrimPrefix(actor, "user:"), 10, 64)
		if err != nil || userID <= 0 {
			return "", "", ErrInvalidActor
		}
		role, err := s.roleForUser(ctx, tenantID, userID)
		if err != nil {
			return actor, "", err
		}
		return actor, fmt.Sprintf("role:%s", strings.ToLower(role)), nil
	}
	return "", "", ErrInvalidActor
}

func (s *ServiceImpl) roleForUser(ctx context.Context, tenantID int64, userID int64) (string, error) {
	var member TenantMember
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND user_id = ?", tenantID, userID).
		Limit(1).
		Find(&member).Error
	if err != nil {
		return "", err
	}

	role := strings.TrimSpace(member.Role)
	if role == "" {
		return "", ErrForbidden
	}
	return role, nil
}

func (s *ServiceImpl) ensureGrouping(subject string, roleName string, domain string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, domain)
	return err
}

func (s *ServiceImpl) auditDecision(ctx context.Context, decision string, actor string, tenantID int64, object string, action string) {
	if s.auditSvc == nil || tenantID <= 0 {
		return
	}
	err := s.auditSvc.AuditLog(ctx, auditdomain.Entry{
		TenantID:   tenantID,
		Actor:      actor,
		Action:     decision,
		TargetType: "authorization",
		TargetID:   object,
		Metadata: map[string]any{
			"object": object,
			"action": action,
		},
	})
	if err != nil {
		s.log.Warn("failed to audit authorization decision", zap.String("action", action), zap.Error(err))
	}
}

func shouldAuditGrant(action string) bool {
	switch action {
	case ActionSequenceOverride, ActionSequenceReset, ActionBOMActivate, ActionBOMObsolete:
		return true
	default:
		return false
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Member permissions (read-only plus issuing numbers)
		{"role:member", ObjectSequence, ActionSequenceView},
		{"role:member", ObjectSequence, ActionSequenceGenerate},
		{"role:member", ObjectBillOfMaterial, ActionBOMView},

		// Operator permissions
		{"role:operator", ObjectSequence, ActionSequenceView},
		{"role:operator", ObjectSequence, ActionSequenceGenerate},
		{"role:operator", ObjectBillOfMaterial, ActionBOMView},
		{"role:operator", ObjectBillOfMaterial, ActionBOMManage},
		{"role:operator", ObjectProduct, ActionProductManage},

		// Admin permissions
		{"role:admin", ObjectSequence, ActionSequenceView},
		{"role:admin", ObjectSequence, ActionSequenceGenerate},
		{"role:admin", ObjectSequence, ActionSequenceManage},
		{"role:admin", ObjectSequence, ActionSequenceOverride},
		{"role:admin", ObjectBillOfMaterial, ActionBOMView},
		{"role:admin", ObjectBillOfMaterial, ActionBOMManage},
		{"role:admin", ObjectBillOfMaterial, ActionBOMActivate},
		{"role:admin", ObjectBillOfMaterial, ActionBOMObsolete},
		{"role:admin", ObjectProduct, ActionProductManage},
		{"role:admin", ObjectAuditLog, ActionAuditLogView},

		// Owner permissions
		{"role:owner", ObjectSequence, ActionSequenceView},
		{"role:owner", ObjectSequence, ActionSequenceGenerate},
		{"role:owner", ObjectSequence, ActionSequenceManage},
		{"role:owner", ObjectSequence, ActionSequenceOverride},
		{"role:owner", ObjectSequence, ActionSequenceReset},
		{"role:owner", ObjectBillOfMaterial, ActionBOMView},
		{"role:owner", ObjectBillOfMaterial, ActionBOMManage},
		{"role:owner", ObjectBillOfMaterial, ActionBOMActivate},
		{"role:owner", ObjectBillOfMaterial, ActionBOMObsolete},
		{"role:owner", ObjectProduct, ActionProductManage},
		{"role:owner", ObjectAuditLog, ActionAuditLogView},

		// System permissions (automated processes and API keys)
		{"role:system", ObjectSequence, ActionSequenceView},
		{"role:system", ObjectSequence, ActionSequenceGenerate},
		{"role:system", ObjectSequence, ActionSequenceManage},
		{"role:system", ObjectSequence, ActionSequenceOverride},
		{"role:system", ObjectSequence, ActionSequenceReset},
		{"role:system", ObjectBillOfMaterial, ActionBOMView},
		{"role:system", ObjectBillOfMaterial, ActionBOMManage},
		{"role:system", ObjectBillOfMaterial, ActionBOMActivate},
		{"role:system", ObjectBillOfMaterial, ActionBOMObsolete},
		{"role:system", ObjectProduct, ActionProductManage},
		{"role:system", ObjectAuditLog, ActionAuditLogView},
	}

	for _, policy := range policies {
		if len(policy) < 3 {
			continue
		}
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
