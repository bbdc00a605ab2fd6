package authorization

import (
	"context"
	"testing"

	auditdomain "github.com/smallbiznis/erpcore/internal/audit/domain"
	"github.com/smallbiznis/erpcore/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type auditMock struct {
	mock.Mock
}

func (m *auditMock) AuditLog(ctx context.Context, entry auditdomain.Entry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *auditMock) AuditLogTx(ctx context.Context, tx *gorm.DB, entry auditdomain.Entry) error {
	args := m.Called(ctx, tx, entry)
	return args.Error(0)
}

func (m *auditMock) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(auditdomain.ListAuditLogResponse), args.Error(1)
}

func newTestService(t *testing.T, audit auditdomain.Service) Service {
	t.Helper()
	conn, err := db.NewTest(t.Name())
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&TenantMember{}))
	require.NoError(t, conn.Create(&[]TenantMember{
		{TenantID: 10, UserID: 1, Role: RoleOwner},
		{TenantID: 10, UserID: 2, Role: RoleMember},
		{TenantID: 10, UserID: 3, Role: RoleAdmin},
	}).Error)

	enforcer, err := NewEnforcer(conn)
	require.NoError(t, err)

	return NewService(Params{DB: conn, Log: zap.NewNop(), Enforcer: enforcer, AuditSvc: audit})
}

func TestAuthorizeRoles(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	cases := []struct {
		name   string
		actor  string
		action string
		object string
		want   error
	}{
		{name: "owner resets", actor: "user:1", object: ObjectSequence, action: ActionSequenceReset},
		{name: "admin overrides", actor: "user:3", object: ObjectSequence, action: ActionSequenceOverride},
		{name: "admin cannot reset", actor: "user:3", object: ObjectSequence, action: ActionSequenceReset, want: ErrForbidden},
		{name: "member generates", actor: "user:2", object: ObjectSequence, action: ActionSequenceGenerate},
		{name: "member cannot activate", actor: "user:2", object: ObjectBillOfMaterial, action: ActionBOMActivate, want: ErrForbidden},
		{name: "non member", actor: "user:99", object: ObjectSequence, action: ActionSequenceView, want: ErrForbidden},
		{name: "system", actor: "system", object: ObjectBillOfMaterial, action: ActionBOMObsolete},
		{name: "malformed actor", actor: "robot", object: ObjectSequence, action: ActionSequenceView, want: ErrInvalidActor},
		{name: "malformed user", actor: "user:abc", object: ObjectSequence, action: ActionSequenceView, want: ErrInvalidActor},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.Authorize(ctx, tc.actor, 10, tc.object, tc.action)
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestAuthorizeValidatesInput(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Authorize(ctx, "", 10, ObjectSequence, ActionSequenceView), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, "system", 0, ObjectSequence, ActionSequenceView), ErrInvalidTenant)
	assert.ErrorIs(t, svc.Authorize(ctx, "system", 10, "", ActionSequenceView), ErrInvalidObject)
	assert.ErrorIs(t, svc.Authorize(ctx, "system", 10, ObjectSequence, " "), ErrInvalidAction)
}

func TestAuthorizeAuditsDenialsAndSensitiveGrants(t *testing.T) {
	audit := &auditMock{}
	audit.On("AuditLog", mock.Anything, mock.MatchedBy(func(e auditdomain.Entry) bool {
		return e.Action == "authorization.denied" && e.Actor == "user:2"
	})).Return(nil).Once()
	audit.On("AuditLog", mock.Anything, mock.MatchedBy(func(e auditdomain.Entry) bool {
		return e.Action == "authorization.granted" && e.Actor == "user:1"
	})).Return(nil).Once()

	svc := newTestService(t, audit)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Authorize(ctx, "user:2", 10, ObjectSequence, ActionSequenceOverride), ErrForbidden)
	assert.NoError(t, svc.Authorize(ctx, "user:1", 10, ObjectSequence, ActionSequenceOverride))
	assert.NoError(t, svc.Authorize(ctx, "user:1", 10, ObjectSequence, ActionSequenceView))

	audit.AssertExpectations(t)
}
