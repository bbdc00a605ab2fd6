package rls

import (
	"strconv"

	"github.com/smallbiznis/erpcore/pkg/db"
	"gorm.io/gorm"
)

// WithTenant binds the transaction to a tenant for row-level security
// policies. It is a no-op outside PostgreSQL.
func WithTenant(tx *gorm.DB, tenantID int64) error {
	if !db.IsPostgres(tx) {
		return nil
	}
	return tx.Exec(
		"SELECT set_config('app.current_tenant_id', ?, true)",
		strconv.FormatInt(tenantID, 10),
	).Error
}

// WithLockTimeout bounds how long statements in the transaction wait for row locks.
func WithLockTimeout(tx *gorm.DB, timeoutMS int64) error {
	if !db.IsPostgres(tx) || timeoutMS <= 0 {
		return nil
	}
	return tx.Exec("SELECT set_config('lock_timeout', ?, true)", strconv.FormatInt(timeoutMS, 10)+"ms").Error
}
