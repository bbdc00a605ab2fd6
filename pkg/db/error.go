package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	pgCodeUniqueViolation  = "23505"
	pgCodeLockNotAvailable = "55P03"
	pgCodeQueryCanceled    = "57014"
)

func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	if hasPGCode(err, pgCodeUniqueViolation) {
		return true
	}

	msg := err.Error()
	// PostgreSQL (23505) without a typed error
	if strings.Contains(msg, "duplicate key value violates unique constraint") {
		return true
	}
	// MySQL (1062)
	if strings.Contains(msg, "Error 1062") {
		return true
	}
	// SQLite (2067)
	if strings.Contains(msg, "UNIQUE constraint failed") {
		return true
	}

	return false
}

// IsLockTimeoutErr reports whether err means a row lock could not be taken in time.
func IsLockTimeoutErr(err error) bool {
	if err == nil {
		return false
	}
	if hasPGCode(err, pgCodeLockNotAvailable) || hasPGCode(err, pgCodeQueryCanceled) {
		return true
	}

	msg := err.Error()
	// MySQL (1205)
	if strings.Contains(msg, "Error 1205") || strings.Contains(msg, "Lock wait timeout exceeded") {
		return true
	}
	// SQLite (5)
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY") {
		return true
	}
	return false
}

// PGCode extracts the SQLSTATE code from a pgx error, if any.
func PGCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func hasPGCode(err error, code string) bool {
	return PGCode(err) == code
}
