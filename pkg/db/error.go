package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Postgres SQLSTATE codes the services react to.
const (
	PgUniqueViolation      = "23505"
	PgSerializationFailure = "40001"
	PgDeadlockDetected     = "40P01"
	PgLockNotAvailable     = "55P03"
)

// PgCode returns the SQLSTATE of a wrapped pgx error, or "".
func PgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// Driver messages for unique violations when no typed error survives.
var duplicateKeyMessages = []string{
	"duplicate key value violates unique constraint", // postgres, flattened
	"Error 1062",               // mysql
	"UNIQUE constraint failed", // sqlite
}

func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || PgCode(err) == PgUniqueViolation {
		return true
	}
	msg := err.Error()
	for _, m := range duplicateKeyMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// IsTransient reports contention errors that succeed when the transaction is
// retried: serialization failures, deadlocks and NOWAIT lock misses.
func IsTransient(err error) bool {
	switch PgCode(err) {
	case PgSerializationFailure, PgDeadlockDetected, PgLockNotAvailable:
		return true
	}
	return false
}
