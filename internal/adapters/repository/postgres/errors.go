package postgres

import (
	"errors"

	"github.com/lib/pq"
)

// ErrMigration reports a failed schema migration.
var ErrMigration = errors.New("migration failed")

const uniqueViolation = "23505"

// isUniqueViolation reports whether err is a Postgres unique_violation.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
