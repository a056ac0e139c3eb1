package ledger

import (
	"errors"
	"strings"
)

// Domain errors for the ledger package.
var (
	// ErrNotFound is returned when a customer, ticket, garment, slot,
	// session or operator lookup matches no row.
	ErrNotFound = errors.New("ledger: not found")

	// ErrConflict is returned when an insert collides with an existing key.
	ErrConflict = errors.New("ledger: already exists")

	// ErrIntegrity is returned when a statement touches more rows than a
	// unique key allows.
	ErrIntegrity = errors.New("ledger: integrity violation")
)

// isUniqueConstraintError matches unique violations from both drivers.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || // sqlite3
		strings.Contains(msg, "SQLSTATE 23505") // pgx
}
