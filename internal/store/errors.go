package store

import (
	"errors"
	"strings"

	"github.com/lib/pq"
)

// ErrUsernameTaken is returned when a username is already registered.
var ErrUsernameTaken = errors.New("username already taken")

// pqUniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const pqUniqueViolation = "23505"

// isUniqueViolation checks if err is a unique constraint failure on either backend.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsSQLiteConflictError checks if the error is either a SQLITE_BUSY
// or "database is locked" error. These occur when another connection
// holds the write lock past the busy timeout.
func IsSQLiteConflictError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
