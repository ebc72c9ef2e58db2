// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/ashureev/kkoala/internal/domain"
)

// Dialect names a supported database backend.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Repository defines the interface for persisting users and their settings.
type Repository interface {
	// FindUserByUsername retrieves a user and their optional settings record.
	// Returns nil, nil if no such user exists.
	FindUserByUsername(ctx context.Context, username string) (*domain.User, error)

	// CreateUser inserts a user and sets user.ID.
	// Returns ErrUsernameTaken if the username is already registered.
	CreateUser(ctx context.Context, user *domain.User) error

	// UpsertSettings creates or updates the settings record of a user.
	UpsertSettings(ctx context.Context, userID int64, mode domain.DarkMode) error

	// Commit commits the writes of the request session carried by ctx.
	// Without a request session writes are autocommitted and Commit is a no-op.
	Commit(ctx context.Context) error

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
