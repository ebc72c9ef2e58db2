// Package preference resolves per-session display preferences.
package preference

import (
	"context"
	"log/slog"

	"github.com/ashureev/kkoala/internal/domain"
)

// UserFinder looks up users by username. It returns nil, nil for unknown users.
type UserFinder interface {
	FindUserByUsername(ctx context.Context, username string) (*domain.User, error)
}

// Resolver resolves the dark mode preference of a session identity.
type Resolver struct {
	users  UserFinder
	logger *slog.Logger
}

// NewResolver creates a Resolver backed by users.
func NewResolver(users UserFinder, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{users: users, logger: logger}
}

// Resolve returns the stored dark mode of id, or domain.DefaultDarkMode when
// there is no identity, no user, no settings record, or the lookup fails.
// Stored values are returned as-is; out-of-domain values are only logged.
func (r *Resolver) Resolve(ctx context.Context, id domain.Identity) domain.DarkMode {
	if !id.Present() {
		return domain.DefaultDarkMode
	}

	user, err := r.users.FindUserByUsername(ctx, id.Username)
	if err != nil {
		r.logger.Warn("Failed to load dark mode preference", "username", id.Username, "error", err)
		return domain.DefaultDarkMode
	}
	if !user.HasSettings() {
		return domain.DefaultDarkMode
	}

	mode := user.Settings.DarkMode
	if !mode.Valid() {
		r.logger.Warn("Stored dark mode outside known values", "username", id.Username, "dark_mode", string(mode))
	}
	return mode
}
