// Package domain contains core domain types for the kkoala application.
package domain

import (
	"time"
)

// DarkMode is a user's display preference.
type DarkMode string

const (
	DarkModeLight  DarkMode = "light"
	DarkModeDark   DarkMode = "dark"
	DarkModeSystem DarkMode = "system"
)

// DefaultDarkMode applies when no identity or stored preference exists.
const DefaultDarkMode = DarkModeSystem

// Valid reports whether m is one of the known preference values.
func (m DarkMode) Valid() bool {
	switch m {
	case DarkModeLight, DarkModeDark, DarkModeSystem:
		return true
	default:
		return false
	}
}

// ParseDarkMode returns the preference named by s, or false if s is unknown.
func ParseDarkMode(s string) (DarkMode, bool) {
	m := DarkMode(s)
	return m, m.Valid()
}

// User represents a registered account.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
	Settings     *Settings `json:"settings,omitempty"`
}

// Settings is the optional per-user settings record.
type Settings struct {
	DarkMode  DarkMode  `json:"dark_mode"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasSettings returns true if the user has a stored settings record.
func (u *User) HasSettings() bool {
	return u != nil && u.Settings != nil
}

// Identity is the optional session identity of a request.
// The zero value means no one is signed in.
type Identity struct {
	Username string
}

// Anonymous is the identity of a request without a signed-in user.
var Anonymous = Identity{}

// Present returns true if the identity names a user.
func (i Identity) Present() bool {
	return i.Username != ""
}
