package domain

import (
	"strings"
	"time"
)

// Usuario is the account returned by the backend login endpoint.
// Passwords are verified by the backend; the dashboard only keeps the token.
type Usuario struct {
	ID     int64  `json:"id"`
	Nombre string `json:"nombre"`
	Email  string `json:"email"`
	Rol    string `json:"rol"`
}

// IsAdmin returns true for the backend's administrator role.
func (u *Usuario) IsAdmin() bool {
	return strings.EqualFold(u.Rol, "admin")
}

// Initial returns the first letter of the user's name for the avatar badge.
func (u *Usuario) Initial() string {
	name := strings.TrimSpace(u.Nombre)
	if name == "" {
		name = u.Email
	}
	for _, r := range name {
		return strings.ToUpper(string(r))
	}
	return "?"
}

// Session binds a browser cookie to a backend token.
type Session struct {
	ID        string
	Token     string
	User      Usuario
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session is past its expiry at the given time.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
