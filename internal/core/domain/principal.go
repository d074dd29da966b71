package domain

import (
	"strings"
	"time"
)

// Role enumerates the authorization levels a principal can hold.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether the role belongs to the supported role model.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Principal mirrors a row of the principals table.
type Principal struct {
	ID           string
	Email        string
	Username     string
	Role         Role
	PasswordHash string
	CreatedAt    time.Time
}

// Identity is the subset of principal data carried inside a session token.
type Identity struct {
	ID    string
	Email string
	Role  Role
}

// Identity projects the principal onto its token claims.
func (p Principal) Identity() Identity {
	return Identity{ID: p.ID, Email: p.Email, Role: p.Role}
}

// HasPassword reports whether the principal can use the legacy password login.
func (p Principal) HasPassword() bool {
	return p.PasswordHash != ""
}

// NormalizeEmail canonicalizes an email address for use as the natural key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// DefaultUsername derives a username from the local part of an email address.
func DefaultUsername(email string) string {
	email = strings.TrimSpace(email)
	if idx := strings.IndexByte(email, '@'); idx > 0 {
		return email[:idx]
	}
	return email
}
