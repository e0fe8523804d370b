package domain

import (
	"strings"
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// MaxPasswordBytes is the longest password bcrypt accepts.
const MaxPasswordBytes = 72

// Account models a registered customer or administrator.
// PasswordHash and the reset token fields are only populated by an
// include-secret fetch and never leave the process.
type Account struct {
	ID                  string     `json:"id"`
	Name                string     `json:"name"`
	Email               string     `json:"email"`
	PasswordHash        string     `json:"-"`
	Role                string     `json:"role"`
	FailedAttempts      int        `json:"-"`
	LockoutUntil        *time.Time `json:"-"`
	LastLoginAt         *time.Time `json:"last_login_at,omitempty"`
	ResetTokenHash      string     `json:"-"`
	ResetTokenExpiresAt *time.Time `json:"-"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// IsValidRole reports whether role is one of the known account roles.
func IsValidRole(role string) bool {
	return role == RoleUser || role == RoleAdmin
}

// NormalizeEmail lowercases and trims an address. Every write and lookup
// goes through it so the unique index behaves case-insensitively.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HasActiveResetToken reports whether a reset request is outstanding at now.
func (a *Account) HasActiveResetToken(now time.Time) bool {
	return a.ResetTokenHash != "" && a.ResetTokenExpiresAt != nil && now.Before(*a.ResetTokenExpiresAt)
}

// WithoutSecrets returns a copy with the verifier and reset fields cleared.
func (a *Account) WithoutSecrets() *Account {
	if a == nil {
		return nil
	}
	clone := *a
	clone.PasswordHash = ""
	clone.ResetTokenHash = ""
	clone.ResetTokenExpiresAt = nil
	return &clone
}
