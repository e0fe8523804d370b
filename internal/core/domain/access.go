package domain

import "time"

// Identity is the caller resolved from a validated session token.
type Identity struct {
	AccountID string
	Email     string
	Role      string
	TokenID   string
	ExpiresAt time.Time
}

// Authorize is the access control gate: it admits identity when its role is
// in requiredRoles. An empty role set admits any resolved identity.
func Authorize(identity *Identity, requiredRoles ...string) error {
	if identity == nil || identity.AccountID == "" {
		return ErrUnauthenticated
	}
	if len(requiredRoles) == 0 {
		return nil
	}
	for _, r := range requiredRoles {
		if identity.Role == r {
			return nil
		}
	}
	return ErrForbidden
}
