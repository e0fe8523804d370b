package ports

import (
	"context"
	"time"

	"github.com/audiophile/account-core/internal/core/domain"
)

// PasswordHasher is the credential hasher.
type PasswordHasher interface {
	Hash(ctx context.Context, plaintext string) (string, error)
	// Verify reports false for a mismatch or a malformed verifier. The error
	// is reserved for the caller's context ending before work could start.
	Verify(ctx context.Context, plaintext, verifier string) (bool, error)
}

// SessionClaims is what a validated session token asserts.
type SessionClaims struct {
	AccountID string
	Role      string
	TokenID   string
	ExpiresAt time.Time
}

// SessionIssuer issues and validates bearer session tokens.
type SessionIssuer interface {
	Issue(account *domain.Account) (token string, expiresAt time.Time, err error)
	// Validate returns domain.ErrInvalidToken for any bad token.
	Validate(token string) (*SessionClaims, error)
}

// TokenDenylist revokes session tokens ahead of their expiry.
type TokenDenylist interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Mailer is the outbound email collaborator. Implementations wrap
// domain.ErrDeliveryFailed.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SecurityEventPublisher hands audit events off the request path.
type SecurityEventPublisher interface {
	Publish(event domain.SecurityEvent)
}
