package ports

import (
	"context"
	"time"

	"github.com/audiophile/account-core/internal/core/domain"
)

// AccountUpdate is a partial update; nil fields are left untouched.
type AccountUpdate struct {
	Name         *string
	Email        *string
	Role         *string
	PasswordHash *string
	// ClearResetToken removes any outstanding reset token in the same write.
	ClearResetToken bool
}

// LoginAttemptRecorder applies lockout transitions. Both methods must be a
// single atomic update on the account document.
type LoginAttemptRecorder interface {
	// RecordFailedAttempt applies policy.ApplyFailure at now and returns the
	// updated account.
	RecordFailedAttempt(ctx context.Context, id string, now time.Time, policy domain.LockoutPolicy) (*domain.Account, error)
	// RecordSuccessfulLogin clears attempts and lockout and stamps last login.
	RecordSuccessfulLogin(ctx context.Context, id string, now time.Time) error
}

// ResetTokenStore persists hashed password-reset tokens on the account.
type ResetTokenStore interface {
	SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error
	// ClearResetToken withdraws the token only if its digest is still
	// tokenHash; a replaced token is left alone.
	ClearResetToken(ctx context.Context, id, tokenHash string) error
	// ConsumeResetToken atomically matches an unexpired token hash, sets the
	// new password hash, clears the token fields and the lockout state.
	// Returns domain.ErrResetTokenInvalid when nothing matches.
	ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time, passwordHash string) (*domain.Account, error)
}

// AccountRepository is the persistent account store.
type AccountRepository interface {
	LoginAttemptRecorder
	ResetTokenStore

	// FindByEmail expects a normalized email. includeSecret loads the
	// password and reset token hashes.
	FindByEmail(ctx context.Context, email string, includeSecret bool) (*domain.Account, error)
	FindByID(ctx context.Context, id string, includeSecret bool) (*domain.Account, error)
	// Insert returns domain.ErrAccountExists on a duplicate email.
	Insert(ctx context.Context, account *domain.Account) (*domain.Account, error)
	UpdateFields(ctx context.Context, id string, update AccountUpdate) (*domain.Account, error)
	DeleteByID(ctx context.Context, id string) error
	// List returns a page of accounts ordered by creation time and the total count.
	List(ctx context.Context, page, limit int) ([]*domain.Account, int64, error)
}

// SecurityEventRepository persists the security audit trail.
type SecurityEventRepository interface {
	InsertSecurityEvent(ctx context.Context, event *domain.SecurityEvent) error
}
