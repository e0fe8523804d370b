package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/audiophile/account-core/internal/core/domain"
	"github.com/audiophile/account-core/internal/core/ports"
	"github.com/audiophile/account-core/internal/pkg/metrics"
	"github.com/audiophile/account-core/internal/pkg/validation"
)

// dummyPassword is hashed once and verified against when a login names an
// unknown email, so both paths pay for one bcrypt comparison.
const dummyPassword = "account-core-timing-equalizer"

// AuthDeps are the collaborators of AuthService.
type AuthDeps struct {
	Accounts ports.AccountRepository
	Hasher   ports.PasswordHasher
	Sessions ports.SessionIssuer
	Denylist ports.TokenDenylist
	Resets   *ResetTokenService
	Events   ports.SecurityEventPublisher
}

// AuthService implements registration, login, logout and the password
// lifecycle on top of the lockout policy.
type AuthService struct {
	accounts ports.AccountRepository
	hasher   ports.PasswordHasher
	sessions ports.SessionIssuer
	denylist ports.TokenDenylist
	resets   *ResetTokenService
	events   ports.SecurityEventPublisher
	lockout  domain.LockoutPolicy
	validate *validator.Validate
	log      zerolog.Logger
	now      func() time.Time

	dummyMu   sync.Mutex
	dummyHash string
}

func NewAuthService(deps AuthDeps, lockout domain.LockoutPolicy, log zerolog.Logger) *AuthService {
	events := deps.Events
	if events == nil {
		events = nopPublisher{}
	}
	return &AuthService{
		accounts: deps.Accounts,
		hasher:   deps.Hasher,
		sessions: deps.Sessions,
		denylist: deps.Denylist,
		resets:   deps.Resets,
		events:   events,
		lockout:  domain.NewLockoutPolicy(lockout.Threshold, lockout.Duration),
		validate: validation.New(),
		log:      log.With().Str("component", "auth").Logger(),
		now:      time.Now,
	}
}

type changePasswordInput struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=72,maxbytes=72"`
}

type resetPasswordInput struct {
	Password        string `json:"password" validate:"required,min=8,max=72,maxbytes=72"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
}

type resetRequestInput struct {
	Email string `json:"email" validate:"required,email"`
}

func (s *AuthService) Register(ctx context.Context, in ports.RegisterInput) (*ports.AuthResult, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = domain.NormalizeEmail(in.Email)
	if err := validation.Struct(s.validate, in); err != nil {
		metrics.RegistrationsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	if _, err := s.accounts.FindByEmail(ctx, in.Email, false); err == nil {
		metrics.RegistrationsTotal.WithLabelValues("conflict").Inc()
		return nil, domain.ErrAccountExists
	} else if !errors.Is(err, domain.ErrAccountNotFound) {
		metrics.RegistrationsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	hash, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		metrics.RegistrationsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	account, err := s.accounts.Insert(ctx, &domain.Account{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         domain.RoleUser,
	})
	if err != nil {
		if errors.Is(err, domain.ErrAccountExists) {
			metrics.RegistrationsTotal.WithLabelValues("conflict").Inc()
		} else {
			metrics.RegistrationsTotal.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	session, err := s.issue(account)
	if err != nil {
		return nil, err
	}

	metrics.RegistrationsTotal.WithLabelValues("success").Inc()
	s.publish(ctx, domain.EventRegistered, account.ID, account.Email, "")
	return &ports.AuthResult{Account: account.WithoutSecrets(), Session: session}, nil
}

// Login authenticates email and password. Unknown emails and wrong
// passwords return the same domain.ErrInvalidCredentials; a locked account
// is rejected with *domain.LockedError before the password is checked.
func (s *AuthService) Login(ctx context.Context, email, password string) (*ports.AuthResult, error) {
	email = domain.NormalizeEmail(email)
	if email == "" || password == "" {
		metrics.LoginAttemptsTotal.WithLabelValues("invalid_credentials").Inc()
		return nil, domain.ErrInvalidCredentials
	}

	account, err := s.accounts.FindByEmail(ctx, email, true)
	if err != nil {
		if !errors.Is(err, domain.ErrAccountNotFound) {
			metrics.LoginAttemptsTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		s.equalizeTiming(ctx, password)
		metrics.LoginAttemptsTotal.WithLabelValues("invalid_credentials").Inc()
		s.publish(ctx, domain.EventLoginFailed, "", email, "unknown email")
		return nil, domain.ErrInvalidCredentials
	}

	now := s.now().UTC()
	if err := s.lockout.Check(account, now); err != nil {
		metrics.LoginAttemptsTotal.WithLabelValues("locked").Inc()
		s.publish(ctx, domain.EventLoginRejectedLocked, account.ID, account.Email, "")
		return nil, err
	}

	ok, err := s.hasher.Verify(ctx, password, account.PasswordHash)
	if err != nil {
		metrics.LoginAttemptsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if !ok {
		return nil, s.recordFailure(ctx, account, now)
	}

	if err := s.accounts.RecordSuccessfulLogin(ctx, account.ID, now); err != nil {
		metrics.LoginAttemptsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	s.lockout.ApplySuccess(account, now)

	session, err := s.issue(account)
	if err != nil {
		return nil, err
	}

	metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()
	s.publish(ctx, domain.EventLoginSucceeded, account.ID, account.Email, "")
	return &ports.AuthResult{Account: account.WithoutSecrets(), Session: session}, nil
}

func (s *AuthService) recordFailure(ctx context.Context, account *domain.Account, now time.Time) error {
	updated, err := s.accounts.RecordFailedAttempt(ctx, account.ID, now, s.lockout)
	if err != nil {
		metrics.LoginAttemptsTotal.WithLabelValues("error").Inc()
		return err
	}

	metrics.LoginAttemptsTotal.WithLabelValues("invalid_credentials").Inc()
	s.publish(ctx, domain.EventLoginFailed, account.ID, account.Email, "wrong password")

	// account was unlocked when checked above, so a lock now is a new one.
	if s.lockout.IsLocked(updated, now) {
		metrics.LockoutsTotal.Inc()
		s.log.Warn().
			Str("account_id", account.ID).
			Int("failed_attempts", updated.FailedAttempts).
			Time("lockout_until", *updated.LockoutUntil).
			Msg("account locked after repeated failures")
		s.publish(ctx, domain.EventAccountLocked, account.ID, account.Email, "")
	}
	return domain.ErrInvalidCredentials
}

// equalizeTiming spends one verification on the unknown-email path.
func (s *AuthService) equalizeTiming(ctx context.Context, password string) {
	if hash := s.timingHash(ctx); hash != "" {
		_, _ = s.hasher.Verify(ctx, password, hash)
	}
}

// timingHash returns the dummy verifier, building it on first use. The
// build ignores the caller's cancellation and is retried until it succeeds.
func (s *AuthService) timingHash(ctx context.Context) string {
	s.dummyMu.Lock()
	defer s.dummyMu.Unlock()

	if s.dummyHash == "" {
		hash, err := s.hasher.Hash(context.WithoutCancel(ctx), dummyPassword)
		if err != nil {
			s.log.Warn().Err(err).Msg("could not prepare timing equalizer hash")
			return ""
		}
		s.dummyHash = hash
	}
	return s.dummyHash
}

// Logout revokes the caller's session token until it would have expired.
func (s *AuthService) Logout(ctx context.Context, identity *domain.Identity) error {
	if identity == nil {
		return domain.ErrUnauthenticated
	}
	if err := s.denylist.Revoke(ctx, identity.TokenID, identity.ExpiresAt); err != nil {
		return err
	}
	s.publish(ctx, domain.EventLoggedOut, identity.AccountID, identity.Email, "")
	return nil
}

// Authenticate resolves a bearer token to the identity of a live account.
// The role is read from the account so demotions apply immediately.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*domain.Identity, error) {
	claims, err := s.sessions.Validate(token)
	if err != nil {
		return nil, err
	}

	revoked, err := s.denylist.IsRevoked(ctx, claims.TokenID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, domain.ErrInvalidToken
	}

	account, err := s.accounts.FindByID(ctx, claims.AccountID, false)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, domain.ErrInvalidToken
		}
		return nil, err
	}

	return &domain.Identity{
		AccountID: account.ID,
		Email:     account.Email,
		Role:      account.Role,
		TokenID:   claims.TokenID,
		ExpiresAt: claims.ExpiresAt,
	}, nil
}

// ChangePassword replaces the password after re-verifying the current one.
// Any outstanding reset token is withdrawn in the same write.
func (s *AuthService) ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) error {
	in := changePasswordInput{CurrentPassword: currentPassword, NewPassword: newPassword}
	if err := validation.Struct(s.validate, in); err != nil {
		return err
	}
	if currentPassword == newPassword {
		return domain.NewValidationError("new_password", "new password must differ from the current password")
	}

	account, err := s.accounts.FindByID(ctx, accountID, true)
	if err != nil {
		return err
	}

	ok, err := s.hasher.Verify(ctx, currentPassword, account.PasswordHash)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrInvalidCredentials
	}

	hash, err := s.hasher.Hash(ctx, newPassword)
	if err != nil {
		return err
	}
	if _, err := s.accounts.UpdateFields(ctx, accountID, ports.AccountUpdate{
		PasswordHash:    &hash,
		ClearResetToken: true,
	}); err != nil {
		return err
	}

	s.publish(ctx, domain.EventPasswordChanged, account.ID, account.Email, "")
	return nil
}

// RequestPasswordReset mails a reset link. Unknown emails succeed silently
// so the endpoint cannot be used to probe for accounts.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	in := resetRequestInput{Email: domain.NormalizeEmail(email)}
	if err := validation.Struct(s.validate, in); err != nil {
		return err
	}

	account, err := s.accounts.FindByEmail(ctx, in.Email, false)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			metrics.PasswordResetsTotal.WithLabelValues("request", "unknown_email").Inc()
			s.publish(ctx, domain.EventPasswordResetRequested, "", in.Email, "unknown email")
			return nil
		}
		metrics.PasswordResetsTotal.WithLabelValues("request", "error").Inc()
		return err
	}

	if err := s.resets.Request(ctx, account); err != nil {
		if errors.Is(err, domain.ErrDeliveryFailed) {
			metrics.PasswordResetsTotal.WithLabelValues("request", "delivery_failed").Inc()
			s.log.Error().Err(err).Str("account_id", account.ID).Msg("reset email delivery failed")
			s.publish(ctx, domain.EventResetDeliveryFailed, account.ID, account.Email, "")
		} else {
			metrics.PasswordResetsTotal.WithLabelValues("request", "error").Inc()
		}
		return err
	}

	metrics.PasswordResetsTotal.WithLabelValues("request", "success").Inc()
	s.publish(ctx, domain.EventPasswordResetRequested, account.ID, account.Email, "")
	return nil
}

// ResetPassword redeems a reset token, sets the new password, clears any
// lockout and signs the account in.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword, confirmPassword string) (*ports.AuthResult, error) {
	if token == "" {
		metrics.PasswordResetsTotal.WithLabelValues("confirm", "invalid_token").Inc()
		return nil, domain.ErrResetTokenInvalid
	}
	in := resetPasswordInput{Password: newPassword, ConfirmPassword: confirmPassword}
	if err := validation.Struct(s.validate, in); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(ctx, newPassword)
	if err != nil {
		metrics.PasswordResetsTotal.WithLabelValues("confirm", "error").Inc()
		return nil, err
	}

	account, err := s.resets.Consume(ctx, token, hash)
	if err != nil {
		if errors.Is(err, domain.ErrResetTokenInvalid) {
			metrics.PasswordResetsTotal.WithLabelValues("confirm", "invalid_token").Inc()
		} else {
			metrics.PasswordResetsTotal.WithLabelValues("confirm", "error").Inc()
		}
		return nil, err
	}

	session, err := s.issue(account)
	if err != nil {
		return nil, err
	}

	metrics.PasswordResetsTotal.WithLabelValues("confirm", "success").Inc()
	s.publish(ctx, domain.EventPasswordResetCompleted, account.ID, account.Email, "")
	return &ports.AuthResult{Account: account.WithoutSecrets(), Session: session}, nil
}

// DeleteAccount removes the account after re-verifying its password.
func (s *AuthService) DeleteAccount(ctx context.Context, accountID, password string) error {
	if password == "" {
		return domain.NewValidationError("password", "password is required")
	}

	account, err := s.accounts.FindByID(ctx, accountID, true)
	if err != nil {
		return err
	}

	ok, err := s.hasher.Verify(ctx, password, account.PasswordHash)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrInvalidCredentials
	}

	if err := s.accounts.DeleteByID(ctx, accountID); err != nil {
		return err
	}
	s.publish(ctx, domain.EventAccountDeleted, account.ID, account.Email, "self")
	return nil
}

func (s *AuthService) issue(account *domain.Account) (ports.Session, error) {
	token, expiresAt, err := s.sessions.Issue(account)
	if err != nil {
		return ports.Session{}, err
	}
	return ports.Session{Token: token, ExpiresAt: expiresAt}, nil
}

func (s *AuthService) publish(ctx context.Context, typ domain.SecurityEventType, accountID, email, detail string) {
	publishEvent(ctx, s.events, s.now(), typ, accountID, email, detail)
}

func publishEvent(ctx context.Context, p ports.SecurityEventPublisher, now time.Time, typ domain.SecurityEventType, accountID, email, detail string) {
	info := ports.ClientInfoFrom(ctx)
	p.Publish(domain.SecurityEvent{
		Type:       typ,
		AccountID:  accountID,
		Email:      email,
		IP:         info.IP,
		UserAgent:  info.UserAgent,
		Detail:     detail,
		OccurredAt: now.UTC(),
	})
}

type nopPublisher struct{}

func (nopPublisher) Publish(domain.SecurityEvent) {}
