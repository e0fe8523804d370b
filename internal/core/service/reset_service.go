package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/audiophile/account-core/internal/core/domain"
	"github.com/audiophile/account-core/internal/core/ports"
)

const (
	DefaultResetTokenTTL = 30 * time.Minute
	defaultMailTimeout   = 10 * time.Second

	// resetTokenBytes is the entropy of a password-reset token.
	resetTokenBytes = 20
)

// ResetTokenService issues and consumes single-use password reset tokens.
// Only the SHA-256 digest of a token is ever stored.
type ResetTokenService struct {
	store       ports.ResetTokenStore
	mailer      ports.Mailer
	ttl         time.Duration
	resetURL    string
	mailTimeout time.Duration
	log         zerolog.Logger
	now         func() time.Time
}

// ResetConfig tunes token lifetime and the outgoing email.
type ResetConfig struct {
	TTL         time.Duration
	ResetURL    string
	MailTimeout time.Duration
}

func NewResetTokenService(store ports.ResetTokenStore, mailer ports.Mailer, cfg ResetConfig, log zerolog.Logger) *ResetTokenService {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultResetTokenTTL
	}
	if cfg.MailTimeout <= 0 {
		cfg.MailTimeout = defaultMailTimeout
	}
	return &ResetTokenService{
		store:       store,
		mailer:      mailer,
		ttl:         cfg.TTL,
		resetURL:    strings.TrimRight(cfg.ResetURL, "/"),
		mailTimeout: cfg.MailTimeout,
		log:         log,
		now:         time.Now,
	}
}

// Issue stores a fresh token digest on the account, replacing any previous
// one, and returns the plaintext. The plaintext is not kept anywhere.
func (s *ResetTokenService) Issue(ctx context.Context, account *domain.Account) (string, error) {
	b := make([]byte, resetTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}
	plaintext := hex.EncodeToString(b)

	expiresAt := s.now().UTC().Add(s.ttl)
	if err := s.store.SetResetToken(ctx, account.ID, hashResetToken(plaintext), expiresAt); err != nil {
		return "", err
	}
	return plaintext, nil
}

// Consume redeems plaintext and installs verifier in the same atomic store
// operation. Unknown, used and expired tokens all yield
// domain.ErrResetTokenInvalid.
func (s *ResetTokenService) Consume(ctx context.Context, plaintext, verifier string) (*domain.Account, error) {
	if plaintext == "" {
		return nil, domain.ErrResetTokenInvalid
	}
	return s.store.ConsumeResetToken(ctx, hashResetToken(plaintext), s.now().UTC(), verifier)
}

// Request issues a token and mails the reset link. When delivery fails the
// token is withdrawn and a domain.ErrDeliveryFailed error is returned.
func (s *ResetTokenService) Request(ctx context.Context, account *domain.Account) error {
	plaintext, err := s.Issue(ctx, account)
	if err != nil {
		return err
	}

	mailCtx, cancel := context.WithTimeout(ctx, s.mailTimeout)
	defer cancel()

	sendErr := s.mailer.Send(mailCtx, account.Email, "Password reset request", s.resetBody(plaintext))
	if sendErr == nil {
		return nil
	}

	if err := s.store.ClearResetToken(context.WithoutCancel(ctx), account.ID, hashResetToken(plaintext)); err != nil {
		s.log.Error().Err(err).Str("account_id", account.ID).Msg("failed to withdraw reset token after delivery failure")
	}
	if !errors.Is(sendErr, domain.ErrDeliveryFailed) {
		sendErr = fmt.Errorf("%w: %v", domain.ErrDeliveryFailed, sendErr)
	}
	return sendErr
}

func (s *ResetTokenService) resetBody(plaintext string) string {
	return fmt.Sprintf(
		"A password reset was requested for your account.\n\n"+
			"Use the link below to choose a new password:\n\n%s/%s\n\n"+
			"The link expires in %d minutes. If you did not request a reset, ignore this email.\n",
		s.resetURL, plaintext, int(s.ttl.Minutes()),
	)
}

func hashResetToken(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}
