package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/audiophile/account-core/internal/core/domain"
	"github.com/audiophile/account-core/internal/core/ports"
	"github.com/audiophile/account-core/internal/pkg/validation"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	// MaxPage bounds the skip offset handed to the store.
	MaxPage = 1_000_000
)

// AccountService implements profile management and the admin account
// operations.
type AccountService struct {
	accounts ports.AccountRepository
	events   ports.SecurityEventPublisher
	validate *validator.Validate
	log      zerolog.Logger
	now      func() time.Time
}

func NewAccountService(accounts ports.AccountRepository, events ports.SecurityEventPublisher, log zerolog.Logger) *AccountService {
	if events == nil {
		events = nopPublisher{}
	}
	return &AccountService{
		accounts: accounts,
		events:   events,
		validate: validation.New(),
		log:      log.With().Str("component", "accounts").Logger(),
		now:      time.Now,
	}
}

func (s *AccountService) GetProfile(ctx context.Context, accountID string) (*domain.Account, error) {
	return s.accounts.FindByID(ctx, accountID, false)
}

// UpdateProfile applies name and email changes. An email already used by
// another account yields domain.ErrAccountExists.
func (s *AccountService) UpdateProfile(ctx context.Context, accountID string, in ports.ProfileUpdateInput) (*domain.Account, error) {
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		in.Name = &name
	}
	if in.Email != nil {
		email := domain.NormalizeEmail(*in.Email)
		in.Email = &email
	}
	if err := validation.Struct(s.validate, in); err != nil {
		return nil, err
	}

	if in.Name == nil && in.Email == nil {
		return s.accounts.FindByID(ctx, accountID, false)
	}

	if in.Email != nil {
		existing, err := s.accounts.FindByEmail(ctx, *in.Email, false)
		if err == nil && existing.ID != accountID {
			return nil, domain.ErrAccountExists
		}
	}

	return s.accounts.UpdateFields(ctx, accountID, ports.AccountUpdate{Name: in.Name, Email: in.Email})
}

// ListAccounts returns one page of accounts. page < 1 is treated as 1 and
// limit is clamped to [1, MaxPageSize] with DefaultPageSize for zero.
func (s *AccountService) ListAccounts(ctx context.Context, page, limit int) (*ports.ListAccountsResult, error) {
	switch {
	case page < 1:
		page = 1
	case page > MaxPage:
		page = MaxPage
	}
	switch {
	case limit <= 0:
		limit = DefaultPageSize
	case limit > MaxPageSize:
		limit = MaxPageSize
	}

	items, total, err := s.accounts.List(ctx, page, limit)
	if err != nil {
		return nil, err
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return &ports.ListAccountsResult{
		Items:      items,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
	}, nil
}

func (s *AccountService) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	return s.accounts.FindByID(ctx, accountID, false)
}

// UpdateRole changes another account's role. Admins cannot change their own
// role, which keeps at least the acting admin in place.
func (s *AccountService) UpdateRole(ctx context.Context, actor *domain.Identity, accountID, role string) (*domain.Account, error) {
	if err := domain.Authorize(actor, domain.RoleAdmin); err != nil {
		return nil, err
	}
	if !domain.IsValidRole(role) {
		return nil, domain.NewValidationError("role", "role must be one of: user admin")
	}
	if actor.AccountID == accountID {
		return nil, domain.NewValidationError("role", "you cannot change your own role")
	}

	account, err := s.accounts.UpdateFields(ctx, accountID, ports.AccountUpdate{Role: &role})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("actor_id", actor.AccountID).
		Str("account_id", accountID).
		Str("role", role).
		Msg("account role changed")
	publishEvent(ctx, s.events, s.now(), domain.EventRoleChanged, account.ID, account.Email, "role="+role+" by="+actor.AccountID)
	return account, nil
}

// RemoveAccount deletes another account on behalf of an admin.
func (s *AccountService) RemoveAccount(ctx context.Context, actor *domain.Identity, accountID string) error {
	if err := domain.Authorize(actor, domain.RoleAdmin); err != nil {
		return err
	}
	if actor.AccountID == accountID {
		return domain.NewValidationError("id", "use the profile endpoint to delete your own account")
	}

	account, err := s.accounts.FindByID(ctx, accountID, false)
	if err != nil {
		return err
	}
	if err := s.accounts.DeleteByID(ctx, accountID); err != nil {
		return err
	}

	publishEvent(ctx, s.events, s.now(), domain.EventAccountDeleted, account.ID, account.Email, "by="+actor.AccountID)
	return nil
}
