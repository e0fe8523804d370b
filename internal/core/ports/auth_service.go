package ports

import (
	"context"
	"time"

	"github.com/audiophile/account-core/internal/core/domain"
)

// RegisterInput carries the registration form.
type RegisterInput struct {
	Name     string `json:"name" validate:"required,min=4,max=30"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72,maxbytes=72"`
}

// ProfileUpdateInput carries optional profile changes.
type ProfileUpdateInput struct {
	Name  *string `json:"name,omitempty" validate:"omitempty,min=4,max=30"`
	Email *string `json:"email,omitempty" validate:"omitempty,email"`
}

// Session is an issued bearer credential.
type Session struct {
	Token     string
	ExpiresAt time.Time
}

// AuthResult is returned by operations that sign the caller in.
type AuthResult struct {
	Account *domain.Account
	Session Session
}

// AuthService is the authentication use-case boundary used by the HTTP layer.
type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*AuthResult, error)
	Login(ctx context.Context, email, password string) (*AuthResult, error)
	Logout(ctx context.Context, identity *domain.Identity) error
	Authenticate(ctx context.Context, token string) (*domain.Identity, error)
	ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword, confirmPassword string) (*AuthResult, error)
	DeleteAccount(ctx context.Context, accountID, password string) error
}

// ListAccountsResult is a page of accounts.
type ListAccountsResult struct {
	Items      []*domain.Account
	Total      int64
	Page       int
	Limit      int
	TotalPages int
}

// AccountService covers profile and administrative account operations.
type AccountService interface {
	GetProfile(ctx context.Context, accountID string) (*domain.Account, error)
	UpdateProfile(ctx context.Context, accountID string, in ProfileUpdateInput) (*domain.Account, error)
	ListAccounts(ctx context.Context, page, limit int) (*ListAccountsResult, error)
	GetAccount(ctx context.Context, accountID string) (*domain.Account, error)
	UpdateRole(ctx context.Context, actor *domain.Identity, accountID, role string) (*domain.Account, error)
	RemoveAccount(ctx context.Context, actor *domain.Identity, accountID string) error
}
