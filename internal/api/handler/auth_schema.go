package handler

import (
	"time"

	"github.com/audiophile/account-core/internal/core/domain"
	"github.com/audiophile/account-core/internal/core/ports"
)

// errorResponse is the standard error envelope returned on all 4xx/5xx responses.
type errorResponse struct {
	Error            string            `json:"error"`
	Fields           map[string]string `json:"fields,omitempty"`
	RemainingMinutes int               `json:"remaining_minutes,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// --- Request types ---

type registerRequest struct {
	Name     string `json:"name"     validate:"required,min=4,max=30"`
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72,maxbytes=72"`
}

type loginRequest struct {
	Email    string `json:"email"    validate:"required"`
	Password string `json:"password" validate:"required"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password"     validate:"required,min=8,max=72,maxbytes=72"`
}

type resetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetPasswordRequest struct {
	Password        string `json:"password"         validate:"required,min=8,max=72,maxbytes=72"`
	ConfirmPassword string `json:"confirm_password" validate:"required"`
}

type updateProfileRequest struct {
	Name  *string `json:"name,omitempty"  validate:"omitempty,min=4,max=30"`
	Email *string `json:"email,omitempty" validate:"omitempty,email"`
}

type deleteAccountRequest struct {
	Password string `json:"password" validate:"required"`
}

type updateRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=user admin"`
}

// --- Response types ---

type accountResponse struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Role        string     `json:"role"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type authResponse struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
	User      accountResponse `json:"user"`
}

type listAccountsResponse struct {
	Users      []accountResponse `json:"users"`
	Total      int64             `json:"total"`
	Page       int               `json:"page"`
	Limit      int               `json:"limit"`
	TotalPages int               `json:"total_pages"`
}

func toAccountResponse(a *domain.Account) accountResponse {
	return accountResponse{
		ID:          a.ID,
		Name:        a.Name,
		Email:       a.Email,
		Role:        a.Role,
		LastLoginAt: a.LastLoginAt,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

func toAuthResponse(res *ports.AuthResult) authResponse {
	return authResponse{
		Token:     res.Session.Token,
		ExpiresAt: res.Session.ExpiresAt,
		User:      toAccountResponse(res.Account),
	}
}

func toListAccountsResponse(res *ports.ListAccountsResult) listAccountsResponse {
	users := make([]accountResponse, 0, len(res.Items))
	for _, a := range res.Items {
		users = append(users, toAccountResponse(a))
	}
	return listAccountsResponse{
		Users:      users,
		Total:      res.Total,
		Page:       res.Page,
		Limit:      res.Limit,
		TotalPages: res.TotalPages,
	}
}
