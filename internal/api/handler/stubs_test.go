package handler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/audiophile/account-core/internal/core/domain"
	"github.com/audiophile/account-core/internal/core/ports"
)

type stubAuthService struct {
	registerFn       func(ctx context.Context, in ports.RegisterInput) (*ports.AuthResult, error)
	loginFn          func(ctx context.Context, email, password string) (*ports.AuthResult, error)
	logoutFn         func(ctx context.Context, identity *domain.Identity) error
	changePasswordFn func(ctx context.Context, accountID, current, next string) error
	requestResetFn   func(ctx context.Context, email string) error
	resetPasswordFn  func(ctx context.Context, token, password, confirm string) (*ports.AuthResult, error)
	deleteAccountFn  func(ctx context.Context, accountID, password string) error
}

func (s *stubAuthService) Register(ctx context.Context, in ports.RegisterInput) (*ports.AuthResult, error) {
	return s.registerFn(ctx, in)
}

func (s *stubAuthService) Login(ctx context.Context, email, password string) (*ports.AuthResult, error) {
	return s.loginFn(ctx, email, password)
}

func (s *stubAuthService) Logout(ctx context.Context, identity *domain.Identity) error {
	return s.logoutFn(ctx, identity)
}

func (s *stubAuthService) Authenticate(context.Context, string) (*domain.Identity, error) {
	return nil, domain.ErrInvalidToken
}

func (s *stubAuthService) ChangePassword(ctx context.Context, accountID, current, next string) error {
	return s.changePasswordFn(ctx, accountID, current, next)
}

func (s *stubAuthService) RequestPasswordReset(ctx context.Context, email string) error {
	return s.requestResetFn(ctx, email)
}

func (s *stubAuthService) ResetPassword(ctx context.Context, token, password, confirm string) (*ports.AuthResult, error) {
	return s.resetPasswordFn(ctx, token, password, confirm)
}

func (s *stubAuthService) DeleteAccount(ctx context.Context, accountID, password string) error {
	return s.deleteAccountFn(ctx, accountID, password)
}

type stubAccountService struct {
	getProfileFn    func(ctx context.Context, id string) (*domain.Account, error)
	updateProfileFn func(ctx context.Context, id string, in ports.ProfileUpdateInput) (*domain.Account, error)
	listFn          func(ctx context.Context, page, limit int) (*ports.ListAccountsResult, error)
	getFn           func(ctx context.Context, id string) (*domain.Account, error)
	updateRoleFn    func(ctx context.Context, actor *domain.Identity, id, role string) (*domain.Account, error)
	removeFn        func(ctx context.Context, actor *domain.Identity, id string) error
}

func (s *stubAccountService) GetProfile(ctx context.Context, id string) (*domain.Account, error) {
	return s.getProfileFn(ctx, id)
}

func (s *stubAccountService) UpdateProfile(ctx context.Context, id string, in ports.ProfileUpdateInput) (*domain.Account, error) {
	return s.updateProfileFn(ctx, id, in)
}

func (s *stubAccountService) ListAccounts(ctx context.Context, page, limit int) (*ports.ListAccountsResult, error) {
	return s.listFn(ctx, page, limit)
}

func (s *stubAccountService) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	return s.getFn(ctx, id)
}

func (s *stubAccountService) UpdateRole(ctx context.Context, actor *domain.Identity, id, role string) (*domain.Account, error) {
	return s.updateRoleFn(ctx, actor, id, role)
}

func (s *stubAccountService) RemoveAccount(ctx context.Context, actor *domain.Identity, id string) error {
	return s.removeFn(ctx, actor, id)
}

// newContext builds an echo context with the validator installed, as the
// router does.
func newContext(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	e.Validator = NewValidator()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

// withIdentity simulates the Auth middleware having run.
func withIdentity(c echo.Context, identity *domain.Identity) {
	c.Set("identity", identity)
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == "token" {
			return ck
		}
	}
	return nil
}
