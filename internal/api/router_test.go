package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/audiophile/account-core/internal/core/domain"
	"github.com/audiophile/account-core/internal/core/ports"
	"github.com/audiophile/account-core/internal/core/service"
	"github.com/audiophile/account-core/internal/infrastructure/crypto"
	"github.com/audiophile/account-core/internal/infrastructure/db/memory"
)

const testSecret = "router-test-secret-at-least-32-bytes"

var resetLink = regexp.MustCompile(`/password/reset/([0-9a-f]{40})`)

type outbox struct {
	mu     sync.Mutex
	bodies map[string]string
}

func (o *outbox) Send(_ context.Context, to, _, body string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.bodies[to] = body
	return nil
}

func (o *outbox) resetToken(t *testing.T, to string) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	m := resetLink.FindStringSubmatch(o.bodies[to])
	if m == nil {
		t.Fatalf("no reset link mailed to %s", to)
	}
	return m[1]
}

type testServer struct {
	srv      *httptest.Server
	accounts *memory.AccountRepository
	mail     *outbox
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := zerolog.Nop()
	accounts := memory.NewAccountRepository()
	mail := &outbox{bodies: map[string]string{}}

	resets := service.NewResetTokenService(accounts, mail, service.ResetConfig{
		TTL:      30 * time.Minute,
		ResetURL: "http://app.test/password/reset",
	}, log)
	authService := service.NewAuthService(service.AuthDeps{
		Accounts: accounts,
		Hasher:   crypto.NewBcryptHasher(4, 0),
		Sessions: crypto.NewJWTIssuer(testSecret, time.Hour),
		Denylist: memory.NewTokenDenylist(),
		Resets:   resets,
	}, domain.NewLockoutPolicy(domain.DefaultLockoutThreshold, domain.DefaultLockoutDuration), log)
	accountService := service.NewAccountService(accounts, nil, log)

	e := NewRouter(authService, accountService, Options{
		Log:      log,
		Registry: prometheus.NewRegistry(),
	})
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, accounts: accounts, mail: mail}
}

func (s *testServer) do(t *testing.T, method, path, token, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, s.srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func (s *testServer) register(t *testing.T, name, email, password string) string {
	t.Helper()
	code, body := s.do(t, http.MethodPost, "/api/v1/users/register", "",
		`{"name":"`+name+`","email":"`+email+`","password":"`+password+`"}`)
	if code != http.StatusCreated {
		t.Fatalf("register %s: expected 201, got %d %v", email, code, body)
	}
	return body["token"].(string)
}

func TestRouter_SessionLifecycle(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "Ada Lovelace", "Ada@X.com", "longpw123")

	code, body := s.do(t, http.MethodPost, "/api/v1/users/register", "",
		`{"name":"Ada Again","email":"ada@x.com","password":"longpw123"}`)
	if code != http.StatusConflict {
		t.Fatalf("duplicate register: expected 409, got %d %v", code, body)
	}

	code, body = s.do(t, http.MethodGet, "/api/v1/users/profile", token, "")
	if code != http.StatusOK || body["email"] != "ada@x.com" {
		t.Fatalf("profile: got %d %v", code, body)
	}
	if _, leaked := body["password_hash"]; leaked {
		t.Fatal("verifier leaked in profile")
	}

	code, _ = s.do(t, http.MethodGet, "/api/v1/users/admin/users", token, "")
	if code != http.StatusForbidden {
		t.Fatalf("admin list as user: expected 403, got %d", code)
	}

	code, _ = s.do(t, http.MethodPost, "/api/v1/users/logout", token, "")
	if code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", code)
	}

	code, body = s.do(t, http.MethodGet, "/api/v1/users/profile", token, "")
	if code != http.StatusUnauthorized {
		t.Fatalf("profile after logout: expected 401, got %d %v", code, body)
	}

	code, body = s.do(t, http.MethodGet, "/api/v1/users/profile", "", "")
	if code != http.StatusUnauthorized || body["error"] != "please login to access this resource" {
		t.Fatalf("profile without token: got %d %v", code, body)
	}
}

func TestRouter_LockoutReturns423(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "Ada Lovelace", "ada@x.com", "longpw123")

	for i := 0; i < domain.DefaultLockoutThreshold; i++ {
		code, body := s.do(t, http.MethodPost, "/api/v1/users/login", "", `{"email":"ada@x.com","password":"wrongpw123"}`)
		if code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d %v", i+1, code, body)
		}
	}

	code, body := s.do(t, http.MethodPost, "/api/v1/users/login", "", `{"email":"ada@x.com","password":"longpw123"}`)
	if code != http.StatusLocked {
		t.Fatalf("expected 423, got %d %v", code, body)
	}
	if body["remaining_minutes"] != float64(30) {
		t.Errorf("expected 30 remaining minutes, got %v", body["remaining_minutes"])
	}
}

func TestRouter_UnknownEmailMatchesWrongPassword(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "Ada Lovelace", "ada@x.com", "longpw123")

	codeA, bodyA := s.do(t, http.MethodPost, "/api/v1/users/login", "", `{"email":"ada@x.com","password":"wrongpw123"}`)
	codeB, bodyB := s.do(t, http.MethodPost, "/api/v1/users/login", "", `{"email":"ghost@x.com","password":"wrongpw123"}`)
	if codeA != codeB || bodyA["error"] != bodyB["error"] {
		t.Fatalf("responses differ: %d %v vs %d %v", codeA, bodyA, codeB, bodyB)
	}
}

func TestRouter_PasswordReset(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "Grace Hopper", "grace@x.com", "longpw123")

	code, known := s.do(t, http.MethodPost, "/api/v1/users/password/reset", "", `{"email":"grace@x.com"}`)
	if code != http.StatusOK {
		t.Fatalf("request reset: expected 200, got %d", code)
	}
	code, unknown := s.do(t, http.MethodPost, "/api/v1/users/password/reset", "", `{"email":"nobody@x.com"}`)
	if code != http.StatusOK || known["message"] != unknown["message"] {
		t.Fatalf("unknown email must look the same: %d %v vs %v", code, unknown, known)
	}

	resetToken := s.mail.resetToken(t, "grace@x.com")
	payload := `{"password":"brandnew99","confirm_password":"brandnew99"}`

	code, body := s.do(t, http.MethodPost, "/api/v1/users/password/reset/"+resetToken, "", payload)
	if code != http.StatusOK || body["token"] == nil {
		t.Fatalf("reset: expected 200 with token, got %d %v", code, body)
	}

	code, _ = s.do(t, http.MethodPost, "/api/v1/users/password/reset/"+resetToken, "", payload)
	if code != http.StatusNotFound {
		t.Fatalf("reused token: expected 404, got %d", code)
	}

	code, _ = s.do(t, http.MethodPost, "/api/v1/users/login", "", `{"email":"grace@x.com","password":"brandnew99"}`)
	if code != http.StatusOK {
		t.Fatalf("login with new password: expected 200, got %d", code)
	}
}

func TestRouter_AdminManagesAccounts(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "Grace Hopper", "grace@x.com", "longpw123")
	userToken := s.register(t, "Ada Lovelace", "ada@x.com", "longpw123")

	grace, err := s.accounts.FindByEmail(context.Background(), "grace@x.com", false)
	if err != nil {
		t.Fatalf("find admin: %v", err)
	}
	role := domain.RoleAdmin
	if _, err := s.accounts.UpdateFields(context.Background(), grace.ID, ports.AccountUpdate{Role: &role}); err != nil {
		t.Fatalf("promote: %v", err)
	}

	code, body := s.do(t, http.MethodPost, "/api/v1/users/login", "", `{"email":"grace@x.com","password":"longpw123"}`)
	if code != http.StatusOK {
		t.Fatalf("admin login: %d %v", code, body)
	}
	adminToken := body["token"].(string)

	code, body = s.do(t, http.MethodGet, "/api/v1/users/admin/users?page=1&limit=1", adminToken, "")
	if code != http.StatusOK {
		t.Fatalf("admin list: %d %v", code, body)
	}
	if body["total"] != float64(2) || body["total_pages"] != float64(2) {
		t.Errorf("unexpected page: %v", body)
	}

	ada, _ := s.accounts.FindByEmail(context.Background(), "ada@x.com", false)
	code, body = s.do(t, http.MethodDelete, "/api/v1/users/admin/users/"+ada.ID, adminToken, "")
	if code != http.StatusOK {
		t.Fatalf("admin delete: %d %v", code, body)
	}

	code, _ = s.do(t, http.MethodGet, "/api/v1/users/profile", userToken, "")
	if code != http.StatusUnauthorized {
		t.Fatalf("deleted account token: expected 401, got %d", code)
	}
}

func TestRouter_OperationalEndpoints(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/health", "/health/ready", "/metrics"} {
		resp, err := http.Get(s.srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s: expected 200, got %d", path, resp.StatusCode)
		}
	}
}

func TestRouter_OverlongPasswordIsBadRequest(t *testing.T) {
	s := newTestServer(t)
	long := strings.Repeat("a", 80)

	code, body := s.do(t, http.MethodPost, "/api/v1/users/register", "",
		`{"name":"Ada Lovelace","email":"ada@x.com","password":"`+long+`"}`)
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %v", code, body)
	}
	fields, _ := body["fields"].(map[string]any)
	if fields["password"] == nil {
		t.Errorf("expected a password field message, got %v", body)
	}

	token := s.register(t, "Ada Lovelace", "ada@x.com", "longpw123")
	code, body = s.do(t, http.MethodPost, "/api/v1/users/password/change", token,
		`{"current_password":"longpw123","new_password":"`+long+`"}`)
	if code != http.StatusBadRequest {
		t.Fatalf("change password: expected 400, got %d %v", code, body)
	}
}
