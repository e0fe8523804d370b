package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/audiophile/account-core/internal/core/domain"
	"github.com/audiophile/account-core/internal/core/ports"
	"github.com/audiophile/account-core/internal/infrastructure/crypto"
	"github.com/audiophile/account-core/internal/infrastructure/db/memory"
)

const testSecret = "test-secret-that-is-at-least-32-bytes!!"

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type stubMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

type sentMail struct {
	to, subject, body string
}

func (m *stubMailer) Send(_ context.Context, to, subject, body string) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

func (m *stubMailer) last(t *testing.T) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatal("expected an email to be sent")
	}
	return m.sent[len(m.sent)-1]
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.SecurityEvent
}

func (p *recordingPublisher) Publish(e domain.SecurityEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) types() []domain.SecurityEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.SecurityEventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

func (p *recordingPublisher) has(typ domain.SecurityEventType) bool {
	for _, t := range p.types() {
		if t == typ {
			return true
		}
	}
	return false
}

type authFixture struct {
	svc      *AuthService
	accounts *memory.AccountRepository
	resets   *ResetTokenService
	mailer   *stubMailer
	events   *recordingPublisher
	clock    *clock
}

const testResetURL = "http://localhost:5173/password/reset"

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	accounts := memory.NewAccountRepository()
	mailer := &stubMailer{}
	events := &recordingPublisher{}
	clk := newClock()

	resets := NewResetTokenService(accounts, mailer, ResetConfig{ResetURL: testResetURL}, zerolog.Nop())
	resets.now = clk.Now

	svc := NewAuthService(AuthDeps{
		Accounts: accounts,
		Hasher:   crypto.NewBcryptHasher(bcrypt.MinCost, 4),
		Sessions: crypto.NewJWTIssuer(testSecret, time.Hour),
		Denylist: memory.NewTokenDenylist(),
		Resets:   resets,
		Events:   events,
	}, domain.NewLockoutPolicy(0, 0), zerolog.Nop())
	svc.now = clk.Now

	return &authFixture{svc: svc, accounts: accounts, resets: resets, mailer: mailer, events: events, clock: clk}
}

func (f *authFixture) register(t *testing.T, name, email, password string) *ports.AuthResult {
	t.Helper()
	res, err := f.svc.Register(context.Background(), ports.RegisterInput{Name: name, Email: email, Password: password})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return res
}

func (f *authFixture) stored(t *testing.T, id string) *domain.Account {
	t.Helper()
	a, err := f.accounts.FindByID(context.Background(), id, true)
	if err != nil {
		t.Fatalf("find %s: %v", id, err)
	}
	return a
}

func assertValidationField(t *testing.T, err error, field string) {
	t.Helper()
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T (%v)", err, err)
	}
	if _, ok := verr.Fields[field]; !ok {
		t.Fatalf("expected validation message for %q, got %v", field, verr.Fields)
	}
}
