// Package memory provides an in-process account store for local runs and
// tests. Every method holds the store mutex for its whole read-modify-write,
// which gives the same atomicity the Mongo store gets from single-document
// updates.
package memory

import (
	"context"
	"crypto/subtle"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/audiophile/account-core/internal/core/domain"
	"github.com/audiophile/account-core/internal/core/ports"
)

type AccountRepository struct {
	mu       sync.Mutex
	byID     map[string]*domain.Account
	emailIdx map[string]string
	now      func() time.Time
}

func NewAccountRepository() *AccountRepository {
	return &AccountRepository{
		byID:     make(map[string]*domain.Account),
		emailIdx: make(map[string]string),
		now:      time.Now,
	}
}

func clone(a *domain.Account, includeSecret bool) *domain.Account {
	c := *a
	if !includeSecret {
		return c.WithoutSecrets()
	}
	return &c
}

func (r *AccountRepository) Insert(_ context.Context, account *domain.Account) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := domain.NormalizeEmail(account.Email)
	if _, exists := r.emailIdx[email]; exists {
		return nil, domain.ErrAccountExists
	}

	stored := *account
	stored.ID = uuid.NewString()
	stored.Email = email
	if stored.Role == "" {
		stored.Role = domain.RoleUser
	}
	now := r.now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	r.byID[stored.ID] = &stored
	r.emailIdx[email] = stored.ID
	return clone(&stored, false), nil
}

func (r *AccountRepository) FindByEmail(_ context.Context, email string, includeSecret bool) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.emailIdx[domain.NormalizeEmail(email)]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return clone(r.byID[id], includeSecret), nil
}

func (r *AccountRepository) FindByID(_ context.Context, id string, includeSecret bool) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return clone(a, includeSecret), nil
}

func (r *AccountRepository) UpdateFields(_ context.Context, id string, u ports.AccountUpdate) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}

	if u.Email != nil {
		email := domain.NormalizeEmail(*u.Email)
		if owner, taken := r.emailIdx[email]; taken && owner != id {
			return nil, domain.ErrAccountExists
		}
		delete(r.emailIdx, a.Email)
		r.emailIdx[email] = id
		a.Email = email
	}
	if u.Name != nil {
		a.Name = *u.Name
	}
	if u.Role != nil {
		a.Role = *u.Role
	}
	if u.PasswordHash != nil {
		a.PasswordHash = *u.PasswordHash
	}
	if u.ClearResetToken {
		a.ResetTokenHash = ""
		a.ResetTokenExpiresAt = nil
	}
	a.UpdatedAt = r.now().UTC()
	return clone(a, false), nil
}

func (r *AccountRepository) DeleteByID(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byID[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	delete(r.emailIdx, a.Email)
	delete(r.byID, id)
	return nil
}

func (r *AccountRepository) List(_ context.Context, page, limit int) ([]*domain.Account, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := make([]*domain.Account, 0, len(r.byID))
	for _, a := range r.byID {
		all = append(all, a)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	total := int64(len(all))
	if page < 1 || limit <= 0 {
		page = 1
	}
	// Checked before multiplying so a huge page cannot overflow the offset.
	if limit > 0 && page-1 > len(all)/limit {
		return []*domain.Account{}, total, nil
	}
	skip := (page - 1) * max(limit, 0)
	if skip >= len(all) {
		return []*domain.Account{}, total, nil
	}
	end := len(all)
	if limit > 0 && limit < end-skip {
		end = skip + limit
	}

	out := make([]*domain.Account, 0, end-skip)
	for _, a := range all[skip:end] {
		out = append(out, clone(a, false))
	}
	return out, total, nil
}

func (r *AccountRepository) RecordFailedAttempt(_ context.Context, id string, now time.Time, policy domain.LockoutPolicy) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	policy.ApplyFailure(a, now)
	a.UpdatedAt = now.UTC()
	return clone(a, false), nil
}

func (r *AccountRepository) RecordSuccessfulLogin(_ context.Context, id string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byID[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	domain.LockoutPolicy{}.ApplySuccess(a, now)
	a.UpdatedAt = now.UTC()
	return nil
}

func (r *AccountRepository) SetResetToken(_ context.Context, id, tokenHash string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byID[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	exp := expiresAt
	a.ResetTokenHash = tokenHash
	a.ResetTokenExpiresAt = &exp
	a.UpdatedAt = r.now().UTC()
	return nil
}

// ClearResetToken withdraws the token only while the stored digest is still
// tokenHash.
func (r *AccountRepository) ClearResetToken(_ context.Context, id, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byID[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	if subtle.ConstantTimeCompare([]byte(a.ResetTokenHash), []byte(tokenHash)) != 1 {
		return nil
	}
	a.ResetTokenHash = ""
	a.ResetTokenExpiresAt = nil
	a.UpdatedAt = r.now().UTC()
	return nil
}

// ConsumeResetToken scans every account and compares digests in constant
// time so the scan does not reveal how much of a digest matched.
func (r *AccountRepository) ConsumeResetToken(_ context.Context, tokenHash string, now time.Time, passwordHash string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var match *domain.Account
	for _, a := range r.byID {
		if a.ResetTokenHash == "" {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(a.ResetTokenHash), []byte(tokenHash)) == 1 && a.HasActiveResetToken(now) {
			match = a
		}
	}
	if match == nil {
		return nil, domain.ErrResetTokenInvalid
	}

	match.PasswordHash = passwordHash
	match.ResetTokenHash = ""
	match.ResetTokenExpiresAt = nil
	match.FailedAttempts = 0
	match.LockoutUntil = nil
	match.UpdatedAt = now.UTC()
	return clone(match, false), nil
}
