package memory

import (
	"context"
	"sync"
	"time"
)

// TokenDenylist keeps revoked session token ids in process memory. Entries
// are pruned lazily once the token would have expired anyway.
type TokenDenylist struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	now     func() time.Time
}

func NewTokenDenylist() *TokenDenylist {
	return &TokenDenylist{revoked: make(map[string]time.Time), now: time.Now}
}

func (d *TokenDenylist) Revoke(_ context.Context, tokenID string, until time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if !until.After(now) {
		return nil
	}
	d.revoked[tokenID] = until

	for id, exp := range d.revoked {
		if !exp.After(now) {
			delete(d.revoked, id)
		}
	}
	return nil
}

func (d *TokenDenylist) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	until, ok := d.revoked[tokenID]
	return ok && until.After(d.now()), nil
}
