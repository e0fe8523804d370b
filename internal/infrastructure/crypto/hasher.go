package crypto

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"

	"github.com/audiophile/account-core/internal/core/domain"
	"github.com/audiophile/account-core/internal/pkg/metrics"
)

const DefaultBcryptCost = 10

// BcryptHasher hashes and verifies credentials with bcrypt. Concurrent work
// is bounded by a weighted semaphore so a burst of logins cannot occupy
// every CPU.
type BcryptHasher struct {
	cost int
	sem  *semaphore.Weighted
}

// NewBcryptHasher returns a hasher with the given cost. A cost outside
// bcrypt's range falls back to DefaultBcryptCost; concurrency <= 0 means
// twice GOMAXPROCS.
func NewBcryptHasher(cost, concurrency int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	if concurrency <= 0 {
		concurrency = 2 * runtime.GOMAXPROCS(0)
	}
	return &BcryptHasher{cost: cost, sem: semaphore.NewWeighted(int64(concurrency))}
}

// Hash returns a salted bcrypt verifier; two calls with the same plaintext
// yield different verifiers.
func (h *BcryptHasher) Hash(ctx context.Context, plaintext string) (string, error) {
	start := time.Now()
	defer func() { metrics.HashDuration.WithLabelValues("hash").Observe(time.Since(start).Seconds()) }()

	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("hash credential: %w", err)
	}
	defer h.sem.Release(1)

	out, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", domain.NewValidationError("password",
			fmt.Sprintf("password cannot exceed %d bytes", domain.MaxPasswordBytes))
	}
	if err != nil {
		return "", fmt.Errorf("hash credential: %w", err)
	}
	return string(out), nil
}

// Verify compares plaintext against verifier in constant time. Malformed
// verifiers report false.
func (h *BcryptHasher) Verify(ctx context.Context, plaintext, verifier string) (bool, error) {
	start := time.Now()
	defer func() { metrics.HashDuration.WithLabelValues("verify").Observe(time.Since(start).Seconds()) }()

	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false, fmt.Errorf("verify credential: %w", err)
	}
	defer h.sem.Release(1)

	return bcrypt.CompareHashAndPassword([]byte(verifier), []byte(plaintext)) == nil, nil
}
