package domain

import (
	"math"
	"time"
)

const (
	DefaultLockoutThreshold = 5
	DefaultLockoutDuration  = 30 * time.Minute
)

// LockoutPolicy is the brute-force lockout state machine. An account is
// LOCKED while LockoutUntil is set and in the future; an elapsed lockout is
// treated as absent and only cleared by the next transition.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// NewLockoutPolicy fills zero values with the defaults.
func NewLockoutPolicy(threshold int, duration time.Duration) LockoutPolicy {
	if threshold <= 0 {
		threshold = DefaultLockoutThreshold
	}
	if duration <= 0 {
		duration = DefaultLockoutDuration
	}
	return LockoutPolicy{Threshold: threshold, Duration: duration}
}

// IsLocked reports whether a is locked at now.
func (p LockoutPolicy) IsLocked(a *Account, now time.Time) bool {
	return a.LockoutUntil != nil && now.Before(*a.LockoutUntil)
}

// RemainingMinutes is the lockout time left at now, rounded up.
func (p LockoutPolicy) RemainingMinutes(a *Account, now time.Time) int {
	if !p.IsLocked(a, now) {
		return 0
	}
	return int(math.Ceil(a.LockoutUntil.Sub(now).Minutes()))
}

// Check returns a *LockedError when a is locked at now.
func (p LockoutPolicy) Check(a *Account, now time.Time) error {
	if p.IsLocked(a, now) {
		return &LockedError{RemainingMinutes: p.RemainingMinutes(a, now)}
	}
	return nil
}

// ApplyFailure mutates a for one failed authentication at now and reports
// whether this failure started a new lockout. An elapsed lockout does not
// carry its attempt count over.
//
// Stores must apply this as a single atomic update against the account.
func (p LockoutPolicy) ApplyFailure(a *Account, now time.Time) bool {
	if a.LockoutUntil != nil && !now.Before(*a.LockoutUntil) {
		a.FailedAttempts = 1
		a.LockoutUntil = nil
	} else {
		a.FailedAttempts++
	}

	if a.FailedAttempts >= p.Threshold && !p.IsLocked(a, now) {
		until := now.Add(p.Duration)
		a.LockoutUntil = &until
		return true
	}
	return false
}

// ApplySuccess mutates a for a successful authentication at now.
func (p LockoutPolicy) ApplySuccess(a *Account, now time.Time) {
	a.FailedAttempts = 0
	a.LockoutUntil = nil
	ts := now
	a.LastLoginAt = &ts
}
