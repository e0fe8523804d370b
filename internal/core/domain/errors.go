package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrAccountExists      = errors.New("email already registered")
	ErrAccountNotFound    = errors.New("account not found")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnauthenticated    = errors.New("authentication required")
	ErrMissingToken       = errors.New("missing session token")
	ErrInvalidToken       = errors.New("invalid or expired session token")
	ErrForbidden          = errors.New("access forbidden")
	ErrAccountLocked      = errors.New("account temporarily locked")
	ErrResetTokenInvalid  = errors.New("password reset token is invalid or has expired")
	ErrDeliveryFailed     = errors.New("email could not be sent")
)

// ValidationError carries field-level messages. It matches ErrValidation
// under errors.Is.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, e.Fields[k])
	}
	return strings.Join(msgs, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// LockedError is returned when authentication is attempted on a locked
// account. It matches ErrAccountLocked under errors.Is.
type LockedError struct {
	RemainingMinutes int
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked, try again in %d minute(s)", e.RemainingMinutes)
}

func (e *LockedError) Is(target error) bool {
	return target == ErrAccountLocked
}
