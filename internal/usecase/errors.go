package usecase

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials indicates the email or password did not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidEmail indicates the address failed format validation.
	ErrInvalidEmail = errors.New("invalid email")
	// ErrEmailTaken indicates a registration collided with an existing principal.
	ErrEmailTaken = errors.New("email already registered")
	// ErrPasswordPolicyViolation indicates the password does not satisfy the configured policy.
	ErrPasswordPolicyViolation = errors.New("password does not meet requirements")
	// ErrPrincipalNotFound indicates a verified token referenced a principal that no longer exists.
	ErrPrincipalNotFound = errors.New("principal not found")
)

// RateLimitExceededError is returned when a sliding-window limit rejects an operation.
type RateLimitExceededError struct {
	Scope      string
	RetryAfter time.Duration
}

func (e *RateLimitExceededError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limit exceeded for %s, retry after %s", e.Scope, e.RetryAfter.Round(time.Second))
	}
	return fmt.Sprintf("rate limit exceeded for %s", e.Scope)
}
