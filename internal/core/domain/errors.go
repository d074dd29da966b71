package domain

import (
	"errors"
	"fmt"
)

// Validation-class failures. None of them are retried and none mutate state.
var (
	// ErrIncompleteParameters indicates a required request field was missing.
	ErrIncompleteParameters = errors.New("incomplete parameters")
	// ErrRequestExpired indicates a signed request fell outside the freshness window.
	ErrRequestExpired = errors.New("request expired")
	// ErrInvalidSignature indicates the request digest did not match.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrInvalidOrExpiredCode indicates no unused, unexpired code matched.
	ErrInvalidOrExpiredCode = errors.New("invalid or expired code")
	// ErrTokenMalformed indicates the session token failed to parse or verify.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrTokenExpired indicates the session token is past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrUnauthorized indicates no valid credential accompanied the request.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates the principal lacks the required role.
	ErrForbidden = errors.New("forbidden")
)

// ErrStoreUnavailable marks collaborator failures that callers may retry.
var ErrStoreUnavailable = errors.New("store unavailable")

// StoreError wraps a collaborator failure with the operation that triggered it.
type StoreError struct {
	Op  string
	Err error
}

// NewStoreError wraps err as a retryable store failure. A nil err yields nil.
func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStoreUnavailable, e.Op, e.Err)
}

// Unwrap exposes both the store class and the underlying cause to errors.Is.
func (e *StoreError) Unwrap() []error {
	return []error{ErrStoreUnavailable, e.Err}
}

// IsRetryable reports whether err belongs to the only class eligible for retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
