package domain

import "time"

// CodePurpose scopes a verification code to the flow that issued it.
type CodePurpose string

const (
	CodePurposeLogin CodePurpose = "login"
)

// VerificationCode is a single-use numeric credential bound to an email and purpose.
type VerificationCode struct {
	ID        string
	Email     string
	Code      string
	Purpose   CodePurpose
	CreatedAt time.Time
	ExpiresAt time.Time
	Used      bool
	UsedAt    *time.Time
}

// Expired reports whether the code can no longer be consumed at the given instant.
func (c VerificationCode) Expired(at time.Time) bool {
	return !at.Before(c.ExpiresAt)
}
