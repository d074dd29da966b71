package security

import (
	"fmt"

	zxcvbn "github.com/nbutton23/zxcvbn-go"

	"github.com/arklim/ratings-auth/internal/core/port"
)

// DefaultMinPasswordLength matches the registration rule of the legacy accounts.
const DefaultMinPasswordLength = 6

// PasswordValidationError represents a single password policy violation.
type PasswordValidationError struct {
	Code    string
	Message string
}

func (e *PasswordValidationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// PasswordPolicy enforces a minimum length and, optionally, a zxcvbn strength floor.
type PasswordPolicy struct {
	minLength int
	minScore  int
}

// NewPasswordPolicy builds a policy. A minScore of zero disables the strength check.
func NewPasswordPolicy(minLength, minScore int) *PasswordPolicy {
	if minLength <= 0 {
		minLength = DefaultMinPasswordLength
	}
	if minScore > 4 {
		minScore = 4
	}
	return &PasswordPolicy{minLength: minLength, minScore: minScore}
}

// Validate returns a *PasswordValidationError describing the first violated rule.
func (p *PasswordPolicy) Validate(password string, userInputs ...string) error {
	if len([]rune(password)) < p.minLength {
		return &PasswordValidationError{
			Code:    "min_length",
			Message: fmt.Sprintf("password must be at least %d characters long", p.minLength),
		}
	}

	if p.minScore <= 0 {
		return nil
	}

	result := zxcvbn.PasswordStrength(password, userInputs)
	if result.Score < p.minScore {
		return &PasswordValidationError{
			Code:    "weak_password",
			Message: "password is too easy to guess",
		}
	}

	return nil
}

var _ port.PasswordPolicyValidator = (*PasswordPolicy)(nil)
