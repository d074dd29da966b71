package port

import (
	"time"

	"github.com/arklim/ratings-auth/internal/core/domain"
)

// PasswordPolicyValidator enforces password strength requirements.
// userInputs lets the strength estimator penalize passwords derived from the account's own data.
type PasswordPolicyValidator interface {
	Validate(password string, userInputs ...string) error
}

// PasswordHasher hashes new passwords and verifies stored ones.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password string, encoded string) (bool, error)
}

// TokenIssuer mints session tokens for an identity.
type TokenIssuer interface {
	Issue(identity domain.Identity) (token string, expiresAt time.Time, err error)
}

// TokenVerifier checks a session token and returns the identity it carries.
type TokenVerifier interface {
	Verify(token string) (domain.Identity, error)
}
