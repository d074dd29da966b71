package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/arklim/ratings-auth/internal/core/domain"
)

// DefaultSessionTTL is the lifetime of an issued session token.
const DefaultSessionTTL = 7 * 24 * time.Hour

var errEmptySecret = errors.New("session token: secret must not be empty")

// SessionClaims is the JWT payload carried by a session token.
type SessionClaims struct {
	PrincipalID string      `json:"id"`
	Email       string      `json:"email"`
	Role        domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// SessionTokenService issues and verifies HS256 session tokens.
type SessionTokenService struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewSessionTokenService constructs the token service around an immutable shared secret.
func NewSessionTokenService(secret string, ttl time.Duration, issuer string) (*SessionTokenService, error) {
	if secret == "" {
		return nil, errEmptySecret
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionTokenService{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: strings.TrimSpace(issuer),
		now:    time.Now,
	}, nil
}

// WithClock overrides the time source used for issuance and validation.
func (s *SessionTokenService) WithClock(now func() time.Time) *SessionTokenService {
	if now != nil {
		s.now = now
	}
	return s
}

// TTL returns the configured token lifetime.
func (s *SessionTokenService) TTL() time.Duration {
	return s.ttl
}

// Issue signs a token for the identity and returns it with its expiry.
func (s *SessionTokenService) Issue(identity domain.Identity) (string, time.Time, error) {
	if identity.ID == "" {
		return "", time.Time{}, fmt.Errorf("session token: principal id is required")
	}
	if !identity.Role.Valid() {
		return "", time.Time{}, fmt.Errorf("session token: unsupported role %q", identity.Role)
	}

	issuedAt := s.now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(s.ttl)

	claims := SessionClaims{
		PrincipalID: identity.ID,
		Email:       identity.Email,
		Role:        identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   identity.ID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}

	return signed, expiresAt, nil
}

// Verify validates the token and returns the identity it carries.
// Expired tokens yield domain.ErrTokenExpired; every other failure yields domain.ErrTokenMalformed.
func (s *SessionTokenService) Verify(token string) (domain.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Identity{}, domain.ErrTokenMalformed
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return domain.Identity{}, fmt.Errorf("%w: signature mismatch", domain.ErrTokenMalformed)
		case errors.Is(err, jwt.ErrTokenExpired):
			return domain.Identity{}, domain.ErrTokenExpired
		default:
			return domain.Identity{}, fmt.Errorf("%w: %v", domain.ErrTokenMalformed, err)
		}
	}

	if !parsed.Valid || claims.PrincipalID == "" || !claims.Role.Valid() {
		return domain.Identity{}, domain.ErrTokenMalformed
	}

	return domain.Identity{
		ID:    claims.PrincipalID,
		Email: claims.Email,
		Role:  claims.Role,
	}, nil
}
