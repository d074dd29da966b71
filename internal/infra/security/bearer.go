package security

import (
	"errors"
	"strings"
)

var (
	errMissingAuthorization = errors.New("missing authorization header")
	errInvalidAuthorization = errors.New("invalid authorization format: expected 'Bearer <token>'")
	errMissingBearerToken   = errors.New("missing bearer token")
)

// ParseBearer extracts the credential from an Authorization header value.
// The scheme is matched case-insensitively.
func ParseBearer(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errMissingAuthorization
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errInvalidAuthorization
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", errMissingBearerToken
	}

	return token, nil
}
