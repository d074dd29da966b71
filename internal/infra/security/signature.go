package security

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// SignatureParam is the query parameter carrying the request digest.
	SignatureParam = "sign"
	// DefaultSignatureMaxAge is the freshness window applied to signed requests.
	DefaultSignatureMaxAge = 300 * time.Second

	signatureParamAlias = "Sign"
	secretParam         = "key"
)

// CanonicalString renders params in the partner-compatible form
// "k1=v1&k2=v2&...&key=<secret>". The sign key and empty values are dropped,
// remaining values are trimmed and keys are sorted by byte order.
func CanonicalString(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if k == SignatureParam || k == signatureParamAlias || v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strings.TrimSpace(params[k]))
		b.WriteByte('&')
	}
	b.WriteString(secretParam)
	b.WriteByte('=')
	b.WriteString(secret)

	return b.String()
}

// Sign returns the lowercase hex MD5 digest of the canonical string.
func Sign(params map[string]string, secret string) string {
	sum := md5.Sum([]byte(CanonicalString(params, secret)))
	return hex.EncodeToString(sum[:])
}

// Verify recomputes the digest over params and compares it with params["sign"].
// A missing or empty signature never verifies.
func Verify(params map[string]string, secret string) bool {
	provided := params[SignatureParam]
	if provided == "" {
		return false
	}

	expected := Sign(params, secret)
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}

// VerifyFreshness reports whether timestamp (decimal epoch seconds) lies within
// maxAge of now in either direction.
func VerifyFreshness(timestamp string, maxAge time.Duration, now time.Time) bool {
	timestamp = strings.TrimSpace(timestamp)
	if timestamp == "" {
		return false
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}

	delta := now.Unix() - ts
	if delta < 0 {
		delta = -delta
	}

	return delta <= int64(maxAge/time.Second)
}

// SignatureVerifier binds the shared partner secret and freshness window.
type SignatureVerifier struct {
	secret string
	maxAge time.Duration
	now    func() time.Time
}

// NewSignatureVerifier constructs a verifier. A non-positive maxAge falls back to DefaultSignatureMaxAge.
func NewSignatureVerifier(secret string, maxAge time.Duration) *SignatureVerifier {
	if maxAge <= 0 {
		maxAge = DefaultSignatureMaxAge
	}
	return &SignatureVerifier{
		secret: secret,
		maxAge: maxAge,
		now:    time.Now,
	}
}

// WithClock overrides the time source.
func (v *SignatureVerifier) WithClock(now func() time.Time) *SignatureVerifier {
	if now != nil {
		v.now = now
	}
	return v
}

// MaxAge returns the configured freshness window.
func (v *SignatureVerifier) MaxAge() time.Duration {
	return v.maxAge
}

// Sign computes the digest for params with the bound secret.
func (v *SignatureVerifier) Sign(params map[string]string) string {
	return Sign(params, v.secret)
}

// Verify checks params["sign"] against the bound secret.
func (v *SignatureVerifier) Verify(params map[string]string) bool {
	if v.secret == "" {
		return false
	}
	return Verify(params, v.secret)
}

// VerifyFreshness checks timestamp against the bound window and clock.
func (v *SignatureVerifier) VerifyFreshness(timestamp string) bool {
	return VerifyFreshness(timestamp, v.maxAge, v.now())
}
