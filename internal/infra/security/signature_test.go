package security

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func TestCanonicalStringDropsEmptyValuesAndSignKeys(t *testing.T) {
	params := map[string]string{
		"timestamp": "1700000000",
		"email":     "a@b.com",
		"orderNo":   "",
		"sign":      "ignored",
		"Sign":      "ignored",
	}

	require.Equal(t, "email=a@b.com&timestamp=1700000000&key=test-secret", CanonicalString(params, testSecret))
}

func TestCanonicalStringTrimsValuesAndSortsByteWise(t *testing.T) {
	params := map[string]string{
		"b":  " two ",
		"B":  "upper",
		"a":  "one",
		"ws": "   ",
	}

	require.Equal(t, "B=upper&a=one&b=two&ws=&key=s", CanonicalString(params, "s"))
}

func TestSignMatchesPartnerVectors(t *testing.T) {
	require.Equal(t, "6e335da61d9f184a144f4d8261bc9e78", Sign(map[string]string{
		"email":     "a@b.com",
		"orderNo":   "",
		"timestamp": "1700000000",
	}, testSecret))

	require.Equal(t, "f1b0a58a7883135481098d78314bc572", Sign(map[string]string{
		"email":     "a@b.com",
		"orderNo":   "ORD-1",
		"timestamp": "1700000000",
	}, testSecret))

	require.Equal(t, "cca9422c7604e20e2c61b96bc483e238", Sign(nil, testSecret))
}

func TestSignEmptyOrderNoIsIgnored(t *testing.T) {
	withEmpty := map[string]string{"email": "a@b.com", "orderNo": "", "timestamp": "1700000000"}
	without := map[string]string{"email": "a@b.com", "timestamp": "1700000000"}

	require.Equal(t, Sign(without, testSecret), Sign(withEmpty, testSecret))
}

func TestVerifyRoundTrip(t *testing.T) {
	cases := []map[string]string{
		{},
		{"email": "user@example.com"},
		{"email": "user@example.com", "orderNo": "A-1", "timestamp": "1700000000"},
		{"z": "last", "a": "first", "m": " padded "},
	}

	for _, params := range cases {
		signed := make(map[string]string, len(params)+1)
		for k, v := range params {
			signed[k] = v
		}
		signed[SignatureParam] = Sign(params, testSecret)

		require.True(t, Verify(signed, testSecret), "params %v", params)
	}
}

func TestVerifyRejectsSingleCharacterMutation(t *testing.T) {
	params := map[string]string{"email": "a@b.com", "timestamp": "1700000000"}
	sig := Sign(params, testSecret)

	for i := range sig {
		mutated := []byte(sig)
		if mutated[i] == '0' {
			mutated[i] = '1'
		} else {
			mutated[i] = '0'
		}
		params[SignatureParam] = string(mutated)
		require.False(t, Verify(params, testSecret), "mutation at %d verified", i)
	}
}

func TestVerifyFailsClosed(t *testing.T) {
	params := map[string]string{"email": "a@b.com", "timestamp": "1700000000"}
	require.False(t, Verify(params, testSecret), "missing sign must fail")

	params[SignatureParam] = ""
	require.False(t, Verify(params, testSecret), "empty sign must fail")

	params[SignatureParam] = Sign(params, testSecret)
	require.False(t, Verify(params, "other-secret"), "wrong secret must fail")

	params["email"] = "b@b.com"
	require.False(t, Verify(params, testSecret), "tampered value must fail")
}

func TestVerifyIsCaseSensitiveOnDigest(t *testing.T) {
	params := map[string]string{"email": "a@b.com"}
	params[SignatureParam] = "6E335DA61D9F184A144F4D8261BC9E78"
	require.False(t, Verify(params, testSecret))
}

func TestVerifyFreshness(t *testing.T) {
	now := time.Unix(1700000000, 0)
	ts := func(offset int64) string { return strconv.FormatInt(now.Unix()+offset, 10) }

	require.True(t, VerifyFreshness(ts(0), 300*time.Second, now))
	require.True(t, VerifyFreshness(ts(-300), 300*time.Second, now))
	require.True(t, VerifyFreshness(ts(300), 300*time.Second, now))
	require.False(t, VerifyFreshness(ts(-400), 300*time.Second, now))
	require.False(t, VerifyFreshness(ts(400), 300*time.Second, now))
	require.False(t, VerifyFreshness("", 300*time.Second, now))
	require.False(t, VerifyFreshness("1700000000abc", 300*time.Second, now))
	require.False(t, VerifyFreshness("17e8", 300*time.Second, now))
}

func TestSignatureVerifierUsesBoundSecretAndClock(t *testing.T) {
	now := time.Unix(1700000000, 0)
	verifier := NewSignatureVerifier(testSecret, 0).WithClock(func() time.Time { return now })

	require.Equal(t, DefaultSignatureMaxAge, verifier.MaxAge())

	params := map[string]string{"email": "a@b.com", "timestamp": "1700000000"}
	params[SignatureParam] = verifier.Sign(params)

	require.True(t, verifier.Verify(params))
	require.True(t, verifier.VerifyFreshness("1700000000"))
	require.False(t, verifier.VerifyFreshness("1699999599"))
}

func TestSignatureVerifierWithoutSecretRejects(t *testing.T) {
	verifier := NewSignatureVerifier("", time.Minute)
	params := map[string]string{"email": "a@b.com"}
	params[SignatureParam] = Sign(params, "")

	require.False(t, verifier.Verify(params))
}
