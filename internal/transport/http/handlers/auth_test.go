package handlers

import (
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/arklim/ratings-auth/internal/core/domain"
	"github.com/arklim/ratings-auth/internal/transport/http/middleware"
)

func wrongCode(code string) string {
	first := (int(code[0]-'0') + 1) % 10
	return strconv.Itoa(first) + code[1:]
}

func TestSendCodeThenLoginByCode(t *testing.T) {
	f := newHTTPFixture(t)

	rr := f.do(t, http.MethodPost, "/api/auth/send-code", SendCodeRequest{Email: "coder@example.com"}, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	sent := decode[SendCodeResponse](t, rr)
	if len(sent.DevCode) != 6 {
		t.Fatalf("expected 6 digit dev code, got %q", sent.DevCode)
	}
	if until := time.Until(sent.ExpiresAt); until < 9*time.Minute || until > 10*time.Minute {
		t.Fatalf("unexpected expiry %v", sent.ExpiresAt)
	}

	rr = f.do(t, http.MethodPost, "/api/auth/login-by-code", CodeLoginRequest{Email: "coder@example.com", Code: sent.DevCode}, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	login := decode[AuthTokenResponse](t, rr)
	if !login.Created || login.User.Email != "coder@example.com" || login.Token == "" {
		t.Fatalf("unexpected login response %+v", login)
	}

	rr = f.do(t, http.MethodPost, "/api/auth/login-by-code", CodeLoginRequest{Email: "coder@example.com", Code: sent.DevCode}, "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected replayed code to fail with 400, got %d", rr.Code)
	}
	if body := decode[ErrorResponse](t, rr); body.Error != "invalid or expired code" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestSendCodeValidation(t *testing.T) {
	f := newHTTPFixture(t)

	rr := f.do(t, http.MethodPost, "/api/auth/send-code", SendCodeRequest{Email: "not-an-email"}, "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if body := decode[ErrorResponse](t, rr); body.Error != "invalid email" {
		t.Fatalf("unexpected body %+v", body)
	}

	rr = f.do(t, http.MethodPost, "/api/auth/send-code", map[string]string{}, "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing email, got %d", rr.Code)
	}
	if body := decode[ErrorResponse](t, rr); body.Error != "incomplete parameters" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestLoginByCodeThrottlesRepeatedFailures(t *testing.T) {
	f := newHTTPFixture(t)

	sent := decode[SendCodeResponse](t, f.do(t, http.MethodPost, "/api/auth/send-code", SendCodeRequest{Email: "guess@example.com"}, ""))
	bad := CodeLoginRequest{Email: "guess@example.com", Code: wrongCode(sent.DevCode)}

	for i := 0; i < testMaxAttempts; i++ {
		if rr := f.do(t, http.MethodPost, "/api/auth/login-by-code", bad, ""); rr.Code != http.StatusBadRequest {
			t.Fatalf("attempt %d: expected 400, got %d", i, rr.Code)
		}
	}

	rr := f.do(t, http.MethodPost, "/api/auth/login-by-code", CodeLoginRequest{Email: "guess@example.com", Code: sent.DevCode}, "")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 once throttled, got %d", rr.Code)
	}
	retry, err := strconv.Atoi(rr.Header().Get("Retry-After"))
	if err != nil || retry <= 0 || retry > 600 {
		t.Fatalf("unexpected Retry-After %q", rr.Header().Get("Retry-After"))
	}
	if body := decode[middleware.RateLimitResponse](t, rr); body.RetryAfter != retry {
		t.Fatalf("body retry_after %d does not match header %d", body.RetryAfter, retry)
	}

	failures := 0
	for _, e := range f.audit.Entries() {
		if e.Method == domain.LoginMethodEmailCode && e.Status == domain.LoginStatusFailed {
			failures++
		}
	}
	if failures != testMaxAttempts {
		t.Fatalf("expected %d failed audit rows, got %d", testMaxAttempts, failures)
	}
}

func TestRegisterAndPasswordLogin(t *testing.T) {
	f := newHTTPFixture(t)

	register := RegisterRequest{Email: "writer@example.com", Password: "long-enough-pass", Username: "writer"}
	rr := f.do(t, http.MethodPost, "/api/auth/register", register, "")
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	created := decode[AuthTokenResponse](t, rr)
	if created.User.Username != "writer" || created.User.Role != domain.RoleUser {
		t.Fatalf("unexpected user %+v", created.User)
	}

	if rr := f.do(t, http.MethodPost, "/api/auth/register", register, ""); rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate email, got %d", rr.Code)
	}

	short := RegisterRequest{Email: "short@example.com", Password: "abc"}
	if rr := f.do(t, http.MethodPost, "/api/auth/register", short, ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for short password, got %d", rr.Code)
	}

	rr = f.do(t, http.MethodPost, "/api/auth/login", PasswordLoginRequest{Email: "Writer@Example.com", Password: "long-enough-pass"}, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if login := decode[AuthTokenResponse](t, rr); login.User.ID != created.User.ID || login.Created {
		t.Fatalf("unexpected login %+v", login)
	}

	for _, creds := range []PasswordLoginRequest{
		{Email: "writer@example.com", Password: "wrong-password"},
		{Email: "nobody@example.com", Password: "long-enough-pass"},
	} {
		rr := f.do(t, http.MethodPost, "/api/auth/login", creds, "")
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", creds.Email, rr.Code)
		}
		if body := decode[ErrorResponse](t, rr); body.Error != "invalid email or password" {
			t.Fatalf("unexpected body %+v", body)
		}
	}
}

func TestMeAndSession(t *testing.T) {
	reader := domain.Principal{
		ID:        "4f8a2c1e-0000-4000-8000-000000000001",
		Email:     "reader@example.com",
		Username:  "reader",
		Role:      domain.RoleUser,
		CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	f := newHTTPFixture(t, withSeed(reader))
	token := f.tokenFor(t, reader)

	rr := f.do(t, http.MethodGet, "/api/auth/me", nil, token)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if me := decode[UserSummary](t, rr); me != newUserSummary(reader) {
		t.Fatalf("unexpected me %+v", me)
	}

	if rr := f.do(t, http.MethodGet, "/api/auth/me", nil, ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}

	ghost := domain.Principal{ID: "ghost", Email: "ghost@example.com", Role: domain.RoleUser}
	if rr := f.do(t, http.MethodGet, "/api/auth/me", nil, f.tokenFor(t, ghost)); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for deleted principal, got %d", rr.Code)
	}

	session := decode[SessionResponse](t, f.do(t, http.MethodGet, "/api/auth/session", nil, token))
	if !session.Authenticated || session.User == nil || session.User.ID != reader.ID {
		t.Fatalf("unexpected session %+v", session)
	}

	anonymous := decode[SessionResponse](t, f.do(t, http.MethodGet, "/api/auth/session", nil, "garbage"))
	if anonymous.Authenticated || anonymous.User != nil {
		t.Fatalf("expected anonymous session, got %+v", anonymous)
	}
}
