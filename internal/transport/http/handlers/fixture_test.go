package handlers

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	red "github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"

	"github.com/arklim/ratings-auth/internal/core/domain"
	"github.com/arklim/ratings-auth/internal/core/port"
	"github.com/arklim/ratings-auth/internal/infra/kafka"
	"github.com/arklim/ratings-auth/internal/infra/security"
	"github.com/arklim/ratings-auth/internal/repository/memory"
	redisrepo "github.com/arklim/ratings-auth/internal/repository/redis"
	"github.com/arklim/ratings-auth/internal/transport/http/middleware"
	"github.com/arklim/ratings-auth/internal/usecase"
)

const (
	testPartnerSecret = "partner-shared-secret"
	testJWTSecret     = "handler-jwt-secret"
	testMaxAttempts   = 3
)

type httpFixture struct {
	router     *gin.Engine
	tokens     *security.SessionTokenService
	principals port.PrincipalRepository
	memPrinc   *memory.PrincipalRepository
	audit      *memory.LoginAuditRepository
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	principals port.PrincipalRepository
	seed       []domain.Principal
}

func withPrincipalRepo(repo port.PrincipalRepository) fixtureOption {
	return func(c *fixtureConfig) { c.principals = repo }
}

func withSeed(principals ...domain.Principal) fixtureOption {
	return func(c *fixtureConfig) { c.seed = append(c.seed, principals...) }
}

func newHTTPFixture(t *testing.T, opts ...fixtureOption) *httpFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var cfg fixtureConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	log := zaptest.NewLogger(t)

	server := miniredis.RunT(t)
	client := red.NewClient(&red.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	attempts := redisrepo.NewRateLimitRepository(client, redisrepo.SlidingWindowConfig{KeyPrefix: "test", TTL: time.Hour})

	tokens, err := security.NewSessionTokenService(testJWTSecret, security.DefaultSessionTTL, "ratings-auth")
	if err != nil {
		t.Fatalf("NewSessionTokenService returned error: %v", err)
	}

	hasherCfg := security.DefaultArgon2Config()
	hasherCfg.Iterations = 1
	hasherCfg.Memory = 8 * 1024
	hasher, err := security.NewPasswordHasher(hasherCfg)
	if err != nil {
		t.Fatalf("NewPasswordHasher returned error: %v", err)
	}

	f := &httpFixture{
		tokens:   tokens,
		memPrinc: memory.NewPrincipalRepository(cfg.seed...),
		audit:    memory.NewLoginAuditRepository(),
	}
	f.principals = f.memPrinc
	if cfg.principals != nil {
		f.principals = cfg.principals
	}

	events := kafka.NewStubPublisher(log)
	codes := usecase.NewCodeService(memory.NewVerificationCodeRepository(), attempts, usecase.CodeServiceConfig{
		MaxAttempts: testMaxAttempts,
	}, nil, log)

	auth := usecase.NewAuthService(usecase.AuthDeps{
		Codes:      codes,
		Sender:     NewLoggingNotificationDispatcher(log, true),
		Principals: f.principals,
		Audit:      f.audit,
		Events:     events,
		Tokens:     tokens,
		Hasher:     hasher,
		Policy:     security.NewPasswordPolicy(security.DefaultMinPasswordLength, 0),
		Logger:     log,
	})

	handoff := usecase.NewHandoffService(usecase.HandoffDeps{
		Verifier:   security.NewSignatureVerifier(testPartnerSecret, security.DefaultSignatureMaxAge),
		Tokens:     tokens,
		Principals: f.principals,
		Audit:      f.audit,
		Events:     events,
		Logger:     log,
	})

	gate := middleware.NewGate(tokens, nil)

	f.router = gin.New()
	f.router.Use(middleware.EnrichContext(), middleware.RequestID())
	api := f.router.Group("/api")
	NewSSOHandler(handoff).RegisterRoutes(api)
	NewAuthHandler(auth, gate, WithDevMode(true)).RegisterRoutes(api.Group("/auth"), AuthRouteGuards{})
	NewAdminHandler(auth, gate).RegisterRoutes(api.Group("/admin"))

	return f
}

func (f *httpFixture) do(t *testing.T, method, target string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	req.RemoteAddr = "203.0.113.10:51000"
	req.Header.Set("User-Agent", "handler-test")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func (f *httpFixture) tokenFor(t *testing.T, p domain.Principal) string {
	t.Helper()
	token, _, err := f.tokens.Issue(p.Identity())
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	return token
}

// signedHandoffURL builds the partner redirect for email and orderNo at ts.
func signedHandoffURL(email, orderNo string, ts time.Time) url.Values {
	params := map[string]string{
		"email":     email,
		"orderNo":   orderNo,
		"timestamp": strconv.FormatInt(ts.Unix(), 10),
	}
	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	q.Set("sign", security.Sign(params, testPartnerSecret))
	return q
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return out
}
