package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	red "github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"

	redisrepo "github.com/arklim/ratings-auth/internal/repository/redis"
)

type failingRateLimitStore struct {
	err         error
	recordCalls int
}

func (f *failingRateLimitStore) TrimWindow(context.Context, string, time.Duration, time.Time) error {
	return f.err
}

func (f *failingRateLimitStore) CountAttempts(context.Context, string, time.Duration, time.Time) (int, error) {
	return 0, f.err
}

func (f *failingRateLimitStore) RecordAttempt(context.Context, string, time.Time) error {
	f.recordCalls++
	return f.err
}

func (f *failingRateLimitStore) ReserveAttempt(context.Context, string, int, time.Duration, time.Time) (int, bool, error) {
	return 0, false, f.err
}

func (f *failingRateLimitStore) OldestAttempt(context.Context, string, time.Duration, time.Time) (time.Time, bool, error) {
	return time.Time{}, false, f.err
}

func (f *failingRateLimitStore) Reset(context.Context, string) error {
	return f.err
}

func newRedisLimiter(t *testing.T, now *time.Time) *RateLimiter {
	t.Helper()

	server := miniredis.RunT(t)
	client := red.NewClient(&red.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := redisrepo.NewRateLimitRepository(client, redisrepo.SlidingWindowConfig{KeyPrefix: "rl", TTL: time.Hour})
	return NewRateLimiter(store, zaptest.NewLogger(t)).WithClock(func() time.Time { return *now })
}

func loginRule(limit int) RateLimitRule {
	return RateLimitRule{
		Name:       "login",
		Limit:      limit,
		Window:     time.Minute,
		Identifier: ClientIPIdentifier(),
	}
}

func serveLimited(router *gin.Engine, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = ip + ":40000"
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestRateLimiterCountsDownThenBlocks(t *testing.T) {
	gin.SetMode(gin.TestMode)

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	start := now
	limiter := newRedisLimiter(t, &now)

	router := gin.New()
	router.Use(EnrichContext(), limiter.Limit(loginRule(3)))
	router.POST("/login", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i, want := range []string{"2", "1", "0"} {
		rr := serveLimited(router, "192.0.2.1")
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rr.Code)
		}
		if got := rr.Header().Get("X-RateLimit-Remaining"); got != want {
			t.Fatalf("request %d: expected remaining %s, got %q", i, want, got)
		}
		if got := rr.Header().Get("X-RateLimit-Reset"); got != strconv.FormatInt(start.Add(time.Minute).Unix(), 10) {
			t.Fatalf("request %d: unexpected reset %q", i, got)
		}
		now = now.Add(10 * time.Second)
	}

	rr := serveLimited(router, "192.0.2.1")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if got := rr.Header().Get("Retry-After"); got != "30" {
		t.Fatalf("expected Retry-After 30, got %q", got)
	}

	var body RateLimitResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.RetryAfter != 30 || body.TraceID == "" {
		t.Fatalf("unexpected body %+v", body)
	}

	if rr := serveLimited(router, "192.0.2.2"); rr.Code != http.StatusOK {
		t.Fatalf("other client must not share the window, got %d", rr.Code)
	}

	now = start.Add(61 * time.Second)
	if rr := serveLimited(router, "192.0.2.1"); rr.Code != http.StatusOK {
		t.Fatalf("expected window to slide open, got %d", rr.Code)
	}
}

func TestRateLimiterRulesAreIndependent(t *testing.T) {
	gin.SetMode(gin.TestMode)

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	limiter := newRedisLimiter(t, &now)

	router := gin.New()
	router.POST("/login", limiter.Limit(loginRule(1)), func(c *gin.Context) { c.Status(http.StatusOK) })
	router.POST("/send-code", limiter.Limit(RateLimitRule{
		Name:       "send_code",
		Limit:      1,
		Window:     time.Minute,
		Identifier: ClientIPIdentifier(),
	}), func(c *gin.Context) { c.Status(http.StatusOK) })

	if rr := serveLimited(router, "192.0.2.1"); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/send-code", nil)
	req.RemoteAddr = "192.0.2.1:40000"
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("send-code must have its own budget, got %d", rr.Code)
	}
}

func TestRateLimiterFailsOpenOnStoreError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	store := &failingRateLimitStore{err: errors.New("redis down")}
	limiter := NewRateLimiter(store, zaptest.NewLogger(t))

	router := gin.New()
	router.Use(limiter.Limit(loginRule(1)))
	router.POST("/login", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		if rr := serveLimited(router, "192.0.2.1"); rr.Code != http.StatusOK {
			t.Fatalf("expected 200 when failing open, got %d", rr.Code)
		}
	}
	if store.recordCalls != 0 {
		t.Fatalf("expected no record attempt on failure, got %d", store.recordCalls)
	}
}

func TestRateLimiterIgnoresInvalidRules(t *testing.T) {
	gin.SetMode(gin.TestMode)

	store := &failingRateLimitStore{err: errors.New("must not be called")}
	limiter := NewRateLimiter(store, zaptest.NewLogger(t))

	router := gin.New()
	router.Use(limiter.Limit(
		RateLimitRule{Name: "zero", Limit: 0, Window: time.Minute, Identifier: ClientIPIdentifier()},
		RateLimitRule{Name: "no_identifier", Limit: 1, Window: time.Minute},
	))
	router.POST("/login", func(c *gin.Context) { c.Status(http.StatusOK) })

	rr := serveLimited(router, "192.0.2.1")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr.Header().Get("X-RateLimit-Limit") != "" {
		t.Fatal("expected no rate limit headers")
	}
}

func TestRetryAfterSecondsRoundsUp(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want int
	}{
		{-time.Second, 0},
		{0, 0},
		{time.Millisecond, 1},
		{9 * time.Second, 9},
		{9*time.Second + 1, 10},
		{9*time.Minute + 30*time.Second, 570},
	}
	for _, tc := range cases {
		if got := RetryAfterSeconds(tc.in); got != tc.want {
			t.Fatalf("RetryAfterSeconds(%v) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
