package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	red "github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*red.Client, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := red.NewClient(&red.Options{Addr: server.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})

	return client, server
}

func TestRateLimitRepository_CountsWithinWindow(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{KeyPrefix: "rl", TTL: 15 * time.Minute})

	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	window := 10 * time.Minute

	for _, at := range []time.Time{now.Add(-11 * time.Minute), now.Add(-5 * time.Minute), now.Add(-time.Minute), now} {
		if err := repo.RecordAttempt(ctx, "code_verify:login:a@b.com", at); err != nil {
			t.Fatalf("RecordAttempt returned error: %v", err)
		}
	}

	count, err := repo.CountAttempts(ctx, "code_verify:login:a@b.com", window, now)
	if err != nil {
		t.Fatalf("CountAttempts returned error: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 attempts inside window, got %d", count)
	}

	if ttl := server.TTL("rl:code_verify:login:a@b.com"); ttl <= 0 || ttl > 15*time.Minute {
		t.Fatalf("expected ttl within (0, 15m], got %v", ttl)
	}
}

func TestRateLimitRepository_SameInstantCountsTwice(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{})

	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	for i := 0; i < 2; i++ {
		if err := repo.RecordAttempt(ctx, "ip:1.2.3.4", now); err != nil {
			t.Fatalf("RecordAttempt returned error: %v", err)
		}
	}

	count, err := repo.CountAttempts(ctx, "ip:1.2.3.4", time.Minute, now)
	if err != nil {
		t.Fatalf("CountAttempts returned error: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 attempts, got %d", count)
	}
}

func TestRateLimitRepository_TrimAndOldest(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{KeyPrefix: "rl"})

	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	window := 10 * time.Minute
	stale := now.Add(-20 * time.Minute)
	oldestInside := now.Add(-9 * time.Minute)

	for _, at := range []time.Time{stale, oldestInside, now.Add(-time.Minute)} {
		if err := repo.RecordAttempt(ctx, "login:a@b.com", at); err != nil {
			t.Fatalf("RecordAttempt returned error: %v", err)
		}
	}

	if err := repo.TrimWindow(ctx, "login:a@b.com", window, now); err != nil {
		t.Fatalf("TrimWindow returned error: %v", err)
	}

	total, err := client.ZCard(ctx, "rl:login:a@b.com").Result()
	if err != nil {
		t.Fatalf("ZCard returned error: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected stale attempt to be trimmed, %d members left", total)
	}

	oldest, ok, err := repo.OldestAttempt(ctx, "login:a@b.com", window, now)
	if err != nil {
		t.Fatalf("OldestAttempt returned error: %v", err)
	}
	if !ok {
		t.Fatalf("expected an attempt inside the window")
	}
	if !oldest.Equal(oldestInside) {
		t.Fatalf("expected oldest %v, got %v", oldestInside, oldest)
	}
}

func TestRateLimitRepository_OldestEmpty(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{})

	_, ok, err := repo.OldestAttempt(context.Background(), "nobody", time.Minute, time.Now())
	if err != nil {
		t.Fatalf("OldestAttempt returned error: %v", err)
	}
	if ok {
		t.Fatalf("expected no attempts")
	}
}

func TestRateLimitRepository_Reset(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{KeyPrefix: "rl"})

	ctx := context.Background()
	now := time.Now()
	if err := repo.RecordAttempt(ctx, "code_verify:login:a@b.com", now); err != nil {
		t.Fatalf("RecordAttempt returned error: %v", err)
	}

	if err := repo.Reset(ctx, "code_verify:login:a@b.com"); err != nil {
		t.Fatalf("Reset returned error: %v", err)
	}

	if server.Exists("rl:code_verify:login:a@b.com") {
		t.Fatalf("expected key to be removed")
	}
}

func TestRateLimitRepository_ReserveStopsAtLimit(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{KeyPrefix: "rl", TTL: 20 * time.Minute})

	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	window := 10 * time.Minute

	if err := repo.RecordAttempt(ctx, "code_verify:login:a@b.com", now.Add(-11*time.Minute)); err != nil {
		t.Fatalf("RecordAttempt returned error: %v", err)
	}

	for i := 1; i <= 3; i++ {
		count, ok, err := repo.ReserveAttempt(ctx, "code_verify:login:a@b.com", 3, window, now)
		if err != nil {
			t.Fatalf("ReserveAttempt returned error: %v", err)
		}
		if !ok || count != i {
			t.Fatalf("reservation %d: expected ok with count %d, got ok=%v count=%d", i, i, ok, count)
		}
	}

	count, ok, err := repo.ReserveAttempt(ctx, "code_verify:login:a@b.com", 3, window, now)
	if err != nil {
		t.Fatalf("ReserveAttempt returned error: %v", err)
	}
	if ok || count != 3 {
		t.Fatalf("expected rejection at the limit, got ok=%v count=%d", ok, count)
	}

	total, err := client.ZCard(ctx, "rl:code_verify:login:a@b.com").Result()
	if err != nil {
		t.Fatalf("ZCard returned error: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected stale member trimmed and rejected attempt not stored, got %d members", total)
	}
	if ttl := server.TTL("rl:code_verify:login:a@b.com"); ttl <= 0 || ttl > 20*time.Minute {
		t.Fatalf("expected ttl within (0, 20m], got %v", ttl)
	}
}

func TestRateLimitRepository_ConcurrentReservationsNeverExceedLimit(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{KeyPrefix: "rl"})

	const (
		callers = 100
		limit   = 5
	)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		reserved int
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, ok, err := repo.ReserveAttempt(ctx, "code_verify:login:a@b.com", limit, time.Minute, now)
			if err != nil {
				t.Errorf("ReserveAttempt returned error: %v", err)
				return
			}
			if ok {
				mu.Lock()
				reserved++
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	if reserved != limit {
		t.Fatalf("expected exactly %d reservations, got %d", limit, reserved)
	}
}

func TestRateLimitRepository_RejectsNonPositiveWindow(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewRateLimitRepository(client, SlidingWindowConfig{})

	ctx := context.Background()
	if _, err := repo.CountAttempts(ctx, "x", 0, time.Now()); err == nil {
		t.Fatalf("expected CountAttempts to reject zero window")
	}
	if err := repo.TrimWindow(ctx, "x", -time.Second, time.Now()); err == nil {
		t.Fatalf("expected TrimWindow to reject negative window")
	}
	if _, _, err := repo.OldestAttempt(ctx, "x", 0, time.Now()); err == nil {
		t.Fatalf("expected OldestAttempt to reject zero window")
	}
	if _, _, err := repo.ReserveAttempt(ctx, "x", 1, 0, time.Now()); err == nil {
		t.Fatalf("expected ReserveAttempt to reject zero window")
	}
}
