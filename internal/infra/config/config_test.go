package config

import (
	"strings"
	"testing"
	"time"
)

func setRequiredSecrets(t *testing.T) {
	t.Helper()
	t.Setenv("IAM_JWT_SECRET", "jwt-secret")
	t.Setenv("IAM_SSO_SECRET", "sso-secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredSecrets(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.SSO.MaxAge != 300*time.Second {
		t.Fatalf("expected default sso max age 300s, got %s", cfg.SSO.MaxAge)
	}
	if cfg.JWT.TTL != 7*24*time.Hour {
		t.Fatalf("expected default jwt ttl 168h, got %s", cfg.JWT.TTL)
	}
	if cfg.EmailCode.Length != 6 || cfg.EmailCode.TTL != 10*time.Minute || cfg.EmailCode.MaxAttempts != 5 {
		t.Fatalf("unexpected email code defaults: %+v", cfg.EmailCode)
	}
	if cfg.RateLimit.GlobalRequests != 100 || cfg.RateLimit.GlobalWindow != 15*time.Minute {
		t.Fatalf("unexpected global limiter defaults: %+v", cfg.RateLimit)
	}
	if cfg.Password.MinLength != 6 {
		t.Fatalf("expected min password length 6, got %d", cfg.Password.MinLength)
	}
	if len(cfg.App.TrustedProxies) != 0 {
		t.Fatalf("expected no trusted proxies by default, got %v", cfg.App.TrustedProxies)
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	setRequiredSecrets(t)
	t.Setenv("IAM_SSO_MAX_AGE", "120s")
	t.Setenv("IAM_EMAIL_CODE_MAX_ATTEMPTS", "3")
	t.Setenv("IAM_KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("IAM_APP_ENV", "production")
	t.Setenv("IAM_APP_TRUSTED_PROXIES", "10.0.0.0/8,192.168.1.10")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.SSO.Secret != "sso-secret" || cfg.JWT.Secret != "jwt-secret" {
		t.Fatalf("secrets not loaded from env")
	}
	if cfg.SSO.MaxAge != 120*time.Second {
		t.Fatalf("expected 120s, got %s", cfg.SSO.MaxAge)
	}
	if cfg.EmailCode.MaxAttempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", cfg.EmailCode.MaxAttempts)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers: %v", cfg.Kafka.Brokers)
	}
	if cfg.App.IsDevelopment() {
		t.Fatalf("expected production env")
	}
	if len(cfg.App.TrustedProxies) != 2 || cfg.App.TrustedProxies[0] != "10.0.0.0/8" {
		t.Fatalf("unexpected trusted proxies: %v", cfg.App.TrustedProxies)
	}
}

func TestLoadRequiresSecrets(t *testing.T) {
	t.Setenv("IAM_JWT_SECRET", "")
	t.Setenv("IAM_SSO_SECRET", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected missing secrets to fail validation")
	}
	if !strings.Contains(err.Error(), "jwt.secret") || !strings.Contains(err.Error(), "sso.secret") {
		t.Fatalf("expected both secrets reported, got %v", err)
	}
}

func TestPostgresURL(t *testing.T) {
	s := PostgresSettings{User: "u", Password: "p", Host: "db", Port: 5432, Database: "ratings", SSLMode: "disable"}
	if got := s.URL(); got != "postgres://u:p@db:5432/ratings?sslmode=disable" {
		t.Fatalf("unexpected url %q", got)
	}
}
