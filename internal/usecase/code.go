package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/ratings-auth/internal/core/domain"
	"github.com/arklim/ratings-auth/internal/core/port"
	"github.com/arklim/ratings-auth/internal/infra/logger"
	"github.com/arklim/ratings-auth/internal/infra/security"
	"github.com/arklim/ratings-auth/internal/infra/telemetry"
	"github.com/arklim/ratings-auth/internal/repository"
)

const (
	codeVerifyScope    = "code_verify"
	defaultCodeTTL     = 10 * time.Minute
	defaultMaxAttempts = 5
)

// CodeServiceConfig tunes the one-time code lifecycle.
type CodeServiceConfig struct {
	Length      int
	TTL         time.Duration
	MaxAttempts int
}

// CodeService issues and consumes single-use email verification codes.
type CodeService struct {
	codes    port.VerificationCodeRepository
	attempts port.RateLimitStore
	cfg      CodeServiceConfig
	metrics  *telemetry.AuthMetrics
	logger   *zap.Logger
	now      func() time.Time
	generate func(length int) (string, error)
}

// NewCodeService constructs a CodeService. A nil attempts store disables the failed-attempt throttle.
func NewCodeService(codes port.VerificationCodeRepository, attempts port.RateLimitStore, cfg CodeServiceConfig, metrics *telemetry.AuthMetrics, log *zap.Logger) *CodeService {
	if cfg.Length <= 0 {
		cfg.Length = security.DefaultCodeLength
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultCodeTTL
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &CodeService{
		codes:    codes,
		attempts: attempts,
		cfg:      cfg,
		metrics:  metrics,
		logger:   log,
		now:      time.Now,
		generate: security.GenerateNumericCode,
	}
}

// WithClock overrides the time source; used by tests.
func (s *CodeService) WithClock(now func() time.Time) *CodeService {
	if now != nil {
		s.now = now
	}
	return s
}

// TTL reports how long an issued code stays redeemable.
func (s *CodeService) TTL() time.Duration {
	return s.cfg.TTL
}

// Issue stores a fresh code for email and purpose. Earlier codes stay valid until they expire.
func (s *CodeService) Issue(ctx context.Context, email string, purpose domain.CodePurpose) (*domain.VerificationCode, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return nil, domain.ErrIncompleteParameters
	}
	if purpose == "" {
		purpose = domain.CodePurposeLogin
	}

	value, err := s.generate(s.cfg.Length)
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}

	now := s.now().UTC()
	code := domain.VerificationCode{
		ID:        uuid.NewString(),
		Email:     email,
		Code:      value,
		Purpose:   purpose,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.TTL),
	}

	if err := s.codes.Create(ctx, code); err != nil {
		return nil, domain.NewStoreError("create verification code", err)
	}

	s.metrics.ObserveCodeIssued(string(purpose))
	return &code, nil
}

// Consume redeems a code exactly once. Wrong, expired and already used codes are
// indistinguishable to the caller. Every evaluation reserves a slot in the
// attempts window before the code table is touched; a success clears the window.
func (s *CodeService) Consume(ctx context.Context, email string, purpose domain.CodePurpose, code string) (*domain.VerificationCode, error) {
	email = domain.NormalizeEmail(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return nil, domain.ErrIncompleteParameters
	}
	if purpose == "" {
		purpose = domain.CodePurposeLogin
	}

	now := s.now().UTC()
	throttleKey := fmt.Sprintf("%s:%s:%s", codeVerifyScope, purpose, email)

	if err := s.reserveAttempt(ctx, throttleKey, now); err != nil {
		s.metrics.ObserveCodeConsume(string(purpose), telemetry.OutcomeThrottled)
		return nil, err
	}

	consumed, err := s.codes.Consume(ctx, email, purpose, code, now)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.metrics.ObserveCodeConsume(string(purpose), telemetry.OutcomeInvalidCode)
			return nil, domain.ErrInvalidOrExpiredCode
		}
		s.metrics.ObserveCodeConsume(string(purpose), telemetry.OutcomeStoreError)
		return nil, domain.NewStoreError("consume verification code", err)
	}

	if s.attempts != nil {
		if err := s.attempts.Reset(ctx, throttleKey); err != nil {
			s.logger.Warn("code throttle reset failed", zap.String("email", logger.MaskEmail(email)), zap.Error(err))
		}
	}

	s.metrics.ObserveCodeConsume(string(purpose), telemetry.OutcomeSuccess)
	return consumed, nil
}

// reserveAttempt fails open when the attempts store is unavailable.
func (s *CodeService) reserveAttempt(ctx context.Context, key string, now time.Time) error {
	if s.attempts == nil || s.cfg.MaxAttempts <= 0 {
		return nil
	}

	window := s.cfg.TTL

	_, reserved, err := s.attempts.ReserveAttempt(ctx, key, s.cfg.MaxAttempts, window, now)
	if err != nil {
		s.logger.Warn("code throttle reserve failed", zap.String("scope", codeVerifyScope), zap.Error(err))
		return nil
	}
	if reserved {
		return nil
	}

	retryAfter := time.Duration(0)
	if oldest, ok, err := s.attempts.OldestAttempt(ctx, key, window, now); err == nil && ok {
		if reset := oldest.Add(window); reset.After(now) {
			retryAfter = reset.Sub(now)
		}
	} else if err != nil {
		s.logger.Warn("code throttle oldest lookup failed", zap.Error(err))
	}

	return &RateLimitExceededError{Scope: codeVerifyScope, RetryAfter: retryAfter}
}
