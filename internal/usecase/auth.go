package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/ratings-auth/internal/core/domain"
	"github.com/arklim/ratings-auth/internal/core/port"
	"github.com/arklim/ratings-auth/internal/infra/logger"
	"github.com/arklim/ratings-auth/internal/infra/telemetry"
	"github.com/arklim/ratings-auth/internal/repository"
)

const defaultRecentLogins = 50

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidEmail applies the address format accepted by the login forms.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(strings.TrimSpace(email))
}

// AuthDeps groups the collaborators of AuthService.
type AuthDeps struct {
	Codes      *CodeService
	Sender     port.CodeSender
	Principals port.PrincipalRepository
	Audit      port.LoginAuditRepository
	Events     port.EventPublisher
	Tokens     port.TokenIssuer
	Hasher     port.PasswordHasher
	Policy     port.PasswordPolicyValidator
	Metrics    *telemetry.AuthMetrics
	Logger     *zap.Logger
}

// AuthService implements the local login flows: email code, legacy password and registration.
type AuthService struct {
	codes      *CodeService
	sender     port.CodeSender
	principals port.PrincipalRepository
	audit      port.LoginAuditRepository
	tokens     port.TokenIssuer
	hasher     port.PasswordHasher
	policy     port.PasswordPolicyValidator
	resolver   *principalResolver
	recorder   *loginRecorder
	logger     *zap.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

func NewAuthService(deps AuthDeps) *AuthService {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &AuthService{
		codes:      deps.Codes,
		sender:     deps.Sender,
		principals: deps.Principals,
		audit:      deps.Audit,
		tokens:     deps.Tokens,
		hasher:     deps.Hasher,
		policy:     deps.Policy,
		resolver:   &principalResolver{principals: deps.Principals, events: deps.Events, logger: log, now: time.Now},
		recorder:   &loginRecorder{audit: deps.Audit, events: deps.Events, metrics: deps.Metrics, logger: log, now: time.Now},
		logger:     log,
		tracer:     otel.Tracer(tracerName),
		now:        time.Now,
	}
}

// WithClock overrides the time source; used by tests.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	if now != nil {
		s.now = now
		s.resolver.now = now
		s.recorder.now = now
	}
	return s
}

// SendLoginCode issues a login code and hands it to the configured sender.
func (s *AuthService) SendLoginCode(ctx context.Context, email string) (*domain.VerificationCode, error) {
	ctx, span := s.tracer.Start(ctx, "auth.send_login_code")
	defer span.End()

	if strings.TrimSpace(email) == "" {
		return nil, domain.ErrIncompleteParameters
	}
	if !ValidEmail(email) {
		return nil, ErrInvalidEmail
	}

	code, err := s.codes.Issue(ctx, email, domain.CodePurposeLogin)
	if err != nil {
		span.SetStatus(codes.Error, "issue code")
		return nil, err
	}

	msg := port.EmailCodeMessage{
		Email:     code.Email,
		Code:      code.Code,
		Purpose:   string(code.Purpose),
		ExpiresAt: code.ExpiresAt,
	}
	if err := s.sender.SendEmailCode(ctx, msg); err != nil {
		span.SetStatus(codes.Error, "send code")
		return nil, domain.NewStoreError("send email code", err)
	}

	return code, nil
}

// LoginWithCode redeems an email code and logs the owner in, creating the principal on first use.
func (s *AuthService) LoginWithCode(ctx context.Context, email, code string, meta RequestMeta) (*LoginResult, error) {
	ctx, span := s.tracer.Start(ctx, "auth.login_with_code")
	defer span.End()

	normalized := domain.NormalizeEmail(email)
	if normalized == "" || strings.TrimSpace(code) == "" {
		return nil, domain.ErrIncompleteParameters
	}

	if _, err := s.codes.Consume(ctx, normalized, domain.CodePurposeLogin, code); err != nil {
		var rateErr *RateLimitExceededError
		switch {
		case errors.Is(err, domain.ErrInvalidOrExpiredCode):
			s.recorder.failure(ctx, s.knownPrincipalID(ctx, normalized), normalized, domain.LoginMethodEmailCode, "invalid_code", meta)
		case errors.As(err, &rateErr):
			s.recorder.failure(ctx, s.knownPrincipalID(ctx, normalized), normalized, domain.LoginMethodEmailCode, "throttled", meta)
		}
		span.SetStatus(codes.Error, "consume code")
		return nil, err
	}

	principal, created, err := s.resolver.resolve(ctx, normalized, domain.LoginMethodEmailCode)
	if err != nil {
		return nil, err
	}

	return s.complete(ctx, *principal, created, domain.LoginMethodEmailCode, meta)
}

// LoginWithPassword checks a stored bcrypt or argon2id hash.
// Unknown emails are rejected without an audit row since no principal exists.
func (s *AuthService) LoginWithPassword(ctx context.Context, email, password string, meta RequestMeta) (*LoginResult, error) {
	ctx, span := s.tracer.Start(ctx, "auth.login_with_password")
	defer span.End()

	normalized := domain.NormalizeEmail(email)
	if normalized == "" || password == "" {
		return nil, domain.ErrIncompleteParameters
	}

	principal, err := s.principals.GetByEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, domain.NewStoreError("lookup principal", err)
	}

	principalID := principal.ID
	if !principal.HasPassword() {
		s.recorder.failure(ctx, &principalID, normalized, domain.LoginMethodPassword, "password_not_set", meta)
		return nil, ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(password, principal.PasswordHash)
	if err != nil {
		s.logger.Error("stored password hash unreadable", zap.String("principal_id", principal.ID), zap.Error(err))
		s.recorder.failure(ctx, &principalID, normalized, domain.LoginMethodPassword, "hash_unreadable", meta)
		return nil, ErrInvalidCredentials
	}
	if !ok {
		s.recorder.failure(ctx, &principalID, normalized, domain.LoginMethodPassword, "invalid_password", meta)
		span.SetStatus(codes.Error, "invalid password")
		return nil, ErrInvalidCredentials
	}

	return s.complete(ctx, *principal, false, domain.LoginMethodPassword, meta)
}

// RegisterInput carries the legacy registration form.
type RegisterInput struct {
	Email    string
	Password string
	Username string
}

// Register creates a password principal and logs it in.
func (s *AuthService) Register(ctx context.Context, input RegisterInput, meta RequestMeta) (*LoginResult, error) {
	ctx, span := s.tracer.Start(ctx, "auth.register")
	defer span.End()

	normalized := domain.NormalizeEmail(input.Email)
	if normalized == "" || input.Password == "" {
		return nil, domain.ErrIncompleteParameters
	}
	if !ValidEmail(normalized) {
		return nil, ErrInvalidEmail
	}

	username := strings.TrimSpace(input.Username)
	if username == "" {
		username = domain.DefaultUsername(normalized)
	}

	if s.policy != nil {
		if err := s.policy.Validate(input.Password, normalized, username); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPasswordPolicyViolation, err)
		}
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	principal := domain.Principal{
		ID:           uuid.NewString(),
		Email:        normalized,
		Username:     username,
		Role:         domain.RoleUser,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}

	if err := s.principals.Create(ctx, principal); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrEmailTaken
		}
		return nil, domain.NewStoreError("create principal", err)
	}

	s.resolver.publishCreated(ctx, principal, domain.LoginMethodPassword)

	return s.complete(ctx, principal, true, domain.LoginMethodPassword, meta)
}

// Me loads the stored principal behind a verified token.
func (s *AuthService) Me(ctx context.Context, principalID string) (*domain.Principal, error) {
	principal, err := s.principals.GetByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPrincipalNotFound
		}
		return nil, domain.NewStoreError("lookup principal", err)
	}
	return principal, nil
}

// RecentLogins returns the newest audit entries for the admin view.
func (s *AuthService) RecentLogins(ctx context.Context, limit int) ([]domain.LoginAuditEntry, error) {
	if limit <= 0 {
		limit = defaultRecentLogins
	}
	entries, err := s.audit.ListRecent(ctx, limit)
	if err != nil {
		return nil, domain.NewStoreError("list login audit", err)
	}
	return entries, nil
}

func (s *AuthService) complete(ctx context.Context, principal domain.Principal, created bool, method domain.LoginMethod, meta RequestMeta) (*LoginResult, error) {
	token, expiresAt, err := s.tokens.Issue(principal.Identity())
	if err != nil {
		return nil, fmt.Errorf("issue session token: %w", err)
	}

	if err := s.recorder.success(ctx, principal, method, meta, ""); err != nil {
		return nil, err
	}

	return &LoginResult{
		Token:     token,
		ExpiresAt: expiresAt,
		Principal: principal,
		Created:   created,
	}, nil
}

// knownPrincipalID attaches the principal to a failed audit row when one exists.
func (s *AuthService) knownPrincipalID(ctx context.Context, email string) *string {
	principal, err := s.principals.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("principal lookup for audit failed", zap.String("email", logger.MaskEmail(email)), zap.Error(err))
		}
		return nil
	}
	id := principal.ID
	return &id
}
