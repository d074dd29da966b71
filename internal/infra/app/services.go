package app

import (
	"go.uber.org/zap"

	"github.com/arklim/ratings-auth/internal/core/port"
	"github.com/arklim/ratings-auth/internal/infra/config"
	"github.com/arklim/ratings-auth/internal/infra/security"
	"github.com/arklim/ratings-auth/internal/infra/telemetry"
	"github.com/arklim/ratings-auth/internal/transport/http/routes"
	"github.com/arklim/ratings-auth/internal/usecase"
)

// storage is the persistence surface the services need.
type storage struct {
	principals port.PrincipalRepository
	codes      port.VerificationCodeRepository
	audit      port.LoginAuditRepository
}

type serviceDeps struct {
	cfg      *config.AppConfig
	store    storage
	attempts port.RateLimitStore
	events   port.EventPublisher
	sender   port.CodeSender
	tokens   *security.SessionTokenService
	hasher   port.PasswordHasher
	metrics  *telemetry.AuthMetrics
	logger   *zap.Logger
}

func buildServices(deps serviceDeps) routes.ServiceSet {
	cfg := deps.cfg

	codes := usecase.NewCodeService(deps.store.codes, deps.attempts, usecase.CodeServiceConfig{
		Length:      cfg.EmailCode.Length,
		TTL:         cfg.EmailCode.TTL,
		MaxAttempts: cfg.EmailCode.MaxAttempts,
	}, deps.metrics, deps.logger)

	auth := usecase.NewAuthService(usecase.AuthDeps{
		Codes:      codes,
		Sender:     deps.sender,
		Principals: deps.store.principals,
		Audit:      deps.store.audit,
		Events:     deps.events,
		Tokens:     deps.tokens,
		Hasher:     deps.hasher,
		Policy:     security.NewPasswordPolicy(cfg.Password.MinLength, cfg.Password.MinStrengthScore),
		Metrics:    deps.metrics,
		Logger:     deps.logger,
	})

	handoff := usecase.NewHandoffService(usecase.HandoffDeps{
		Verifier:   security.NewSignatureVerifier(cfg.SSO.Secret, cfg.SSO.MaxAge),
		Tokens:     deps.tokens,
		Principals: deps.store.principals,
		Audit:      deps.store.audit,
		Events:     deps.events,
		Metrics:    deps.metrics,
		Logger:     deps.logger,
	})

	return routes.ServiceSet{Auth: auth, Handoff: handoff}
}
