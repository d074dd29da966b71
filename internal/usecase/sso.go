package usecase

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/ratings-auth/internal/core/domain"
	"github.com/arklim/ratings-auth/internal/core/port"
	"github.com/arklim/ratings-auth/internal/infra/logger"
	"github.com/arklim/ratings-auth/internal/infra/security"
	"github.com/arklim/ratings-auth/internal/infra/telemetry"
)

const tracerName = "github.com/arklim/ratings-auth/internal/usecase"

// HandoffRequest carries the query parameters of a signed partner redirect.
type HandoffRequest struct {
	Email     string
	OrderNo   string
	Timestamp string
	Sign      string
	Meta      RequestMeta
}

// HandoffResult is a successful login plus the untouched order number.
type HandoffResult struct {
	LoginResult
	OrderNo string
}

// HandoffDeps groups the collaborators of HandoffService.
type HandoffDeps struct {
	Verifier   *security.SignatureVerifier
	Tokens     port.TokenIssuer
	Principals port.PrincipalRepository
	Audit      port.LoginAuditRepository
	Events     port.EventPublisher
	Metrics    *telemetry.AuthMetrics
	Logger     *zap.Logger
}

// HandoffService turns a signed redirect from the partner site into a session.
type HandoffService struct {
	verifier *security.SignatureVerifier
	tokens   port.TokenIssuer
	resolver *principalResolver
	recorder *loginRecorder
	metrics  *telemetry.AuthMetrics
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewHandoffService wires the handoff flow. A nil logger falls back to a no-op.
func NewHandoffService(deps HandoffDeps) *HandoffService {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &HandoffService{
		verifier: deps.Verifier,
		tokens:   deps.Tokens,
		resolver: &principalResolver{principals: deps.Principals, events: deps.Events, logger: log, now: time.Now},
		recorder: &loginRecorder{audit: deps.Audit, events: deps.Events, metrics: deps.Metrics, logger: log, now: time.Now},
		metrics:  deps.Metrics,
		logger:   log,
		tracer:   otel.Tracer(tracerName),
	}
}

// WithClock overrides the time source for audit rows and created principals.
func (s *HandoffService) WithClock(now func() time.Time) *HandoffService {
	if now != nil {
		s.resolver.now = now
		s.recorder.now = now
	}
	return s
}

// Handoff validates the request in order (presence, freshness, signature) before
// touching any store, then resolves the principal and issues a session token.
func (s *HandoffService) Handoff(ctx context.Context, req HandoffRequest) (*HandoffResult, error) {
	ctx, span := s.tracer.Start(ctx, "sso.handoff")
	defer span.End()

	email := strings.TrimSpace(req.Email)
	timestamp := strings.TrimSpace(req.Timestamp)
	sign := strings.TrimSpace(req.Sign)

	if email == "" || timestamp == "" || sign == "" {
		return nil, s.reject(span, telemetry.OutcomeIncomplete, domain.ErrIncompleteParameters)
	}

	if !s.verifier.VerifyFreshness(timestamp) {
		return nil, s.reject(span, telemetry.OutcomeExpired, domain.ErrRequestExpired)
	}

	params := map[string]string{
		"email":                 req.Email,
		"orderNo":               req.OrderNo,
		"timestamp":             req.Timestamp,
		security.SignatureParam: sign,
	}
	if !s.verifier.Verify(params) {
		s.logger.Warn("sso signature mismatch",
			zap.String("email", logger.MaskEmail(email)),
			zap.String("ip", logger.MaskIP(req.Meta.IP)),
		)
		return nil, s.reject(span, telemetry.OutcomeBadSig, domain.ErrInvalidSignature)
	}

	normalized := domain.NormalizeEmail(email)
	principal, created, err := s.resolver.resolve(ctx, normalized, domain.LoginMethodSSO)
	if err != nil {
		return nil, s.reject(span, telemetry.OutcomeStoreError, err)
	}

	token, expiresAt, err := s.tokens.Issue(principal.Identity())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "issue token")
		return nil, err
	}

	if err := s.recorder.success(ctx, *principal, domain.LoginMethodSSO, req.Meta, req.OrderNo); err != nil {
		return nil, s.reject(span, telemetry.OutcomeStoreError, err)
	}

	span.SetAttributes(
		attribute.String("principal.id", principal.ID),
		attribute.Bool("principal.created", created),
	)
	s.metrics.ObserveHandoff(telemetry.OutcomeSuccess)

	return &HandoffResult{
		LoginResult: LoginResult{
			Token:     token,
			ExpiresAt: expiresAt,
			Principal: *principal,
			Created:   created,
		},
		OrderNo: req.OrderNo,
	}, nil
}

func (s *HandoffService) reject(span trace.Span, outcome string, err error) error {
	span.SetAttributes(attribute.String("sso.outcome", outcome))
	span.SetStatus(codes.Error, outcome)
	s.metrics.ObserveHandoff(outcome)
	return err
}
