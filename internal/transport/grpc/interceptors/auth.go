package interceptors

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/arklim/ratings-auth/internal/core/domain"
	"github.com/arklim/ratings-auth/internal/core/port"
	"github.com/arklim/ratings-auth/internal/infra/security"
	"github.com/arklim/ratings-auth/internal/infra/telemetry"
)

const authorizationKey = "authorization"

// AuthOptions fine-tunes interceptor behaviour.
type AuthOptions struct {
	AllowMethods []string
	Logger       *zap.Logger
	Metrics      *telemetry.AuthMetrics
}

// AuthInterceptor authenticates calls with the session token carried in the
// authorization metadata.
type AuthInterceptor struct {
	tokens  port.TokenVerifier
	logger  *zap.Logger
	metrics *telemetry.AuthMetrics
	allow   map[string]struct{}
}

// NewAuthInterceptor constructs a new AuthInterceptor instance.
func NewAuthInterceptor(tokens port.TokenVerifier, opts AuthOptions) *AuthInterceptor {
	allow := make(map[string]struct{}, len(opts.AllowMethods))
	for _, method := range opts.AllowMethods {
		if method = strings.TrimSpace(method); method != "" {
			allow[method] = struct{}{}
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AuthInterceptor{tokens: tokens, logger: logger, metrics: opts.Metrics, allow: allow}
}

// UnaryServerInterceptor rejects calls to non-public methods that lack a valid session token.
func (ai *AuthInterceptor) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if ai == nil || ai.tokens == nil {
			return handler(ctx, req)
		}

		if _, ok := ai.allow[info.FullMethod]; ok {
			return handler(ctx, req)
		}

		token, err := security.ParseBearer(authorizationFromMetadata(ctx))
		if err != nil {
			ai.metrics.ObserveTokenVerification(telemetry.OutcomeIncomplete)
			ai.logger.Warn("gRPC authentication failed", zap.String("method", info.FullMethod), zap.Error(err))
			return nil, status.Error(codes.Unauthenticated, domain.ErrUnauthorized.Error())
		}

		identity, err := ai.tokens.Verify(token)
		if err != nil {
			ai.logger.Warn("gRPC token validation failed", zap.String("method", info.FullMethod), zap.Error(err))
			if errors.Is(err, domain.ErrTokenExpired) {
				ai.metrics.ObserveTokenVerification(telemetry.OutcomeExpired)
				return nil, status.Error(codes.Unauthenticated, "session token expired")
			}
			ai.metrics.ObserveTokenVerification(telemetry.OutcomeMalformed)
			return nil, status.Error(codes.Unauthenticated, "invalid session token")
		}

		ai.metrics.ObserveTokenVerification(telemetry.OutcomeSuccess)
		return handler(WithIdentity(ctx, identity), req)
	}
}

type identityContextKey struct{}

// WithIdentity returns a derived context carrying the caller's identity.
func WithIdentity(ctx context.Context, identity domain.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext extracts the caller's identity when the call was authenticated.
func IdentityFromContext(ctx context.Context) (domain.Identity, bool) {
	if ctx == nil {
		return domain.Identity{}, false
	}
	identity, ok := ctx.Value(identityContextKey{}).(domain.Identity)
	return identity, ok && identity.ID != ""
}

func authorizationFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	// metadata keys are lower-cased on the wire
	for _, value := range md.Get(authorizationKey) {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
