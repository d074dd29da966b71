package transportgrpc

import (
	"fmt"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/arklim/ratings-auth/internal/core/port"
	"github.com/arklim/ratings-auth/internal/infra/telemetry"
	grpcinterceptors "github.com/arklim/ratings-auth/internal/transport/grpc/interceptors"
)

// ServerDependencies encapsulates services required by the gRPC server layer.
type ServerDependencies struct {
	Tokens         port.TokenVerifier
	Logger         *zap.Logger
	Metrics        *grpcinterceptors.GRPCMetrics
	AuthMetrics    *telemetry.AuthMetrics
	TracerProvider trace.TracerProvider
	PublicMethods  []string // methods that don't require authentication
}

// DefaultPublicMethods are reachable without a session token.
var DefaultPublicMethods = []string{VerifyMethod, HealthMethod}

// NewServer wires gRPC services with authentication enforced through interceptors.
func NewServer(deps ServerDependencies) (*grpc.Server, error) {
	if deps.Tokens == nil {
		return nil, fmt.Errorf("token verifier is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	public := deps.PublicMethods
	if public == nil {
		public = DefaultPublicMethods
	}

	authInterceptor := grpcinterceptors.NewAuthInterceptor(deps.Tokens, grpcinterceptors.AuthOptions{
		Logger:       logger,
		Metrics:      deps.AuthMetrics,
		AllowMethods: public,
	})

	server := grpc.NewServer(
		grpcinterceptors.TracingServerOption(grpcinterceptors.TracingOptions{TracerProvider: deps.TracerProvider}),
		grpc.ChainUnaryInterceptor(
			deps.Metrics.UnaryServerInterceptor(),
			authInterceptor.UnaryServerInterceptor(),
		),
	)

	server.RegisterService(&TokenServiceDesc, NewTokenServer(deps.Tokens, logger))

	return server, nil
}
