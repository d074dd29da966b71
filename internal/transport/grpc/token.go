package transportgrpc

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/arklim/ratings-auth/internal/core/domain"
	"github.com/arklim/ratings-auth/internal/core/port"
	"github.com/arklim/ratings-auth/internal/transport/grpc/interceptors"
)

// Fully-qualified method names of ratings.auth.v1.TokenService.
const (
	TokenServiceName   = "ratings.auth.v1.TokenService"
	VerifyMethod       = "/" + TokenServiceName + "/Verify"
	WhoAmIMethod       = "/" + TokenServiceName + "/WhoAmI"
	HealthMethod       = "/" + TokenServiceName + "/Health"
	tokenServiceSchema = "ratings/auth/v1/token.proto"
)

// TokenServiceServer is the server contract of ratings.auth.v1.TokenService.
// Messages are google.protobuf.Struct values.
type TokenServiceServer interface {
	Verify(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	WhoAmI(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Health(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// TokenServiceDesc describes ratings.auth.v1.TokenService for grpc.Server.RegisterService.
var TokenServiceDesc = grpc.ServiceDesc{
	ServiceName: TokenServiceName,
	HandlerType: (*TokenServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Verify", Handler: unaryHandler(VerifyMethod, TokenServiceServer.Verify)},
		{MethodName: "WhoAmI", Handler: unaryHandler(WhoAmIMethod, TokenServiceServer.WhoAmI)},
		{MethodName: "Health", Handler: unaryHandler(HealthMethod, TokenServiceServer.Health)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: tokenServiceSchema,
}

type unaryCall func(TokenServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(TokenServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(TokenServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// TokenServer lets internal services validate session tokens without sharing the signing secret.
type TokenServer struct {
	tokens port.TokenVerifier
	logger *zap.Logger
}

// NewTokenServer constructs a TokenServer.
func NewTokenServer(tokens port.TokenVerifier, logger *zap.Logger) *TokenServer {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &TokenServer{tokens: tokens, logger: logger}
}

// Verify checks the token field of the request. Invalid tokens are reported in
// the response body rather than as call errors.
func (s *TokenServer) Verify(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	token := strings.TrimSpace(req.GetFields()["token"].GetStringValue())
	if token == "" {
		return invalidResponse("token is required")
	}

	identity, err := s.tokens.Verify(token)
	if err != nil {
		s.logger.Debug("token rejected", zap.Error(err))
		if errors.Is(err, domain.ErrTokenExpired) {
			return invalidResponse("session token expired")
		}
		return invalidResponse("invalid session token")
	}

	return identityResponse(identity, map[string]any{"valid": true})
}

// WhoAmI returns the identity of the authenticated caller.
func (s *TokenServer) WhoAmI(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	identity, ok := interceptors.IdentityFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, domain.ErrUnauthorized.Error())
	}
	return identityResponse(identity, nil)
}

func (s *TokenServer) Health(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"status": "ok"})
}

func invalidResponse(reason string) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"valid": false, "error": reason})
}

func identityResponse(identity domain.Identity, extra map[string]any) (*structpb.Struct, error) {
	fields := map[string]any{
		"id":    identity.ID,
		"email": identity.Email,
		"role":  string(identity.Role),
	}
	for k, v := range extra {
		fields[k] = v
	}
	resp, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode identity")
	}
	return resp, nil
}

var _ TokenServiceServer = (*TokenServer)(nil)
