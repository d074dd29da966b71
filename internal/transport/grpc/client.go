package transportgrpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/arklim/ratings-auth/internal/core/domain"
)

// TokenClient calls ratings.auth.v1.TokenService.
type TokenClient struct {
	conn grpc.ClientConnInterface
}

func NewTokenClient(conn grpc.ClientConnInterface) *TokenClient {
	return &TokenClient{conn: conn}
}

// Verify asks the service to validate token. A rejected token yields
// domain.ErrTokenExpired or domain.ErrTokenMalformed.
func (c *TokenClient) Verify(ctx context.Context, token string) (domain.Identity, error) {
	req, err := structpb.NewStruct(map[string]any{"token": token})
	if err != nil {
		return domain.Identity{}, fmt.Errorf("encode verify request: %w", err)
	}

	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, VerifyMethod, req, resp); err != nil {
		return domain.Identity{}, err
	}

	fields := resp.GetFields()
	if !fields["valid"].GetBoolValue() {
		if fields["error"].GetStringValue() == "session token expired" {
			return domain.Identity{}, domain.ErrTokenExpired
		}
		return domain.Identity{}, domain.ErrTokenMalformed
	}
	return identityFromFields(fields), nil
}

// WhoAmI returns the identity bound to the session token in the outgoing metadata.
func (c *TokenClient) WhoAmI(ctx context.Context, opts ...grpc.CallOption) (domain.Identity, error) {
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, WhoAmIMethod, &structpb.Struct{}, resp, opts...); err != nil {
		return domain.Identity{}, err
	}
	return identityFromFields(resp.GetFields()), nil
}

// Health reports the status string returned by the service.
func (c *TokenClient) Health(ctx context.Context) (string, error) {
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, HealthMethod, &structpb.Struct{}, resp); err != nil {
		return "", err
	}
	return resp.GetFields()["status"].GetStringValue(), nil
}

func identityFromFields(fields map[string]*structpb.Value) domain.Identity {
	return domain.Identity{
		ID:    fields["id"].GetStringValue(),
		Email: fields["email"].GetStringValue(),
		Role:  domain.Role(fields["role"].GetStringValue()),
	}
}
