package port

import (
	"context"

	"github.com/arklim/ratings-auth/internal/core/domain"
)

// PrincipalRepository exposes persistence behavior for principals.
type PrincipalRepository interface {
	Create(ctx context.Context, principal domain.Principal) error
	GetByID(ctx context.Context, id string) (*domain.Principal, error)
	GetByEmail(ctx context.Context, email string) (*domain.Principal, error)
}
