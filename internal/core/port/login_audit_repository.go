package port

import (
	"context"

	"github.com/arklim/ratings-auth/internal/core/domain"
)

// LoginAuditRepository appends and lists login audit entries.
type LoginAuditRepository interface {
	Append(ctx context.Context, entry domain.LoginAuditEntry) error
	ListRecent(ctx context.Context, limit int) ([]domain.LoginAuditEntry, error)
}
