package port

import (
	"context"
	"time"

	"github.com/arklim/ratings-auth/internal/core/domain"
)

// VerificationCodeRepository persists one-time codes.
type VerificationCodeRepository interface {
	Create(ctx context.Context, code domain.VerificationCode) error
	// Consume marks the newest unused, unexpired code matching the arguments as used
	// in a single conditional write and returns the consumed row.
	Consume(ctx context.Context, email string, purpose domain.CodePurpose, code string, at time.Time) (*domain.VerificationCode, error)
}
