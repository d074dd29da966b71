package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/ratings-auth/internal/core/domain"
	"github.com/arklim/ratings-auth/internal/core/port"
	"github.com/arklim/ratings-auth/internal/repository"
)

// newestConsumable selects the row Consume is allowed to flip. Rows locked by a
// concurrent consumer are skipped, so the loser sees no match instead of waiting.
const newestConsumable = `id = (
	SELECT id FROM verification_codes
	WHERE email = ? AND purpose = ? AND code = ? AND used = FALSE AND expires_at > ?
	ORDER BY created_at DESC
	LIMIT 1
	FOR UPDATE SKIP LOCKED
)`

// VerificationCodeRepository implements port.VerificationCodeRepository using PostgreSQL.
type VerificationCodeRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

func NewVerificationCodeRepository(exec pgExecutor) *VerificationCodeRepository {
	return &VerificationCodeRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a fresh, unused code.
func (r *VerificationCodeRepository) Create(ctx context.Context, code domain.VerificationCode) error {
	stmt, args, err := r.builder.Insert("verification_codes").
		Columns("id", "email", "code", "purpose", "created_at", "expires_at", "used").
		Values(
			code.ID,
			code.Email,
			code.Code,
			string(code.Purpose),
			code.CreatedAt,
			code.ExpiresAt,
			false,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert verification code sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert verification code: %w", err)
	}

	return nil
}

// Consume flips used=false to used=true on the newest live match in one statement.
// A miss, whether wrong, expired, already used or lost to a concurrent caller, is ErrNotFound.
func (r *VerificationCodeRepository) Consume(ctx context.Context, email string, purpose domain.CodePurpose, code string, at time.Time) (*domain.VerificationCode, error) {
	stmt, args, err := r.builder.Update("verification_codes").
		Set("used", true).
		Set("used_at", at).
		Where(newestConsumable, email, string(purpose), code, at).
		Where("used = FALSE").
		Suffix("RETURNING id, email, code, purpose, created_at, expires_at, used, used_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build consume verification code sql: %w", err)
	}

	var (
		consumed      domain.VerificationCode
		storedPurpose string
		usedAt        *time.Time
	)

	err = r.exec.QueryRow(ctx, stmt, args...).Scan(
		&consumed.ID,
		&consumed.Email,
		&consumed.Code,
		&storedPurpose,
		&consumed.CreatedAt,
		&consumed.ExpiresAt,
		&consumed.Used,
		&usedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("consume verification code: %w", err)
	}

	consumed.Purpose = domain.CodePurpose(storedPurpose)
	consumed.UsedAt = usedAt

	return &consumed, nil
}

var _ port.VerificationCodeRepository = (*VerificationCodeRepository)(nil)
