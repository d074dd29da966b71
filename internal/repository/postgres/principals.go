package postgres

import (
	"context"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"

	"github.com/arklim/ratings-auth/internal/core/domain"
	"github.com/arklim/ratings-auth/internal/core/port"
	"github.com/arklim/ratings-auth/internal/repository"
)

var principalColumns = []string{"id", "email", "username", "role", "password_hash", "created_at"}

// PrincipalRepository implements port.PrincipalRepository using PostgreSQL.
type PrincipalRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

func NewPrincipalRepository(exec pgExecutor) *PrincipalRepository {
	return &PrincipalRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a principal. A duplicate email yields repository.ErrConflict.
func (r *PrincipalRepository) Create(ctx context.Context, principal domain.Principal) error {
	var passwordHash any
	if principal.PasswordHash != "" {
		passwordHash = principal.PasswordHash
	}

	stmt, args, err := r.builder.Insert("principals").
		Columns(principalColumns...).
		Values(
			principal.ID,
			principal.Email,
			principal.Username,
			string(principal.Role),
			passwordHash,
			principal.CreatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert principal sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if translated := translate(err); translated == repository.ErrConflict {
			return translated
		}
		return fmt.Errorf("insert principal: %w", err)
	}

	return nil
}

func (r *PrincipalRepository) GetByID(ctx context.Context, id string) (*domain.Principal, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id})
}

// GetByEmail expects an already normalized email.
func (r *PrincipalRepository) GetByEmail(ctx context.Context, email string) (*domain.Principal, error) {
	return r.getOne(ctx, squirrel.Eq{"email": email})
}

func (r *PrincipalRepository) getOne(ctx context.Context, where squirrel.Eq) (*domain.Principal, error) {
	stmt, args, err := r.builder.
		Select(principalColumns...).
		From("principals").
		Where(where).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select principal sql: %w", err)
	}

	var (
		principal    domain.Principal
		role         string
		passwordHash *string
		createdAt    time.Time
	)

	err = r.exec.QueryRow(ctx, stmt, args...).Scan(
		&principal.ID,
		&principal.Email,
		&principal.Username,
		&role,
		&passwordHash,
		&createdAt,
	)
	if err != nil {
		if translated := translate(err); translated == repository.ErrNotFound {
			return nil, translated
		}
		return nil, fmt.Errorf("select principal: %w", err)
	}

	principal.Role = domain.Role(role)
	principal.CreatedAt = createdAt.UTC()
	if passwordHash != nil {
		principal.PasswordHash = *passwordHash
	}

	return &principal, nil
}

var _ port.PrincipalRepository = (*PrincipalRepository)(nil)
