package postgres

import (
	"context"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"

	"github.com/arklim/ratings-auth/internal/core/domain"
	"github.com/arklim/ratings-auth/internal/core/port"
)

const maxAuditPage = 500

var loginAuditColumns = []string{"id", "principal_id", "email", "method", "ip_address", "user_agent", "status", "reason", "created_at"}

// LoginAuditRepository appends to and reads the login_audit table.
type LoginAuditRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

func NewLoginAuditRepository(exec pgExecutor) *LoginAuditRepository {
	return &LoginAuditRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *LoginAuditRepository) Append(ctx context.Context, entry domain.LoginAuditEntry) error {
	stmt, args, err := r.builder.Insert("login_audit").
		Columns(loginAuditColumns...).
		Values(
			entry.ID,
			entry.PrincipalID,
			entry.Email,
			string(entry.Method),
			entry.IP,
			entry.UserAgent,
			string(entry.Status),
			entry.Reason,
			entry.CreatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert login audit sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert login audit: %w", err)
	}

	return nil
}

// ListRecent returns up to limit entries, newest first. limit is clamped to [1, 500].
func (r *LoginAuditRepository) ListRecent(ctx context.Context, limit int) ([]domain.LoginAuditEntry, error) {
	if limit <= 0 {
		limit = 1
	}
	if limit > maxAuditPage {
		limit = maxAuditPage
	}

	stmt, args, err := r.builder.
		Select(loginAuditColumns...).
		From("login_audit").
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list login audit sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list login audit: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.LoginAuditEntry, 0, limit)
	for rows.Next() {
		var (
			entry  domain.LoginAuditEntry
			method string
			status string
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.PrincipalID,
			&entry.Email,
			&method,
			&entry.IP,
			&entry.UserAgent,
			&status,
			&entry.Reason,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan login audit: %w", err)
		}
		entry.Method = domain.LoginMethod(method)
		entry.Status = domain.LoginStatus(status)
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate login audit: %w", err)
	}

	return entries, nil
}

var _ port.LoginAuditRepository = (*LoginAuditRepository)(nil)
