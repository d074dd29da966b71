package usecase

import (
	"context"
	"errors"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/ratings-auth/internal/core/domain"
	"github.com/arklim/ratings-auth/internal/core/port"
	"github.com/arklim/ratings-auth/internal/infra/logger"
	"github.com/arklim/ratings-auth/internal/infra/telemetry"
	"github.com/arklim/ratings-auth/internal/repository"
)

// RequestMeta describes the client behind a login attempt.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// LoginResult is returned by every successful login flow.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Principal domain.Principal
	Created   bool
}

// principalResolver finds a principal by email and creates one on first login.
type principalResolver struct {
	principals port.PrincipalRepository
	events     port.EventPublisher
	logger     *zap.Logger
	now        func() time.Time
}

func (r *principalResolver) resolve(ctx context.Context, email string, method domain.LoginMethod) (*domain.Principal, bool, error) {
	principal, err := r.principals.GetByEmail(ctx, email)
	if err == nil {
		return principal, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, domain.NewStoreError("lookup principal", err)
	}

	created := domain.Principal{
		ID:        uuid.NewString(),
		Email:     email,
		Username:  domain.DefaultUsername(email),
		Role:      domain.RoleUser,
		CreatedAt: r.now().UTC(),
	}

	if err := r.principals.Create(ctx, created); err != nil {
		if !errors.Is(err, repository.ErrConflict) {
			return nil, false, domain.NewStoreError("create principal", err)
		}
		// lost the insert race; the winner's row is authoritative
		winner, err := r.principals.GetByEmail(ctx, email)
		if err != nil {
			return nil, false, domain.NewStoreError("reload principal", err)
		}
		return winner, false, nil
	}

	r.publishCreated(ctx, created, method)
	return &created, true, nil
}

func (r *principalResolver) publishCreated(ctx context.Context, principal domain.Principal, method domain.LoginMethod) {
	if r.events == nil {
		return
	}
	event := domain.PrincipalCreatedEvent{
		EventID:     uuid.NewString(),
		PrincipalID: principal.ID,
		Email:       principal.Email,
		Username:    principal.Username,
		Role:        principal.Role,
		Method:      method,
		CreatedAt:   principal.CreatedAt,
	}
	if err := r.events.PublishPrincipalCreated(ctx, event); err != nil {
		r.logger.Warn("publish principal created failed", zap.String("principal_id", principal.ID), zap.Error(err))
	}
}

// loginRecorder writes the audit trail and login events for every flow.
type loginRecorder struct {
	audit   port.LoginAuditRepository
	events  port.EventPublisher
	metrics *telemetry.AuthMetrics
	logger  *zap.Logger
	now     func() time.Time
}

// success appends the audit row; its failure fails the login.
func (r *loginRecorder) success(ctx context.Context, principal domain.Principal, method domain.LoginMethod, meta RequestMeta, orderNo string) error {
	now := r.now().UTC()
	principalID := principal.ID

	entry := domain.LoginAuditEntry{
		ID:          uuid.NewString(),
		PrincipalID: &principalID,
		Email:       principal.Email,
		Method:      method,
		IP:          meta.IP,
		UserAgent:   meta.UserAgent,
		Status:      domain.LoginStatusSuccess,
		CreatedAt:   now,
	}
	if err := r.audit.Append(ctx, entry); err != nil {
		return domain.NewStoreError("append login audit", err)
	}

	r.metrics.ObserveLogin(string(method), string(domain.LoginStatusSuccess))

	if r.events != nil {
		event := domain.LoginSucceededEvent{
			EventID:     uuid.NewString(),
			PrincipalID: principal.ID,
			Email:       principal.Email,
			Role:        principal.Role,
			Method:      method,
			IPAddress:   meta.IP,
			UserAgent:   meta.UserAgent,
			OrderNo:     orderNo,
			LoggedInAt:  now,
		}
		if err := r.events.PublishLoginSucceeded(ctx, event); err != nil {
			r.logger.Warn("publish login succeeded failed", zap.String("principal_id", principal.ID), zap.Error(err))
		}
	}

	r.logger.Info("login succeeded",
		zap.String("principal_id", principal.ID),
		zap.String("method", string(method)),
		zap.String("ip", logger.MaskIP(meta.IP)),
	)
	return nil
}

// failure is best effort: the caller's error is what the client sees.
func (r *loginRecorder) failure(ctx context.Context, principalID *string, email string, method domain.LoginMethod, reason string, meta RequestMeta) {
	now := r.now().UTC()

	entry := domain.LoginAuditEntry{
		ID:          uuid.NewString(),
		PrincipalID: principalID,
		Email:       email,
		Method:      method,
		IP:          meta.IP,
		UserAgent:   meta.UserAgent,
		Status:      domain.LoginStatusFailed,
		Reason:      reason,
		CreatedAt:   now,
	}
	if err := r.audit.Append(ctx, entry); err != nil {
		r.logger.Warn("append failed login audit failed", zap.String("email", logger.MaskEmail(email)), zap.Error(err))
	}

	r.metrics.ObserveLogin(string(method), string(domain.LoginStatusFailed))

	if r.events != nil {
		event := domain.LoginFailedEvent{
			EventID:     entry.ID,
			PrincipalID: principalID,
			Email:       email,
			Method:      method,
			Reason:      reason,
			IPAddress:   meta.IP,
			FailedAt:    now,
		}
		if err := r.events.PublishLoginFailed(ctx, event); err != nil {
			r.logger.Warn("publish login failed event failed", zap.Error(err))
		}
	}
}
