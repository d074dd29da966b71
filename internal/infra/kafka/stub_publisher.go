package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/ratings-auth/internal/core/domain"
	"github.com/arklim/ratings-auth/internal/core/port"
	"github.com/arklim/ratings-auth/internal/infra/logger"
)

// StubPublisher logs events instead of sending them to Kafka. Used when no brokers are configured.
type StubPublisher struct {
	logger *zap.Logger
}

func NewStubPublisher(log *zap.Logger) *StubPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &StubPublisher{logger: log}
}

func (p *StubPublisher) logEvent(eventType, principalID string, at time.Time, fields ...zap.Field) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	base := []zap.Field{
		zap.String("event_type", eventType),
		zap.String("principal_id", principalID),
		zap.Time("timestamp", at.UTC()),
	}
	p.logger.Info("stub event published", append(base, fields...)...)
}

func (p *StubPublisher) PublishLoginSucceeded(_ context.Context, event domain.LoginSucceededEvent) error {
	p.logEvent(EventLoginSucceeded, event.PrincipalID, event.LoggedInAt,
		zap.String("email", logger.MaskEmail(event.Email)),
		zap.String("method", string(event.Method)),
		zap.String("order_no", event.OrderNo),
	)
	return nil
}

func (p *StubPublisher) PublishLoginFailed(_ context.Context, event domain.LoginFailedEvent) error {
	principalID := ""
	if event.PrincipalID != nil {
		principalID = *event.PrincipalID
	}
	p.logEvent(EventLoginFailed, principalID, event.FailedAt,
		zap.String("email", logger.MaskEmail(event.Email)),
		zap.String("method", string(event.Method)),
		zap.String("reason", event.Reason),
	)
	return nil
}

func (p *StubPublisher) PublishPrincipalCreated(_ context.Context, event domain.PrincipalCreatedEvent) error {
	p.logEvent(EventPrincipalCreated, event.PrincipalID, event.CreatedAt,
		zap.String("email", logger.MaskEmail(event.Email)),
		zap.String("role", string(event.Role)),
		zap.String("method", string(event.Method)),
	)
	return nil
}

// PublishEmailCodeRequested never logs the code itself.
func (p *StubPublisher) PublishEmailCodeRequested(_ context.Context, event domain.EmailCodeRequestedEvent) error {
	p.logEvent(EventEmailCodeRequested, "", event.RequestedAt,
		zap.String("email", logger.MaskEmail(event.Email)),
		zap.String("purpose", string(event.Purpose)),
		zap.Time("expires_at", event.ExpiresAt),
	)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
