package port

import (
	"context"

	"github.com/arklim/ratings-auth/internal/core/domain"
)

// EventPublisher publishes domain events to the message bus.
type EventPublisher interface {
	PublishLoginSucceeded(ctx context.Context, event domain.LoginSucceededEvent) error
	PublishLoginFailed(ctx context.Context, event domain.LoginFailedEvent) error
	PublishPrincipalCreated(ctx context.Context, event domain.PrincipalCreatedEvent) error
	PublishEmailCodeRequested(ctx context.Context, event domain.EmailCodeRequestedEvent) error
}
