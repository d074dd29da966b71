package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/arklim/ratings-auth/internal/core/domain"
	"github.com/arklim/ratings-auth/internal/core/port"
)

// CodeSender delivers one-time codes by publishing them for the mailer service.
type CodeSender struct {
	publisher port.EventPublisher
	now       func() time.Time
}

func NewCodeSender(publisher port.EventPublisher) *CodeSender {
	return &CodeSender{publisher: publisher, now: time.Now}
}

func (s *CodeSender) SendEmailCode(ctx context.Context, msg port.EmailCodeMessage) error {
	event := domain.EmailCodeRequestedEvent{
		EventID:     uuid.NewString(),
		Email:       msg.Email,
		Code:        msg.Code,
		Purpose:     domain.CodePurpose(msg.Purpose),
		RequestedAt: s.now().UTC(),
		ExpiresAt:   msg.ExpiresAt,
	}

	if err := s.publisher.PublishEmailCodeRequested(ctx, event); err != nil {
		return fmt.Errorf("publish email code: %w", err)
	}
	return nil
}

var _ port.CodeSender = (*CodeSender)(nil)
