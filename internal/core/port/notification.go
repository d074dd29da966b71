package port

import (
	"context"
	"time"
)

// EmailCodeMessage carries everything a mailer needs to deliver a one-time code.
type EmailCodeMessage struct {
	Email     string
	Code      string
	Purpose   string
	ExpiresAt time.Time
}

// CodeSender delivers one-time codes to their owners.
type CodeSender interface {
	SendEmailCode(ctx context.Context, msg EmailCodeMessage) error
}
