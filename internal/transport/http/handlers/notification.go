package handlers

import (
	"context"

	"go.uber.org/zap"

	"github.com/arklim/ratings-auth/internal/core/port"
	appLogger "github.com/arklim/ratings-auth/internal/infra/logger"
)

// LoggingNotificationDispatcher records code dispatch without delivering mail.
// The raw code is only written to the log in development.
type LoggingNotificationDispatcher struct {
	logger *zap.Logger
	isDev  bool
}

// NewLoggingNotificationDispatcher constructs a dispatcher backed by structured logging.
func NewLoggingNotificationDispatcher(logger *zap.Logger, isDev bool) *LoggingNotificationDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingNotificationDispatcher{logger: logger, isDev: isDev}
}

// SendEmailCode implements port.CodeSender.
func (d *LoggingNotificationDispatcher) SendEmailCode(ctx context.Context, msg port.EmailCodeMessage) error {
	fields := []zap.Field{
		zap.String("email", appLogger.MaskEmail(msg.Email)),
		zap.String("purpose", msg.Purpose),
		zap.Time("expires_at", msg.ExpiresAt),
	}
	if d.isDev {
		fields = append(fields, zap.String("dev_code", msg.Code))
	}

	if id, ok := ctx.Value(appLogger.RequestIDKey{}).(string); ok && id != "" {
		fields = append(fields, zap.String("request_id", id))
	}

	d.logger.Info("dispatch email code", fields...)
	return nil
}

var _ port.CodeSender = (*LoggingNotificationDispatcher)(nil)
