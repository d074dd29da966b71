package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/ratings-auth/internal/core/domain"
	"github.com/arklim/ratings-auth/internal/core/port"
	"github.com/arklim/ratings-auth/internal/infra/config"
)

const schemaVersion = "1.0"

// Event types, prefixed with the configured topic prefix on the wire.
const (
	EventLoginSucceeded     = "auth.login.succeeded"
	EventLoginFailed        = "auth.login.failed"
	EventPrincipalCreated   = "auth.principal.created"
	EventEmailCodeRequested = "notification.email_code.requested"
)

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID     string           `json:"event_id"`
	EventType   string           `json:"event_type"`
	PrincipalID string           `json:"principal_id,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
	Version     string           `json:"version"`
	Payload     any              `json:"payload"`
	Metadata    envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, key, principalID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		metadata["trace_id"] = sc.TraceID().String()
	}

	envelope := eventEnvelope{
		EventID:     id,
		EventType:   eventType,
		PrincipalID: principalID,
		Timestamp:   ts.UTC(),
		Version:     schemaVersion,
		Payload:     payload,
		Metadata:    metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}
	if key != "" {
		message.Key = sarama.StringEncoder(key)
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *EventPublisher) PublishLoginSucceeded(ctx context.Context, event domain.LoginSucceededEvent) error {
	payload := struct {
		PrincipalID string    `json:"principal_id"`
		Email       string    `json:"email"`
		Role        string    `json:"role"`
		Method      string    `json:"method"`
		IPAddress   string    `json:"ip_address,omitempty"`
		UserAgent   string    `json:"user_agent,omitempty"`
		OrderNo     string    `json:"order_no,omitempty"`
		LoggedInAt  time.Time `json:"logged_in_at"`
	}{
		PrincipalID: event.PrincipalID,
		Email:       event.Email,
		Role:        string(event.Role),
		Method:      string(event.Method),
		IPAddress:   event.IPAddress,
		UserAgent:   event.UserAgent,
		OrderNo:     event.OrderNo,
		LoggedInAt:  event.LoggedInAt.UTC(),
	}

	return p.publish(ctx, event.EventID, EventLoginSucceeded, event.PrincipalID, event.PrincipalID, event.LoggedInAt, payload)
}

func (p *EventPublisher) PublishLoginFailed(ctx context.Context, event domain.LoginFailedEvent) error {
	principalID := ""
	if event.PrincipalID != nil {
		principalID = *event.PrincipalID
	}

	payload := struct {
		PrincipalID *string   `json:"principal_id,omitempty"`
		Email       string    `json:"email"`
		Method      string    `json:"method"`
		Reason      string    `json:"reason"`
		IPAddress   string    `json:"ip_address,omitempty"`
		FailedAt    time.Time `json:"failed_at"`
	}{
		PrincipalID: event.PrincipalID,
		Email:       event.Email,
		Method:      string(event.Method),
		Reason:      event.Reason,
		IPAddress:   event.IPAddress,
		FailedAt:    event.FailedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, EventLoginFailed, event.Email, principalID, event.FailedAt, payload)
}

func (p *EventPublisher) PublishPrincipalCreated(ctx context.Context, event domain.PrincipalCreatedEvent) error {
	payload := struct {
		PrincipalID string    `json:"principal_id"`
		Email       string    `json:"email"`
		Username    string    `json:"username"`
		Role        string    `json:"role"`
		Method      string    `json:"method"`
		CreatedAt   time.Time `json:"created_at"`
	}{
		PrincipalID: event.PrincipalID,
		Email:       event.Email,
		Username:    event.Username,
		Role:        string(event.Role),
		Method:      string(event.Method),
		CreatedAt:   event.CreatedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, EventPrincipalCreated, event.PrincipalID, event.PrincipalID, event.CreatedAt, payload)
}

// PublishEmailCodeRequested hands a code to the mailer service. The payload carries the raw code.
func (p *EventPublisher) PublishEmailCodeRequested(ctx context.Context, event domain.EmailCodeRequestedEvent) error {
	payload := struct {
		Email       string    `json:"email"`
		Code        string    `json:"code"`
		Purpose     string    `json:"purpose"`
		RequestedAt time.Time `json:"requested_at"`
		ExpiresAt   time.Time `json:"expires_at"`
	}{
		Email:       event.Email,
		Code:        event.Code,
		Purpose:     string(event.Purpose),
		RequestedAt: event.RequestedAt.UTC(),
		ExpiresAt:   event.ExpiresAt.UTC(),
	}

	return p.publish(ctx, event.EventID, EventEmailCodeRequested, event.Email, "", event.RequestedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
