package domain

import "time"

// LoginSucceededEvent represents the payload for auth.login.succeeded messages.
type LoginSucceededEvent struct {
	EventID     string
	PrincipalID string
	Email       string
	Role        Role
	Method      LoginMethod
	IPAddress   string
	UserAgent   string
	OrderNo     string
	LoggedInAt  time.Time
}

// LoginFailedEvent represents the payload for auth.login.failed messages.
type LoginFailedEvent struct {
	EventID     string
	PrincipalID *string
	Email       string
	Method      LoginMethod
	Reason      string
	IPAddress   string
	FailedAt    time.Time
}

// PrincipalCreatedEvent represents the payload for auth.principal.created messages.
type PrincipalCreatedEvent struct {
	EventID     string
	PrincipalID string
	Email       string
	Username    string
	Role        Role
	Method      LoginMethod
	CreatedAt   time.Time
}

// EmailCodeRequestedEvent asks the mailer to deliver a one-time code.
type EmailCodeRequestedEvent struct {
	EventID     string
	Email       string
	Code        string
	Purpose     CodePurpose
	RequestedAt time.Time
	ExpiresAt   time.Time
}
