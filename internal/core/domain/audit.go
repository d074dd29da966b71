package domain

import "time"

// LoginMethod identifies how a principal authenticated.
type LoginMethod string

const (
	LoginMethodSSO       LoginMethod = "sso"
	LoginMethodEmailCode LoginMethod = "email_code"
	LoginMethodPassword  LoginMethod = "password"
)

// LoginStatus records the outcome of a login attempt.
type LoginStatus string

const (
	LoginStatusSuccess LoginStatus = "success"
	LoginStatusFailed  LoginStatus = "failed"
)

// LoginAuditEntry is an append-only record of a single login attempt.
type LoginAuditEntry struct {
	ID          string
	PrincipalID *string
	Email       string
	Method      LoginMethod
	IP          string
	UserAgent   string
	Status      LoginStatus
	Reason      string
	CreatedAt   time.Time
}
