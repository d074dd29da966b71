package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/ratings-auth/internal/core/domain"
	"github.com/arklim/ratings-auth/internal/transport/http/middleware"
	"github.com/arklim/ratings-auth/internal/usecase"
)

// TokenTypeBearer is the token_type returned with every session token.
const TokenTypeBearer = "Bearer"

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse = middleware.ErrorResponse

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: middleware.GetTraceID(c),
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// UserSummary is the public view of a principal.
type UserSummary struct {
	ID       string      `json:"id"`
	Email    string      `json:"email"`
	Username string      `json:"username,omitempty"`
	Role     domain.Role `json:"role"`
}

func newUserSummary(p domain.Principal) UserSummary {
	return UserSummary{
		ID:       p.ID,
		Email:    p.Email,
		Username: p.Username,
		Role:     p.Role,
	}
}

// AuthTokenResponse is returned by every endpoint that issues a session token.
type AuthTokenResponse struct {
	Token     string      `json:"token"`
	TokenType string      `json:"token_type"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      UserSummary `json:"user"`
	Created   bool        `json:"created,omitempty"`
}

func newAuthTokenResponse(res *usecase.LoginResult) AuthTokenResponse {
	return AuthTokenResponse{
		Token:     res.Token,
		TokenType: TokenTypeBearer,
		ExpiresAt: res.ExpiresAt.UTC(),
		User:      newUserSummary(res.Principal),
		Created:   res.Created,
	}
}

// SSOLoginResponse carries the session token plus the partner order number, echoed unchanged.
type SSOLoginResponse struct {
	AuthTokenResponse
	OrderNo string `json:"order_no"`
}

// SendCodeRequest asks for a login code to be mailed.
type SendCodeRequest struct {
	Email string `json:"email" binding:"required"`
}

// SendCodeResponse confirms dispatch. DevCode is only populated in development.
type SendCodeResponse struct {
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
	DevCode   string    `json:"dev_code,omitempty"`
}

// CodeLoginRequest exchanges an emailed code for a session token.
type CodeLoginRequest struct {
	Email string `json:"email" binding:"required"`
	Code  string `json:"code" binding:"required"`
}

// PasswordLoginRequest defines the payload for the legacy password login.
type PasswordLoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RegisterRequest defines the payload for account registration.
type RegisterRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Username string `json:"username" binding:"max=64"`
}

// SessionResponse reports whether the caller holds a valid session token.
type SessionResponse struct {
	Authenticated bool         `json:"authenticated"`
	User          *UserSummary `json:"user,omitempty"`
}

// LoginAuditView is a single login audit row as exposed to administrators.
type LoginAuditView struct {
	ID          string             `json:"id"`
	PrincipalID *string            `json:"principal_id,omitempty"`
	Email       string             `json:"email"`
	Method      domain.LoginMethod `json:"method"`
	Status      domain.LoginStatus `json:"status"`
	Reason      string             `json:"reason,omitempty"`
	IP          string             `json:"ip"`
	UserAgent   string             `json:"user_agent,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

// LoginAuditListResponse wraps recent login audit rows.
type LoginAuditListResponse struct {
	Items []LoginAuditView `json:"items"`
	Count int              `json:"count"`
}

func newLoginAuditList(entries []domain.LoginAuditEntry) LoginAuditListResponse {
	items := make([]LoginAuditView, 0, len(entries))
	for _, e := range entries {
		items = append(items, LoginAuditView{
			ID:          e.ID,
			PrincipalID: e.PrincipalID,
			Email:       e.Email,
			Method:      e.Method,
			Status:      e.Status,
			Reason:      e.Reason,
			IP:          e.IP,
			UserAgent:   e.UserAgent,
			CreatedAt:   e.CreatedAt.UTC(),
		})
	}
	return LoginAuditListResponse{Items: items, Count: len(items)}
}

// HealthResponse describes the liveness payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ReadinessResponse reports per-dependency readiness.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
