package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/ratings-auth/internal/core/domain"
	"github.com/arklim/ratings-auth/internal/core/port"
	"github.com/arklim/ratings-auth/internal/infra/security"
	"github.com/arklim/ratings-auth/internal/infra/telemetry"
)

// ErrorResponse matches the handlers.ErrorResponse structure
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

func newErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: GetTraceID(c),
	}
}

// Gate guards routes with session tokens.
type Gate struct {
	tokens  port.TokenVerifier
	metrics *telemetry.AuthMetrics
}

// NewGate builds a gate around the token verifier. metrics may be nil.
func NewGate(tokens port.TokenVerifier, metrics *telemetry.AuthMetrics) *Gate {
	return &Gate{tokens: tokens, metrics: metrics}
}

// Require rejects requests without a valid bearer token with 401.
func (g *Gate) Require() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := g.authenticate(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, unauthorizedMessage(err)))
			return
		}

		setPrincipal(c, identity)
		c.Next()
	}
}

// RequireRole composes Require and answers 403 when the principal holds a different role.
func (g *Gate) RequireRole(role domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := g.authenticate(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, unauthorizedMessage(err)))
			return
		}

		setPrincipal(c, identity)

		if identity.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, newErrorResponse(c, domain.ErrForbidden.Error()))
			return
		}

		c.Next()
	}
}

// Optional attaches the principal when a valid token is present and never rejects.
func (g *Gate) Optional() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") != "" {
			if identity, err := g.authenticate(c); err == nil {
				setPrincipal(c, identity)
			}
		}
		c.Next()
	}
}

func (g *Gate) authenticate(c *gin.Context) (domain.Identity, error) {
	token, err := security.ParseBearer(c.GetHeader("Authorization"))
	if err != nil {
		g.metrics.ObserveTokenVerification(telemetry.OutcomeIncomplete)
		return domain.Identity{}, domain.ErrUnauthorized
	}

	identity, err := g.tokens.Verify(token)
	switch {
	case err == nil:
		g.metrics.ObserveTokenVerification(telemetry.OutcomeSuccess)
		return identity, nil
	case errors.Is(err, domain.ErrTokenExpired):
		g.metrics.ObserveTokenVerification(telemetry.OutcomeExpired)
	default:
		g.metrics.ObserveTokenVerification(telemetry.OutcomeMalformed)
	}
	return domain.Identity{}, err
}

func unauthorizedMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrTokenExpired):
		return "session token expired"
	case errors.Is(err, domain.ErrTokenMalformed):
		return "invalid session token"
	default:
		return domain.ErrUnauthorized.Error()
	}
}
