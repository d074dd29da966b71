package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/ratings-auth/internal/core/domain"
	"github.com/arklim/ratings-auth/internal/transport/http/middleware"
	"github.com/arklim/ratings-auth/internal/usecase"
)

// ErrorCase maps a sentinel error to an HTTP status code and response message.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

// authErrorCases is the shared taxonomy for every authentication endpoint.
var authErrorCases = []ErrorCase{
	{Err: domain.ErrIncompleteParameters, Status: http.StatusBadRequest, Message: "incomplete parameters"},
	{Err: domain.ErrRequestExpired, Status: http.StatusBadRequest, Message: "request expired"},
	{Err: domain.ErrInvalidOrExpiredCode, Status: http.StatusBadRequest, Message: "invalid or expired code"},
	{Err: usecase.ErrInvalidEmail, Status: http.StatusBadRequest, Message: "invalid email"},
	{Err: usecase.ErrPasswordPolicyViolation, Status: http.StatusBadRequest, Message: "password does not meet requirements"},
	{Err: domain.ErrInvalidSignature, Status: http.StatusUnauthorized, Message: "invalid signature"},
	{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "invalid email or password"},
	{Err: domain.ErrTokenExpired, Status: http.StatusUnauthorized, Message: "session token expired"},
	{Err: domain.ErrTokenMalformed, Status: http.StatusUnauthorized, Message: "invalid session token"},
	{Err: domain.ErrUnauthorized, Status: http.StatusUnauthorized, Message: "unauthorized"},
	{Err: domain.ErrForbidden, Status: http.StatusForbidden, Message: "forbidden"},
	{Err: usecase.ErrPrincipalNotFound, Status: http.StatusNotFound, Message: "user not found"},
	{Err: usecase.ErrEmailTaken, Status: http.StatusConflict, Message: "email already registered"},
}

// RespondWithMappedError resolves the provided error against known cases or falls back to a generic response.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	for _, cs := range cases {
		if cs.Err == nil {
			continue
		}
		if errors.Is(err, cs.Err) {
			c.JSON(cs.Status, NewErrorResponse(c, cs.Message))
			return
		}
	}

	_ = c.Error(err)
	c.JSON(fallbackStatus, NewErrorResponse(c, fallbackMessage))
}

// respondError writes the response for a usecase failure. Throttles answer 429
// with Retry-After, store failures answer 503 with Retry-After: 1.
func respondError(c *gin.Context, err error) {
	var limited *usecase.RateLimitExceededError
	if errors.As(err, &limited) {
		middleware.RespondRateLimited(c, limited.RetryAfter)
		return
	}

	if domain.IsRetryable(err) {
		_ = c.Error(err)
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "service temporarily unavailable"))
		return
	}

	RespondWithMappedError(c, err, authErrorCases, http.StatusInternalServerError, "internal server error")
}
