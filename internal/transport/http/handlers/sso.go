package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/ratings-auth/internal/infra/security"
	"github.com/arklim/ratings-auth/internal/transport/http/middleware"
	"github.com/arklim/ratings-auth/internal/usecase"
)

// SSOHandler exposes the signed partner handoff.
type SSOHandler struct {
	handoff *usecase.HandoffService
}

// NewSSOHandler constructs SSOHandler.
func NewSSOHandler(handoff *usecase.HandoffService) *SSOHandler {
	return &SSOHandler{handoff: handoff}
}

// RegisterRoutes binds the handoff route, applying optional middleware ahead of the handler.
func (h *SSOHandler) RegisterRoutes(r *gin.RouterGroup, guards ...gin.HandlerFunc) {
	r.GET("/sso/auto-login", withGuards(h.autoLogin, guards...)...)
}

// AutoLogin godoc
// @Summary Exchange a signed partner link for a session token
// @Description Verifies the MD5 signature and freshness of a partner handoff, creating the account on first visit.
// @Tags SSO
// @Produce json
// @Param email query string true "Email address"
// @Param orderNo query string false "Partner order number, echoed back"
// @Param timestamp query string true "Epoch seconds"
// @Param sign query string true "Lowercase hex MD5 signature"
// @Success 200 {object} SSOLoginResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 429 {object} middleware.RateLimitResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/sso/auto-login [get]
func (h *SSOHandler) autoLogin(c *gin.Context) {
	sign := c.Query(security.SignatureParam)
	if sign == "" {
		sign = c.Query("signature")
	}

	reqCtx := middleware.GetRequestContext(c)

	res, err := h.handoff.Handoff(c.Request.Context(), usecase.HandoffRequest{
		Email:     c.Query("email"),
		OrderNo:   c.Query("orderNo"),
		Timestamp: c.Query("timestamp"),
		Sign:      sign,
		Meta: usecase.RequestMeta{
			IP:        reqCtx.IP,
			UserAgent: reqCtx.UserAgent,
		},
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, SSOLoginResponse{
		AuthTokenResponse: newAuthTokenResponse(&res.LoginResult),
		OrderNo:           res.OrderNo,
	})
}

// withGuards appends handler to guards, skipping nil guards.
func withGuards(handler gin.HandlerFunc, guards ...gin.HandlerFunc) []gin.HandlerFunc {
	chain := make([]gin.HandlerFunc, 0, len(guards)+1)
	for _, g := range guards {
		if g != nil {
			chain = append(chain, g)
		}
	}
	return append(chain, handler)
}
