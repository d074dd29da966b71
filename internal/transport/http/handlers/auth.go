package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/ratings-auth/internal/core/domain"
	"github.com/arklim/ratings-auth/internal/transport/http/middleware"
	"github.com/arklim/ratings-auth/internal/usecase"
)

// AuthRouteGuards holds per-route middleware, typically sliding-window rate limits. Nil entries are skipped.
type AuthRouteGuards struct {
	SendCode    gin.HandlerFunc
	LoginByCode gin.HandlerFunc
	Login       gin.HandlerFunc
	Register    gin.HandlerFunc
}

// AuthHandler exposes authentication endpoints.
type AuthHandler struct {
	auth  *usecase.AuthService
	gate  *middleware.Gate
	isDev bool
}

// AuthHandlerOption configures optional AuthHandler dependencies.
type AuthHandlerOption func(*AuthHandler)

// WithDevMode toggles development-only behaviour (returning the issued code in send-code responses).
func WithDevMode(isDev bool) AuthHandlerOption {
	return func(h *AuthHandler) {
		h.isDev = isDev
	}
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth *usecase.AuthService, gate *middleware.Gate, opts ...AuthHandlerOption) *AuthHandler {
	handler := &AuthHandler{
		auth: auth,
		gate: gate,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(handler)
		}
	}

	return handler
}

// RegisterRoutes binds authentication routes under r (normally /auth).
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup, guards AuthRouteGuards) {
	r.POST("/send-code", withGuards(h.sendCode, guards.SendCode)...)
	r.POST("/login-by-code", withGuards(h.loginByCode, guards.LoginByCode)...)
	r.POST("/login", withGuards(h.login, guards.Login)...)
	r.POST("/register", withGuards(h.register, guards.Register)...)
	r.GET("/me", h.gate.Require(), h.me)
	r.GET("/session", h.gate.Optional(), h.session)
}

// SendCode godoc
// @Summary Send a login code by email
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body SendCodeRequest true "Recipient"
// @Success 200 {object} SendCodeResponse
// @Failure 400 {object} ErrorResponse
// @Failure 429 {object} middleware.RateLimitResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/auth/send-code [post]
func (h *AuthHandler) sendCode(c *gin.Context) {
	var req SendCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domain.ErrIncompleteParameters)
		return
	}

	code, err := h.auth.SendLoginCode(c.Request.Context(), req.Email)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := SendCodeResponse{
		Message:   "verification code sent",
		ExpiresAt: code.ExpiresAt.UTC(),
	}
	if h.isDev {
		resp.DevCode = code.Code
	}

	c.JSON(http.StatusOK, resp)
}

// LoginByCode godoc
// @Summary Log in with an emailed code
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body CodeLoginRequest true "Email and code"
// @Success 200 {object} AuthTokenResponse
// @Failure 400 {object} ErrorResponse
// @Failure 429 {object} middleware.RateLimitResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/auth/login-by-code [post]
func (h *AuthHandler) loginByCode(c *gin.Context) {
	var req CodeLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domain.ErrIncompleteParameters)
		return
	}

	res, err := h.auth.LoginWithCode(c.Request.Context(), req.Email, req.Code, requestMeta(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newAuthTokenResponse(res))
}

// Login godoc
// @Summary Log in with email and password
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body PasswordLoginRequest true "Credentials"
// @Success 200 {object} AuthTokenResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 429 {object} middleware.RateLimitResponse
// @Router /api/auth/login [post]
func (h *AuthHandler) login(c *gin.Context) {
	var req PasswordLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domain.ErrIncompleteParameters)
		return
	}

	res, err := h.auth.LoginWithPassword(c.Request.Context(), req.Email, req.Password, requestMeta(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newAuthTokenResponse(res))
}

// Register godoc
// @Summary Register a password account
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration payload"
// @Success 201 {object} AuthTokenResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/auth/register [post]
func (h *AuthHandler) register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domain.ErrIncompleteParameters)
		return
	}

	res, err := h.auth.Register(c.Request.Context(), usecase.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Username: req.Username,
	}, requestMeta(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, newAuthTokenResponse(res))
}

// Me godoc
// @Summary Current principal
// @Tags Authentication
// @Produce json
// @Security BearerAuth
// @Success 200 {object} UserSummary
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/auth/me [get]
func (h *AuthHandler) me(c *gin.Context) {
	identity, ok := middleware.PrincipalFromContext(c)
	if !ok {
		respondError(c, domain.ErrUnauthorized)
		return
	}

	principal, err := h.auth.Me(c.Request.Context(), identity.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newUserSummary(*principal))
}

// Session godoc
// @Summary Report whether the caller is signed in
// @Tags Authentication
// @Produce json
// @Success 200 {object} SessionResponse
// @Router /api/auth/session [get]
func (h *AuthHandler) session(c *gin.Context) {
	identity, ok := middleware.PrincipalFromContext(c)
	if !ok {
		c.JSON(http.StatusOK, SessionResponse{Authenticated: false})
		return
	}

	c.JSON(http.StatusOK, SessionResponse{
		Authenticated: true,
		User: &UserSummary{
			ID:    identity.ID,
			Email: identity.Email,
			Role:  identity.Role,
		},
	})
}

func requestMeta(c *gin.Context) usecase.RequestMeta {
	reqCtx := middleware.GetRequestContext(c)
	return usecase.RequestMeta{
		IP:        reqCtx.IP,
		UserAgent: reqCtx.UserAgent,
	}
}
