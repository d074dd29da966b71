package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/arklim/ratings-auth/internal/core/domain"
	"github.com/arklim/ratings-auth/internal/transport/http/middleware"
	"github.com/arklim/ratings-auth/internal/usecase"
)

// AdminHandler exposes administrator-only views.
type AdminHandler struct {
	auth *usecase.AuthService
	gate *middleware.Gate
}

// NewAdminHandler constructs AdminHandler.
func NewAdminHandler(auth *usecase.AuthService, gate *middleware.Gate) *AdminHandler {
	return &AdminHandler{auth: auth, gate: gate}
}

// RegisterRoutes binds admin routes under r (normally /admin).
func (h *AdminHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/logins", h.gate.RequireRole(domain.RoleAdmin), h.listLogins)
}

// ListLogins godoc
// @Summary Recent login attempts
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Maximum rows (1-500, default 50)"
// @Success 200 {object} LoginAuditListResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /api/admin/logins [get]
func (h *AdminHandler) listLogins(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "limit must be a non-negative integer"))
			return
		}
		limit = parsed
	}

	entries, err := h.auth.RecentLogins(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newLoginAuditList(entries))
}
