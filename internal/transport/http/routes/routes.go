package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arklim/ratings-auth/internal/core/port"
	"github.com/arklim/ratings-auth/internal/infra/config"
	"github.com/arklim/ratings-auth/internal/infra/telemetry"
	"github.com/arklim/ratings-auth/internal/transport/http/handlers"
	"github.com/arklim/ratings-auth/internal/transport/http/middleware"
	"github.com/arklim/ratings-auth/internal/usecase"
)

// APIPrefixes lists the mount points of the public API. /api keeps the
// partner's existing links working; /api/v1 is the versioned alias.
var APIPrefixes = []string{"/api", "/api/v1"}

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth    *usecase.AuthService
	Handoff *usecase.HandoffService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config         *config.AppConfig
	Logger         *zap.Logger
	Services       ServiceSet
	Tokens         port.TokenVerifier
	AuthMetrics    *telemetry.AuthMetrics
	HTTPMetrics    *middleware.HTTPMetrics
	MetricsHandler http.Handler
	RateLimiter    *middleware.RateLimiter
	IPLimiter      *middleware.IPLimiter
	Database       DatabaseChecker
	Cache          CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	if err := r.SetTrustedProxies(deps.Config.App.TrustedProxies); err != nil {
		log.Warn("invalid trusted proxies, trusting none", zap.Strings("trusted_proxies", deps.Config.App.TrustedProxies), zap.Error(err))
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLog(deps.Logger))
	r.Use(deps.HTTPMetrics.Handler())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(deps.Config.CORS.AllowedOrigins))

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("postgres", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}
	healthHandler := handlers.NewHealthHandler(deps.Logger, healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Ready)

	metricsHandler := deps.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.GET("/metrics", gin.WrapH(metricsHandler))

	gate := middleware.NewGate(deps.Tokens, deps.AuthMetrics)
	guards := buildAuthGuards(deps)
	handoffGuard := buildRule(deps, "sso_handoff_ip", deps.Config.RateLimit.HandoffMaxAttempts)

	var (
		ssoHandler   *handlers.SSOHandler
		authHandler  *handlers.AuthHandler
		adminHandler *handlers.AdminHandler
	)
	if deps.Services.Handoff != nil {
		ssoHandler = handlers.NewSSOHandler(deps.Services.Handoff)
	}
	if deps.Services.Auth != nil {
		authHandler = handlers.NewAuthHandler(deps.Services.Auth, gate, handlers.WithDevMode(deps.Config.App.IsDevelopment()))
		adminHandler = handlers.NewAdminHandler(deps.Services.Auth, gate)
	}

	for _, prefix := range APIPrefixes {
		api := r.Group(prefix)
		if deps.IPLimiter != nil {
			api.Use(deps.IPLimiter.Handler())
		}

		if ssoHandler != nil {
			ssoHandler.RegisterRoutes(api, handoffGuard)
		}
		if authHandler != nil {
			authHandler.RegisterRoutes(api.Group("/auth"), guards)
			adminHandler.RegisterRoutes(api.Group("/admin"))
		}
	}

	return r
}

func buildAuthGuards(deps Dependencies) handlers.AuthRouteGuards {
	limits := deps.Config.RateLimit
	return handlers.AuthRouteGuards{
		SendCode:    buildRule(deps, "auth_send_code_ip", limits.SendCodeMaxAttempts),
		LoginByCode: buildRule(deps, "auth_login_by_code_ip", limits.LoginMaxAttempts),
		Login:       buildRule(deps, "auth_login_ip", limits.LoginMaxAttempts),
		Register:    buildRule(deps, "auth_register_ip", limits.LoginMaxAttempts),
	}
}

// buildRule returns nil when limiting is not configured for the route.
func buildRule(deps Dependencies, name string, limit int) gin.HandlerFunc {
	if deps.RateLimiter == nil || limit <= 0 {
		return nil
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = 15 * time.Minute
	}

	return deps.RateLimiter.Limit(middleware.RateLimitRule{
		Name:       name,
		Limit:      limit,
		Window:     window,
		Identifier: middleware.ClientIPIdentifier(),
	})
}
