package httpapi

import (
	"github.com/artelie/backend/internal/logging"
	"github.com/artelie/backend/internal/server/health"
	"github.com/artelie/backend/internal/server/metrics"
	"github.com/artelie/backend/internal/server/ratelimit"
	"github.com/artelie/backend/internal/server/tracing"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// RouterOptions carries the cross-cutting pieces the router mounts.
type RouterOptions struct {
	ServiceName     string
	Logger          logging.Logger
	Readiness       *health.Manager
	Registry        *prometheus.Registry
	RegisterLimiter ratelimit.Limiter
	LoginLimiter    ratelimit.Limiter
}

// NewRouter builds the gin engine with middleware, probes, metrics and the
// /api routes.
func NewRouter(h *Handler, o RouterOptions) *gin.Engine {
	useJSONFieldNames()

	r := gin.New()
	r.Use(RequestID(), Recovery(o.Logger), tracing.Middleware(o.ServiceName), Logger(o.Logger))

	r.GET("/healthz", health.LivenessHandler)
	r.GET("/readyz", health.ReadinessHandler(o.Readiness))
	if o.Registry != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler(o.Registry)))
	}

	api := r.Group("/api")

	register := []gin.HandlerFunc{h.Register}
	if o.RegisterLimiter != nil {
		register = append([]gin.HandlerFunc{RateLimit("register", o.RegisterLimiter, o.Logger)}, register...)
	}
	api.POST("/register", register...)

	login := []gin.HandlerFunc{h.Login}
	if o.LoginLimiter != nil {
		login = append([]gin.HandlerFunc{RateLimit("login", o.LoginLimiter, o.Logger)}, login...)
	}
	api.POST("/login", login...)

	api.GET("/verify-email/:token", h.VerifyEmail)
	api.POST("/resend-verification", h.ResendVerification)
	api.POST("/token/refresh", h.Refresh)
	api.POST("/token/logout", h.Logout)

	authed := api.Group("", h.RequireAuth())
	authed.GET("/profile", h.Profile)

	owner := authed.Group("/users/:id", h.RequireOwnerOrStaff())
	owner.PATCH("", h.UpdateAccount)
	owner.POST("/change-password", h.ChangePassword)
	owner.POST("/deactivate", h.Deactivate)

	verified := authed.Group("/media", h.RequireVerified())
	verified.POST("/uploads", h.PresignUpload)
	verified.GET("/*key", h.MediaRedirect)

	return r
}
