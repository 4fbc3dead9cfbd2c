package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"splitshifts/internal/service"
)

// RouterDeps reúne lo que NewRouter necesita para montar las rutas.
type RouterDeps struct {
	Auth        *AuthHandler
	Account     *AccountHandler
	JWT         *service.JWTService
	Guard       *service.SessionGuard
	RateLimiter *IPRateLimiter
	Metrics     http.Handler
	Health      func(*gin.Context) error
}

// NewRouter configura el router de Gin con middlewares y rutas.
func NewRouter(logger *zap.Logger, deps RouterDeps) *gin.Engine {
	r := gin.New()

	// Middlewares basicos: logging, recovery y JSON content-type.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		if deps.Health != nil {
			if err := deps.Health(c); err != nil {
				logger.Warn("health check failed", zap.Error(err))
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	api := r.Group("", jsonContentTypeMiddleware())
	if deps.RateLimiter != nil {
		api.Use(deps.RateLimiter.Middleware())
	}

	auth := api.Group("/auth", OptionalSession(deps.JWT, deps.Guard, logger))
	auth.POST("/register", deps.Auth.Register)
	auth.POST("/verification/send", deps.Auth.SendVerification)
	auth.POST("/verification/verify", deps.Auth.VerifyEmail)
	auth.POST("/password-reset/request", deps.Auth.RequestPasswordReset)
	auth.GET("/password-reset/validate", deps.Auth.ValidateResetToken)
	auth.POST("/password-reset/complete", deps.Auth.CompletePasswordReset)
	auth.POST("/login/preflight", deps.Auth.Preflight)
	auth.POST("/login", deps.Auth.Login)
	auth.POST("/refresh", deps.Auth.RefreshToken)
	auth.POST("/logout", deps.Auth.Logout)

	me := api.Group("/me", RequireSession(deps.JWT, deps.Guard, logger))
	me.GET("", deps.Account.Me)
	me.POST("/password", deps.Account.ChangePassword)
	me.POST("/2fa/enroll", deps.Account.BeginTwoFactor)
	me.POST("/2fa/confirm", deps.Account.ConfirmTwoFactor)
	me.POST("/2fa/disable", deps.Account.DisableTwoFactor)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
