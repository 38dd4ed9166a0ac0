package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"gympay/internal/domain"
	"gympay/internal/handler"
	"gympay/internal/middleware"
	"gympay/internal/ratelimit"
)

// RateLimitRules holds the per-route-group limits.
type RateLimitRules struct {
	API     ratelimit.Rule
	Webhook ratelimit.Rule
	Admin   ratelimit.Rule
}

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	PaymentHandler *handler.PaymentHandler
	WebhookHandler *handler.WebhookHandler
	AdminHandler   *handler.AdminHandler
	Authenticator  middleware.Authenticator
	Limiter        ratelimit.Limiter
	Rules          RateLimitRules
	RedisClient    *redis.Client
	NewRelicApp    *newrelic.Application
	Logger         *zap.Logger
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(middleware.RecoveryMiddleware(deps.Logger))
	router.Use(middleware.LoggerMiddleware(deps.Logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORSMiddleware())

	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	limit := func(rule ratelimit.Rule) gin.HandlerFunc {
		if deps.Limiter == nil {
			return passThrough
		}
		return middleware.RateLimitMiddleware(deps.Limiter, rule, deps.Logger)
	}
	var idempotent gin.HandlerFunc = passThrough
	if deps.RedisClient != nil {
		idempotent = middleware.IdempotencyMiddleware(deps.RedisClient, deps.Logger)
	}
	authenticate := middleware.AuthMiddleware(deps.Authenticator)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Stripe authenticates itself with the payload signature.
	router.POST("/payments/webhook", limit(deps.Rules.Webhook), deps.WebhookHandler.Receive)

	payments := router.Group("/payments", authenticate, middleware.NewRelicAttributes(), limit(deps.Rules.API))
	{
		payments.POST("", idempotent, deps.PaymentHandler.Initiate)
		payments.PATCH("", deps.PaymentHandler.Confirm)
		payments.GET("", deps.PaymentHandler.Get)
		payments.GET("/receipt", deps.PaymentHandler.Receipt)
	}

	admin := router.Group("/admin",
		authenticate,
		middleware.RequireRole(domain.RoleAdmin),
		middleware.NewRelicAttributes(),
		limit(deps.Rules.Admin),
		idempotent,
	)
	{
		admin.GET("/payments", deps.AdminHandler.List)
		admin.POST("/payments", deps.AdminHandler.Create)
		admin.PATCH("/payments", deps.AdminHandler.Update)
		admin.DELETE("/payments", deps.AdminHandler.Delete)
	}

	return router
}

func passThrough(c *gin.Context) {
	c.Next()
}
