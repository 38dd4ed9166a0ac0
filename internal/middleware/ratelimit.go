package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"gympay/internal/ratelimit"
)

// RateLimitMiddleware enforces rule per caller and route before the handler
// runs. Authenticated callers are keyed by principal id, others by client IP.
// A limiter outage lets the request through.
func RateLimitMiddleware(limiter ratelimit.Limiter, rule ratelimit.Rule, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := rateLimitKey(c)

		res, err := limiter.Check(c.Request.Context(), key, rule.Limit, rule.Window)
		if err != nil {
			logger.Warn("rate limiter unavailable", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", cast.ToString(res.Limit))
		c.Header("X-RateLimit-Remaining", cast.ToString(res.Remaining))
		c.Header("X-RateLimit-Reset", cast.ToString(res.ResetTime.Unix()))

		if !res.Allowed {
			retryAfter := res.RetryAfter(time.Now())
			c.Header("Retry-After", cast.ToString(int64(retryAfter/time.Second)))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success":    false,
				"error":      "too many requests",
				"retryAfter": int64(retryAfter / time.Second),
			})
			return
		}

		c.Next()
	}
}

func rateLimitKey(c *gin.Context) string {
	route := strings.ReplaceAll(c.FullPath(), "/", "-")
	if id := PrincipalID(c); id != "" {
		return "user:" + id + ":" + c.Request.Method + route
	}
	return "ip:" + c.ClientIP() + ":" + c.Request.Method + route
}
