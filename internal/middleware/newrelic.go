package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
)

// NewRelicAttributes tags the current New Relic transaction with the caller.
// It must run after nrgin.Middleware and AuthMiddleware.
func NewRelicAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		txn := nrgin.Transaction(c)
		if txn == nil {
			c.Next()
			return
		}

		if principal := Principal(c); principal != nil {
			txn.AddAttribute("principal.id", principal.ID)
			txn.AddAttribute("principal.role", string(principal.Role))
		}
		if key := c.GetHeader(idempotencyHeader); key != "" {
			txn.AddAttribute("idempotency.key", key)
		}

		c.Next()

		for _, err := range c.Errors {
			txn.NoticeError(err.Err)
		}
	}
}
