package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gympay/internal/auth"
	"gympay/internal/domain"
)

const principalKey = "principal"

// Authenticator verifies a bearer credential.
type Authenticator interface {
	Verify(credential string) (*domain.Principal, error)
}

// AuthMiddleware rejects requests without a valid bearer token and stores
// the caller principal on the context.
func AuthMiddleware(authenticator Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := authenticator.Verify(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   auth.ErrUnauthorized.Error(),
			})
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

// RequireRole rejects authenticated callers whose role is not in roles.
func RequireRole(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := Principal(c)
		if principal == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   auth.ErrUnauthorized.Error(),
			})
			return
		}

		for _, role := range roles {
			if principal.Role == role {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"success": false,
			"error":   auth.ErrForbidden.Error(),
		})
	}
}

// Principal returns the authenticated caller, or nil.
func Principal(c *gin.Context) *domain.Principal {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil
	}
	principal, _ := v.(*domain.Principal)
	return principal
}

// PrincipalID returns the authenticated caller id, or "".
func PrincipalID(c *gin.Context) string {
	if p := Principal(c); p != nil {
		return p.ID
	}
	return ""
}
