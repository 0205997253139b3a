package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LaithMimi/blendarchatbot2/pkg/logger"
	"github.com/LaithMimi/blendarchatbot2/services"
)

const identityKey = "identity"

// IdentityResolver turns an Authorization header into the caller
type IdentityResolver interface {
	Resolve(ctx context.Context, authorization string) (services.Identity, error)
}

// Auth rejects unauthenticated requests with 401 before any handler runs
func Auth(resolver IdentityResolver) gin.HandlerFunc {
	log := logger.GetLogger("auth")

	return func(c *gin.Context) {
		id, err := resolver.Resolve(c.Request.Context(), c.GetHeader("Authorization"))
		if err != nil {
			log.WarnWithFieldsCtx(c.Request.Context(), "Authentication failed", map[string]interface{}{
				"path":  c.Request.URL.Path,
				"error": err.Error(),
			})
			if errors.Is(err, services.ErrCredentialExpired) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token expired", "code": "token_expired"})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or missing authentication token"})
			return
		}

		c.Set(identityKey, id)
		c.Next()
	}
}

// RequireAdmin allows only admin identities; it must run after Auth
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := GetIdentity(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or missing authentication token"})
			return
		}
		if !id.Admin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			return
		}
		c.Next()
	}
}

// GetIdentity returns the caller stored by Auth
func GetIdentity(c *gin.Context) (services.Identity, bool) {
	v, exists := c.Get(identityKey)
	if !exists {
		return services.Identity{}, false
	}
	id, ok := v.(services.Identity)
	return id, ok
}
