package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tokicard/waitlist/internal/security"
)

// contextUserIDKey is the gin context key holding the authenticated user ID.
const contextUserIDKey = "auth_user_id"

// UserAuthMiddleware validates the bearer token and stashes the user ID in
// the request context.
func UserAuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		claims, errParse := security.ParseToken(jwtSecret, token)
		if errParse != nil || claims.Role != security.RoleUser {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		c.Set(contextUserIDKey, claims.Subject)
		c.Next()
	}
}

// AuthedUserID returns the user ID stashed by UserAuthMiddleware.
func AuthedUserID(c *gin.Context) uint64 {
	id, _ := c.Get(contextUserIDKey)
	userID, _ := id.(uint64)
	return userID
}

func bearerToken(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
