package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/huangang/teamspace/internal/utils"
	"github.com/huangang/teamspace/pkg/response"
)

const (
	ContextUserID   = "user_id"
	ContextUsername = "username"
)

// AuthRequired checks for a valid JWT in the Authorization header. Browsers
// cannot set headers on a websocket handshake, so the token query parameter
// is accepted as a fallback.
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := extractToken(c)
		if !ok {
			response.Unauthorized(c, "authorization required")
			c.Abort()
			return
		}

		claims, err := utils.ParseToken(tokenString)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUsername, claims.Username)
		c.Next()
	}
}

func extractToken(c *gin.Context) (string, bool) {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		// Extract token from "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			return "", false
		}
		return strings.TrimSpace(parts[1]), true
	}
	if token := c.Query("token"); token != "" {
		return token, true
	}
	return "", false
}

// GetUserID gets the current user ID from context
func GetUserID(c *gin.Context) uint {
	if id, exists := c.Get(ContextUserID); exists {
		if uid, ok := id.(uint); ok {
			return uid
		}
	}
	return 0
}

// GetUsername gets the current username from context
func GetUsername(c *gin.Context) string {
	if username, exists := c.Get(ContextUsername); exists {
		if s, ok := username.(string); ok {
			return s
		}
	}
	return ""
}
