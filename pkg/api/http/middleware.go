package http

import (
	"github.com/gin-gonic/gin"
)

const userIDKey = "user_id"

// userIdentity resolves the caller identity used for owner scoping.
// Callers without an X-User-ID header share the anonymous scope.
func userIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-User-ID")
		if id == "" {
			id = "anonymous"
		}
		c.Set(userIDKey, id)
		c.Next()
	}
}

// userID returns the resolved caller identity for a request.
func userID(c *gin.Context) string {
	if id, ok := c.Get(userIDKey); ok {
		if s, ok := id.(string); ok && s != "" {
			return s
		}
	}
	return "anonymous"
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, X-User-ID, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
