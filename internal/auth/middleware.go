package auth

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// RequireAuth is a middleware that ensures the user is authenticated
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		userID := session.Get("db_user_id")

		if userID == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		// User is authenticated - set context values for downstream handlers
		c.Set("db_user_id", userID)
		c.Set("user_email", session.Get("user_email"))
		c.Set("user_name", session.Get("user_name"))

		c.Next()
	}
}
