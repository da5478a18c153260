package middleware

import (
	"net/http"
	"strings"

	"github.com/Baaaki/deepmatch-realtime/internal/utils"
	"github.com/gin-gonic/gin"
)

const claimsKey = "claims"

// AuthMiddleware accepts "Authorization: Bearer <jwt>" and, for WebSocket
// clients that cannot set headers, a "token" query parameter
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := extractToken(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header required",
				"code":  "unauthorized",
			})
			c.Abort()
			return
		}

		claims, err := utils.ValidateToken(tokenString, jwtSecret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
				"code":  "unauthorized",
			})
			c.Abort()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set(claimsKey, claims)

		c.Next()
	}
}

func extractToken(c *gin.Context) (string, bool) {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader || tokenString == "" {
			return "", false
		}
		return tokenString, true
	}

	if token := c.Query("token"); token != "" {
		return token, true
	}
	return "", false
}

// ClaimsFrom returns the claims stored by AuthMiddleware
func ClaimsFrom(c *gin.Context) (*utils.Claims, bool) {
	value, exists := c.Get(claimsKey)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*utils.Claims)
	return claims, ok
}

func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Unauthorized",
				"code":  "unauthorized",
			})
			c.Abort()
			return
		}

		if !claims.IsAdmin {
			c.JSON(http.StatusForbidden, gin.H{
				"error": "Admin access required",
				"code":  "forbidden",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
