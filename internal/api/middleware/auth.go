package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Marga-Ghale/powerline-backend/internal/logging"
	"github.com/Marga-Ghale/powerline-backend/internal/service"
	"github.com/gin-gonic/gin"
)

const userIDKey = "userID"

// AuthMiddleware resolves the bearer token to a user id and stores it on the
// gin context and the request logger.
func AuthMiddleware(authService service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logging.FromContext(c.Request.Context())

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			log.Debug("Missing Authorization header")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required", "code": "unauthorized"})
			return
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			log.Debug("Invalid authorization header format")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format", "code": "unauthorized"})
			return
		}

		userID, err := authService.UserIDFromToken(strings.TrimSpace(token))
		if err != nil {
			log.WithError(err).Debug("Rejected bearer token")
			msg := "Invalid token"
			if errors.Is(err, service.ErrTokenExpired) {
				msg = "Token expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg, "code": "unauthorized"})
			return
		}

		c.Set(userIDKey, userID)
		c.Request = c.Request.WithContext(logging.WithLogger(c.Request.Context(), log.WithField("user_id", userID)))
		c.Next()
	}
}

// RequireAdmin rejects callers whose account is not an admin. It must run
// after AuthMiddleware.
func RequireAdmin(userService service.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := RequireUserID(c)
		if !ok {
			c.Abort()
			return
		}

		isAdmin, err := userService.IsAdmin(c.Request.Context(), userID)
		if err != nil && !errors.Is(err, service.ErrUserNotFound) {
			logging.FromContext(c.Request.Context()).WithError(err).Error("Failed to check admin role")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "code": "internal"})
			return
		}
		if !isAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required", "code": "forbidden"})
			return
		}
		c.Next()
	}
}

// GetUserID extracts user ID from gin context
func GetUserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// RequireUserID returns error if user ID is not in context
func RequireUserID(c *gin.Context) (string, bool) {
	userID := GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated", "code": "unauthorized"})
		return "", false
	}
	return userID, true
}
