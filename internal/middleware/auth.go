// Package middleware provides Gin HTTP middleware for authentication, rate
// limiting, security headers, request IDs, metrics, and request logging.
//
// Ordering is enforced in internal/api/router.go:
//
//	Recovery → RequestID → Metrics → Logger → Security → RateLimit → Auth → Handler
//
// Rate limiting runs before auth so brute-force attempts are rejected before
// any database work.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/qr-tracker/qr-tracker/internal/auth"
	"github.com/qr-tracker/qr-tracker/internal/db/models"
)

// Context keys set by AuthMiddleware
const (
	UserKey   = "user"
	UserIDKey = "user_id"
)

// UserLookup loads the user named by a token's subject
type UserLookup interface {
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
}

// bearerToken extracts the token from an Authorization header. The returned
// message is non-empty when the header is unusable.
func bearerToken(header string) (token, problem string) {
	if header == "" {
		return "", "Missing authorization header"
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return "", "Authorization header must start with 'Bearer '"
	}
	token = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", "Authorization token is empty"
	}
	return token, ""
}

// AuthMiddleware requires a valid bearer JWT whose user still exists
func AuthMiddleware(users UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, problem := bearerToken(c.GetHeader("Authorization"))
		if problem != "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": problem})
			return
		}

		claims, err := auth.ValidateJWT(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		user, err := users.GetUserByID(c.Request.Context(), claims.UserID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to load user"})
			return
		}
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "User not found"})
			return
		}

		c.Set(UserKey, user)
		c.Set(UserIDKey, user.ID)
		c.Next()
	}
}

// OptionalAuthMiddleware sets the user when a valid bearer token is present and
// otherwise lets the request through anonymously.
func OptionalAuthMiddleware(users UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, problem := bearerToken(c.GetHeader("Authorization"))
		if problem == "" {
			if claims, err := auth.ValidateJWT(token); err == nil {
				if user, err := users.GetUserByID(c.Request.Context(), claims.UserID); err == nil && user != nil {
					c.Set(UserKey, user)
					c.Set(UserIDKey, user.ID)
				}
			}
		}
		c.Next()
	}
}

// RequireAdmin aborts with 403 unless AuthMiddleware stored an admin user
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if user := CurrentUser(c); user == nil || !user.IsAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			return
		}
		c.Next()
	}
}

// CurrentUser returns the authenticated user, or nil
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(UserKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}
