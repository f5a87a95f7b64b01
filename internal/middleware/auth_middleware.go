package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/rail-reservation-backend/internal/utils"
	"github.com/smarttransit/rail-reservation-backend/pkg/jwt"
)

// UserContextKey is the key used to store user information in Gin context
const UserContextKey = "user"

// UserContext represents the authenticated order owner
type UserContext struct {
	UserID uuid.UUID `json:"user_id"`
	Roles  []string  `json:"roles"`
}

// HasRole reports whether the user carries any of roles
func (u UserContext) HasRole(roles ...string) bool {
	for _, required := range roles {
		for _, have := range u.Roles {
			if have == required {
				return true
			}
		}
	}
	return false
}

func abortUnauthorized(c *gin.Context, errKey, message, code string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":   errKey,
		"message": message,
		"code":    code,
	})
}

// AuthMiddleware creates a middleware that validates JWT bearer tokens
func AuthMiddleware(jwtService *jwt.Service, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		entry := logger.WithFields(logrus.Fields{
			"path": c.Request.URL.Path,
			"ip":   utils.GetRealIP(c),
		})

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			entry.Warn("Auth failed: missing authorization header")
			abortUnauthorized(c, "unauthorized", "Authorization header is required", "MISSING_AUTH_HEADER")
			return
		}

		// Check Bearer token format
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			entry.Warn("Auth failed: invalid authorization format")
			abortUnauthorized(c, "unauthorized", "Invalid authorization header format. Expected: Bearer <token>", "INVALID_AUTH_FORMAT")
			return
		}

		tokenString := strings.TrimSpace(parts[1])
		if tokenString == "" {
			entry.Warn("Auth failed: empty token")
			abortUnauthorized(c, "unauthorized", "Token cannot be empty", "INVALID_AUTH_FORMAT")
			return
		}

		claims, err := jwtService.ValidateAccessToken(tokenString)
		if err != nil {
			if jwtService.IsTokenExpired(tokenString) {
				entry.WithError(err).Warn("Auth failed: token expired")
				abortUnauthorized(c, "token_expired", "Access token has expired", "TOKEN_EXPIRED")
			} else {
				entry.WithError(err).Warn("Auth failed: invalid token")
				abortUnauthorized(c, "invalid_token", "Invalid access token", "INVALID_TOKEN")
			}
			return
		}

		c.Set(UserContextKey, UserContext{
			UserID: claims.UserID,
			Roles:  claims.Roles,
		})
		// Picked up by the request logger
		c.Set("user_id", claims.UserID.String())

		c.Next()
	}
}

// RequireRole creates a middleware that checks if user has required role
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userCtx, exists := GetUserContext(c)
		if !exists {
			abortUnauthorized(c, "unauthorized", "User context not found. Auth middleware may not be applied.", "MISSING_USER_CONTEXT")
			return
		}

		if !userCtx.HasRole(roles...) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "You don't have permission to access this resource",
				"code":    "INSUFFICIENT_PERMISSIONS",
			})
			return
		}

		c.Next()
	}
}

// GetUserContext retrieves the user context from Gin context
func GetUserContext(c *gin.Context) (UserContext, bool) {
	value, exists := c.Get(UserContextKey)
	if !exists {
		return UserContext{}, false
	}

	userCtx, ok := value.(UserContext)
	if !ok {
		return UserContext{}, false
	}

	return userCtx, true
}

// MustGetUserContext retrieves the user context or panics (use only after AuthMiddleware)
func MustGetUserContext(c *gin.Context) UserContext {
	userCtx, exists := GetUserContext(c)
	if !exists {
		panic("user context not found - ensure AuthMiddleware is applied")
	}
	return userCtx
}
