package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"fiftybrains/delivery/internal/models"
	"fiftybrains/delivery/internal/security"
)

const (
	accessClaimsKey = "access_claims"
	currentUserKey  = "current_user"
)

// Auth verifies the bearer token issued by the marketplace and stores the
// caller on the context.
func Auth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			abort(c, http.StatusUnauthorized, "missing_token", "sign in to continue")
			return
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := security.ParseAccessToken(tokenStr, jwtSecret)
		if err != nil {
			abort(c, http.StatusUnauthorized, "invalid_token", "your session is invalid or expired")
			return
		}

		role := models.UserRole(claims.Role)
		switch role {
		case models.UserRoleCreator, models.UserRoleBrand, models.UserRoleAdmin:
		default:
			abort(c, http.StatusForbidden, "unknown_role", "your account cannot use deliveries")
			return
		}

		c.Set(accessClaimsKey, *claims)
		c.Set(currentUserKey, models.Caller{UserID: claims.UserID, Role: role})

		c.Next()
	}
}

func CurrentCaller(c *gin.Context) (models.Caller, bool) {
	val, exists := c.Get(currentUserKey)
	if !exists {
		return models.Caller{}, false
	}
	caller, ok := val.(models.Caller)
	return caller, ok
}
