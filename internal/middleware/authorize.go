package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fiftybrains/delivery/internal/models"
)

// RequireRoles lets admins through in addition to the listed roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	roleSet := make(map[models.UserRole]struct{}, len(roles)+1)
	for _, role := range roles {
		roleSet[role] = struct{}{}
	}
	roleSet[models.UserRoleAdmin] = struct{}{}

	return func(c *gin.Context) {
		caller, ok := CurrentCaller(c)
		if !ok {
			abort(c, http.StatusUnauthorized, "unauthorized", "sign in to continue")
			return
		}

		if _, ok := roleSet[caller.Role]; !ok {
			abort(c, http.StatusForbidden, "forbidden", "your role cannot perform this action")
			return
		}

		c.Next()
	}
}
