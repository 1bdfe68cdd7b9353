package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/scholarship-api/internal/models"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
	"github.com/noah-isme/scholarship-api/pkg/response"
)

// RequireRoles only lets callers holding one of roles through.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		claims := CurrentClaims(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[claims.Role]; ok {
			c.Next()
			return
		}
		// SUPERADMIN passes every role gate.
		if claims.Role == models.RoleSuperAdmin {
			c.Next()
			return
		}
		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}

// Staff covers every role allowed to act on applications.
func Staff() gin.HandlerFunc {
	return RequireRoles(models.RoleAdmin, models.RoleOfficer, models.RoleReviewer, models.RoleSystem)
}

// Administrators gates overrides and destructive actions.
func Administrators() gin.HandlerFunc {
	return RequireRoles(models.RoleAdmin)
}
