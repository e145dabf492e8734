package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/Okan-wqm/avinor-sub001/internal/models"
	appErrors "github.com/Okan-wqm/avinor-sub001/pkg/errors"
	"github.com/Okan-wqm/avinor-sub001/pkg/response"
)

// RequireRoles aborts with 403 unless the caller holds one of the roles.
// Requires the JWT middleware earlier in the chain.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	return requireRoles(false, roles...)
}

// RequireRolesOrSelf additionally grants access when the :id path parameter
// matches the caller's own user id, regardless of role.
func RequireRolesOrSelf(roles ...models.UserRole) gin.HandlerFunc {
	return requireRoles(true, roles...)
}

func requireRoles(allowSelf bool, roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(c *gin.Context) {
		claimsValue, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims, ok := claimsValue.(*models.JWTClaims)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		if _, ok := allowed[claims.Role]; ok {
			c.Next()
			return
		}
		if allowSelf {
			if targetID := c.Param("id"); targetID != "" && targetID == claims.UserID {
				c.Next()
				return
			}
		}

		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}
