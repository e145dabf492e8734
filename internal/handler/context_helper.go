package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/Okan-wqm/avinor-sub001/internal/middleware"
	"github.com/Okan-wqm/avinor-sub001/internal/models"
)

// claimsFromContext returns the JWT claims set by the auth middleware, or
// nil when the request is unauthenticated.
func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	if claims, ok := value.(*models.JWTClaims); ok {
		return claims
	}
	return nil
}
