package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/campus-board/enroll-api/internal/models"
	apperrors "github.com/campus-board/enroll-api/pkg/errors"
	"github.com/campus-board/enroll-api/pkg/response"
)

// RBAC allows only the listed roles through. It must run after JWT; a
// request without claims fails closed with 401.
func RBAC(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(c *gin.Context) {
		claims, ok := CurrentClaims(c)
		if !ok {
			response.Error(c, apperrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, apperrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
