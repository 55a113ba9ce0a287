package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/campus-board/enroll-api/internal/models"
	apperrors "github.com/campus-board/enroll-api/pkg/errors"
	"github.com/campus-board/enroll-api/pkg/response"
)

// ContextUserKey is the gin context key holding the authenticated claims.
const ContextUserKey = "auth_user"

// TokenValidator verifies access tokens.
type TokenValidator interface {
	ValidateToken(token string) (*models.JWTClaims, error)
}

// JWT authenticates requests via a Bearer token. Missing, malformed or
// invalid tokens fail closed with 401.
func JWT(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, apperrors.Clone(apperrors.ErrUnauthorized, "missing authorization header"))
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			response.Error(c, apperrors.Clone(apperrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}

		claims, err := validator.ValidateToken(parts[1])
		if err != nil {
			response.Error(c, apperrors.ErrUnauthorized)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Next()
	}
}

// CurrentClaims extracts the authenticated claims from the context.
func CurrentClaims(c *gin.Context) (*models.JWTClaims, bool) {
	value, ok := c.Get(ContextUserKey)
	if !ok {
		return nil, false
	}
	claims, ok := value.(*models.JWTClaims)
	return claims, ok
}
