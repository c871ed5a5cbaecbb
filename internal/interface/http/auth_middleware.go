package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/smart-notes/internal/domain/auth"
	apperrors "github.com/yanqian/smart-notes/pkg/errors"
)

// authMiddleware requires a valid access token on every request of the group.
func authMiddleware(svc auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortWithError(c, NewHTTPError(http.StatusUnauthorized, apperrors.CodeInvalidToken, "missing authorization header", nil))
			return
		}
		token, ok := bearerToken(header)
		if !ok {
			abortWithError(c, NewHTTPError(http.StatusUnauthorized, apperrors.CodeInvalidToken, "invalid authorization header", nil))
			return
		}
		claims, err := svc.ValidateToken(c.Request.Context(), token)
		if err != nil {
			abortWithError(c, fromAppError(err))
			return
		}
		setClaims(c, claims)
		c.Next()
	}
}
