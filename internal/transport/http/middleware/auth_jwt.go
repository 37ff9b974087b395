package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"animehub/internal/domain"
	"animehub/internal/transport/http/ez"
	resp "animehub/internal/transport/http/response"
)

// Authenticator resolves a bearer token to a live, non-banned user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.User, error)
}

func AuthJWT(a Authenticator, requireRole domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		ah := c.GetHeader("Authorization")
		if !strings.HasPrefix(ah, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusOK, resp.Error(resp.CodeUnauthorized, "missing token"))
			return
		}
		token := strings.TrimPrefix(ah, "Bearer ")
		u, err := a.Authenticate(c.Request.Context(), token)
		switch {
		case errors.Is(err, domain.ErrAccountBanned):
			c.AbortWithStatusJSON(http.StatusOK, resp.Error(resp.CodeForbidden, err.Error()))
			return
		case err != nil:
			c.AbortWithStatusJSON(http.StatusOK, resp.Error(resp.CodeUnauthorized, "invalid token"))
			return
		}
		if requireRole != "" && u.Role != requireRole {
			c.AbortWithStatusJSON(http.StatusOK, resp.Error(resp.CodeForbidden, "forbidden"))
			return
		}
		c.Set(ez.KeyUserID, u.ID)
		c.Set(ez.KeyRole, string(u.Role))
		c.Set(ez.KeyUser, u)
		c.Set(ez.KeyToken, token)
		c.Next()
	}
}
