package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"videotube/apperror"
	"videotube/service"
)

const (
	ctxUserID   = "userID"
	ctxUsername = "username"
)

// AuthMiddleware JWT认证中间件，支持 Authorization 头和 accessToken cookie
func AuthMiddleware(tokens *service.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			_ = c.Error(apperror.NewUnauthorized("Unauthorized request"))
			c.Abort()
			return
		}

		claims, err := tokens.Parse(tokenString)
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}

		c.Set(ctxUserID, claims.UserID)
		c.Set(ctxUsername, claims.Username)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && scheme == "Bearer" {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if cookie, err := c.Cookie("accessToken"); err == nil {
		return cookie
	}
	return ""
}

// UserID 返回认证后的用户 ID
func UserID(c *gin.Context) (uint, bool) {
	v, ok := c.Get(ctxUserID)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok
}
