package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/alexcool68/ST-backend/internal/model"
	"github.com/alexcool68/ST-backend/internal/pkg/token"

	"github.com/gin-gonic/gin"
)

// 上下文键，存放已解析的当前用户。
const userKey = "currentUser"

// SessionVerifier 校验会话令牌。
type SessionVerifier interface {
	VerifySession(signed string) (*token.Claims, error)
}

// UserResolver 按 ID 解析用户。
type UserResolver interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

func abortUnauthorized(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, gin.H{"status": "error", "error": "unauthorized"})
	c.Abort()
}

// Authenticated 校验 Bearer 会话令牌并把用户写入上下文。
//
// 令牌有效但用户已被删除时同样返回 401，写入的用户不含密码散列。
func Authenticated(verifier SessionVerifier, users UserResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortUnauthorized(c)
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abortUnauthorized(c)
			return
		}

		claims, err := verifier.VerifySession(parts[1])
		if err != nil {
			abortUnauthorized(c)
			return
		}

		user, err := users.FindByID(c.Request.Context(), claims.Subject)
		if err != nil {
			abortUnauthorized(c)
			return
		}

		c.Set(userKey, user.Sanitize())
		c.Next()
	}
}

// RequireRoles 要求当前用户至少持有给定角色之一，否则 403。
//
// 必须挂在 Authenticated 之后。
func RequireRoles(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			abortUnauthorized(c)
			return
		}
		if !user.HasAnyRole(roles...) {
			c.JSON(http.StatusForbidden, gin.H{"status": "error", "error": "forbidden"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// CurrentUser 返回 Authenticated 写入的当前用户。
func CurrentUser(c *gin.Context) (*model.User, bool) {
	v, ok := c.Get(userKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*model.User)
	return user, ok
}
