package middleware

import (
	"context"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"markket_cms_v1/internal/api/apierr"
	"markket_cms_v1/pkg/logger"
	"markket_cms_v1/pkg/strapi"
)

// Context Keys
const (
	ContextKeyUser = "markket_user"

	// HeaderUserID 上层注入的用户 id，只做比对，不作为身份依据
	HeaderUserID = "markket-user-id"
)

// Authenticator 由 service.AuthService 实现
type Authenticator interface {
	Authenticate(ctx context.Context, authHeader string) (*strapi.User, error)
}

// ==================== Gin 中间件 ====================

// RequireAuth 强制认证：缺失 -> 401 noToken；无效 / 封禁 -> 401 invalidToken
func RequireAuth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := auth.Authenticate(c.Request.Context(), c.GetHeader("Authorization"))
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		setUser(c, user)
		c.Next()
	}
}

// OptionalAuth 可选认证：未带 token 直接放行；带了就必须有效
func OptionalAuth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.TrimSpace(c.GetHeader("Authorization")) == "" {
			c.Next()
			return
		}
		user, err := auth.Authenticate(c.Request.Context(), c.GetHeader("Authorization"))
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		setUser(c, user)
		c.Next()
	}
}

func setUser(c *gin.Context, user *strapi.User) {
	checkUserHeader(c, user)
	c.Set(ContextKeyUser, user)
	c.Request = c.Request.WithContext(WithAuditInfo(c.Request.Context(), user.ID, user.Username))
}

// checkUserHeader 身份以 token 为准；头与 token 不一致时只记录
func checkUserHeader(c *gin.Context, user *strapi.User) {
	claimed := strings.TrimSpace(c.GetHeader(HeaderUserID))
	if claimed == "" {
		return
	}
	if claimed != strconv.FormatInt(user.ID, 10) && claimed != user.DocumentID {
		logger.L().Warnf("[Auth] %s header %q does not match verified user %d (%s %s)",
			HeaderUserID, claimed, user.ID, c.Request.Method, c.Request.URL.Path)
	}
}

// ==================== 辅助函数 ====================

// GetUser 从 Context 获取已认证的用户，未认证返回 nil
func GetUser(c *gin.Context) *strapi.User {
	if v, exists := c.Get(ContextKeyUser); exists {
		if user, isUser := v.(*strapi.User); isUser {
			return user
		}
	}
	return nil
}

// GetUserID 从 Context 获取用户 ID
func GetUserID(c *gin.Context) int64 {
	if user := GetUser(c); user != nil {
		return user.ID
	}
	return 0
}
