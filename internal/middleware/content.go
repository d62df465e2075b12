package middleware

import (
	"github.com/gin-gonic/gin"

	"markket_cms_v1/internal/api/apierr"
	"markket_cms_v1/internal/content"
)

const ContextKeyContentType = "markket_content_type"

// RequireConfig 上游地址或管理员凭证缺失时直接返回 missingConfig
func RequireConfig(present bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !present {
			apierr.Respond(c, apierr.MissingConfig())
			return
		}
		c.Next()
	}
}

// ResolveContentType 解析 contentType 参数，未知类型在任何上游调用之前返回 400
func ResolveContentType(registry *content.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		desc, found := registry.Lookup(c.Query("contentType"))
		if !found {
			apierr.Respond(c, apierr.InvalidContentType(registry.Names()...))
			return
		}
		c.Set(ContextKeyContentType, desc)
		c.Next()
	}
}

// GetContentType 获取已解析的内容类型
func GetContentType(c *gin.Context) *content.Descriptor {
	if v, exists := c.Get(ContextKeyContentType); exists {
		if d, isDesc := v.(*content.Descriptor); isDesc {
			return d
		}
	}
	return nil
}
