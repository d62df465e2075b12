package controller

import (
	"github.com/gin-gonic/gin"

	"markket_cms_v1/internal/api/apierr"
	"markket_cms_v1/internal/service"
)

type ProxyController struct {
	proxyService *service.ProxyService
}

func NewProxyController(proxyService *service.ProxyService) *ProxyController {
	return &ProxyController{proxyService: proxyService}
}

// Forward 通用代理
// ANY /api/markket?path=<上游路径>，其余查询参数原样转发
func (h *ProxyController) Forward(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		apierr.Respond(c, apierr.MissingPath())
		return
	}

	res, err := h.proxyService.Forward(c.Request.Context(), service.ForwardRequest{
		Method:      c.Request.Method,
		Path:        path,
		RawQuery:    c.Request.URL.RawQuery,
		ContentType: c.GetHeader("Content-Type"),
		Body:        c.Request.Body,
	})
	if err != nil {
		apierr.Respond(c, err)
		return
	}

	writeResult(c, res)
}

// writeResult 透传上游状态码和 JSON；空响应体只写状态码
func writeResult(c *gin.Context, res *service.Result) {
	if len(res.Body) == 0 {
		c.Status(res.Status)
		return
	}
	c.Data(res.Status, "application/json; charset=utf-8", res.Body)
}
