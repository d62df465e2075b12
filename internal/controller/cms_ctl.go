package controller

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"markket_cms_v1/internal/api/apierr"
	"markket_cms_v1/internal/content"
	"markket_cms_v1/internal/middleware"
	"markket_cms_v1/internal/service"
)

// CMSController /api/markket/cms
// 路由上已挂 RequireConfig -> ResolveContentType -> RequireAuth
type CMSController struct {
	cmsService *service.CMSService
}

func NewCMSController(cmsService *service.CMSService) *CMSController {
	return &CMSController{cmsService: cmsService}
}

// ==========================================
// 1. 写操作 (Create / Update / Delete)
// ==========================================

// Create POST ?contentType=&storeId= body {<contentType>: {...}}
func (h *CMSController) Create(c *gin.Context) {
	req, ok := h.writeRequest(c, true)
	if !ok {
		return
	}

	data, err := h.cmsService.Create(c.Request.Context(), req)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": data})
}

// Update PUT ?contentType=&id=&storeId=&albumId=
func (h *CMSController) Update(c *gin.Context) {
	req, ok := h.writeRequest(c, true)
	if !ok {
		return
	}

	data, err := h.cmsService.Update(c.Request.Context(), req)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": data})
}

// Delete DELETE ?contentType=&id=&storeId=
func (h *CMSController) Delete(c *gin.Context) {
	req, ok := h.writeRequest(c, false)
	if !ok {
		return
	}

	if err := h.cmsService.Delete(c.Request.Context(), req); err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ==========================================
// 2. 读操作
// ==========================================

// Find GET ?contentType=&id=&storeId=，其余参数 (populate / sort / pagination) 透传
func (h *CMSController) Find(c *gin.Context) {
	query := url.Values{}
	for k, v := range c.Request.URL.Query() {
		switch k {
		case "contentType", "id", "storeId":
			continue
		}
		query[k] = v
	}

	res, err := h.cmsService.Find(c.Request.Context(), service.FindRequest{
		User:    middleware.GetUser(c),
		Desc:    middleware.GetContentType(c),
		ID:      c.Query("id"),
		StoreID: c.Query("storeId"),
		Query:   query,
	})
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	writeResult(c, res)
}

// ==========================================
// 辅助方法
// ==========================================

func (h *CMSController) writeRequest(c *gin.Context, withBody bool) (service.WriteRequest, bool) {
	desc := middleware.GetContentType(c)
	req := service.WriteRequest{
		User:    middleware.GetUser(c),
		Desc:    desc,
		ID:      c.Query("id"),
		StoreID: c.Query("storeId"),
		AlbumID: c.Query("albumId"),
	}
	if !withBody {
		return req, true
	}

	payload, err := bindPayload(c, string(desc.Kind))
	if err != nil {
		apierr.Respond(c, err)
		return req, false
	}
	req.Payload = payload
	return req, true
}

// bindPayload 请求体形如 {<key>: {...}}
func bindPayload(c *gin.Context, key string) (content.Payload, error) {
	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		return nil, apierr.ValidationFailed("Invalid request body")
	}
	payload, isObject := body[key].(map[string]any)
	if !isObject {
		return nil, apierr.MissingFields()
	}
	return payload, nil
}
