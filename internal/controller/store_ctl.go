package controller

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"markket_cms_v1/internal/api/apierr"
	"markket_cms_v1/internal/content"
	"markket_cms_v1/internal/middleware"
	"markket_cms_v1/internal/service"
)

// StoreController /api/markket/store
type StoreController struct {
	storeService *service.StoreService
}

func NewStoreController(storeService *service.StoreService) *StoreController {
	return &StoreController{storeService: storeService}
}

// List 调用方拥有的店铺
func (h *StoreController) List(c *gin.Context) {
	stores, err := h.storeService.ListOwnedStores(c.Request.Context(), middleware.GetUser(c))
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": stores})
}

// Create body {store: {...}}
func (h *StoreController) Create(c *gin.Context) {
	payload, err := bindPayload(c, string(content.KindStore))
	if err != nil {
		apierr.Respond(c, err)
		return
	}

	data, err := h.storeService.CreateStore(c.Request.Context(), middleware.GetUser(c), payload)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": data})
}

// Update ?id=<documentId> body {store: {...}}
func (h *StoreController) Update(c *gin.Context) {
	payload, err := bindPayload(c, string(content.KindStore))
	if err != nil {
		apierr.Respond(c, err)
		return
	}

	data, err := h.storeService.UpdateStore(c.Request.Context(), middleware.GetUser(c), c.Query("id"), payload)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": data})
}

// Audit 店铺写操作记录及汇总
// ?storeId=&contentType=&page=&page_size=&since=RFC3339
func (h *StoreController) Audit(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	q := service.AuditQuery{
		StoreID:     c.Query("storeId"),
		ContentType: c.Query("contentType"),
		Page:        page,
		PageSize:    pageSize,
	}
	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			apierr.Respond(c, apierr.ValidationFailed("since must be an RFC3339 timestamp"))
			return
		}
		q.Since = since
	}

	res, err := h.storeService.AuditTrail(c.Request.Context(), middleware.GetUser(c), q)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
