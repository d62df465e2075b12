package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"markket_cms_v1/internal/content"
	"markket_cms_v1/internal/controller"
	"markket_cms_v1/internal/middleware"
	"markket_cms_v1/pkg/metrics"
)

// Controllers 控制器集合
type Controllers struct {
	CMS   *controller.CMSController
	Store *controller.StoreController
	Proxy *controller.ProxyController
}

// Options 路由依赖
type Options struct {
	Auth          middleware.Authenticator
	Registry      *content.Registry
	Metrics       *metrics.Metrics
	ConfigPresent bool

	// UpstreamHealthy 上游巡检结果，为 nil 时 /healthz 不展示
	UpstreamHealthy func() bool
	// Tasks 后台任务状态，为 nil 时 /healthz 不展示
	Tasks func() map[string]any
}

// SetupRouter 创建 gin 引擎并注册所有路由
func SetupRouter(ctls *Controllers, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Metrics(opts.Metrics), middleware.RequestLogger())

	InitRoutes(r, ctls, opts)
	return r
}

// InitRoutes 注册所有路由
func InitRoutes(r *gin.Engine, ctls *Controllers, opts Options) {
	// 1. 运维
	r.GET("/healthz", func(c *gin.Context) {
		status := http.StatusOK
		if !opts.ConfigPresent {
			status = http.StatusServiceUnavailable
		}
		body := gin.H{"ok": opts.ConfigPresent}
		if opts.UpstreamHealthy != nil {
			body["upstream"] = opts.UpstreamHealthy()
		}
		if opts.Tasks != nil {
			body["tasks"] = opts.Tasks()
		}
		c.JSON(status, body)
	})
	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}

	requireConfig := middleware.RequireConfig(opts.ConfigPresent)

	// 2. API 路由组
	api := r.Group("/api/markket")
	{
		// cms 内容管理：配置 -> 内容类型 -> 认证
		cms := api.Group("/cms", requireConfig, middleware.ResolveContentType(opts.Registry), middleware.RequireAuth(opts.Auth))
		{
			cms.GET("", ctls.CMS.Find)
			cms.POST("", ctls.CMS.Create)
			cms.PUT("", ctls.CMS.Update)
			cms.DELETE("", ctls.CMS.Delete)
		}

		// store 店铺管理
		store := api.Group("/store", requireConfig, middleware.RequireAuth(opts.Auth))
		{
			store.GET("", ctls.Store.List)
			store.POST("", ctls.Store.Create)
			store.PUT("", ctls.Store.Update)
			store.GET("/audit", ctls.Store.Audit)
		}

		// 通用代理：token 可选，带了就必须有效
		proxy := api.Group("", requireConfig, middleware.OptionalAuth(opts.Auth))
		for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch} {
			proxy.Handle(method, "", ctls.Proxy.Forward)
		}
	}
}
