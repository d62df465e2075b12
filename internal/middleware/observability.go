package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"markket_cms_v1/pkg/logger"
	"markket_cms_v1/pkg/metrics"
)

// RequestLogger 请求日志 (zap)
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []interface{}{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if id := GetUserID(c); id > 0 {
			fields = append(fields, "user_id", id)
		}

		switch {
		case status >= 500:
			logger.L().Errorw("[HTTP] request", fields...)
		case status >= 400:
			logger.L().Warnw("[HTTP] request", fields...)
		default:
			logger.L().Infow("[HTTP] request", fields...)
		}
	}
}

// Metrics 按路由模板统计请求数和耗时
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveHTTP(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
