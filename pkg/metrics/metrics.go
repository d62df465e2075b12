package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 进程内所有 Prometheus 指标
// 方法均对 nil 接收者安全，测试中可以不注入
type Metrics struct {
	registry *prometheus.Registry

	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 上游 Strapi
	UpstreamRequestsTotal   *prometheus.CounterVec
	UpstreamRequestDuration *prometheus.HistogramVec

	// 业务
	ContentWritesTotal   *prometheus.CounterVec
	QuotaRejectionsTotal *prometheus.CounterVec
	AuthFailuresTotal    *prometheus.CounterVec
	StoreCacheTotal      *prometheus.CounterVec
}

// NewMetrics 创建并注册全部指标；registry 为 nil 时新建一个
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	m := &Metrics{
		registry: registry,

		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "markket_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "markket_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		UpstreamRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "markket_upstream_requests_total",
				Help: "Total number of requests sent to the CMS upstream",
			},
			[]string{"method", "status"},
		),
		UpstreamRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "markket_upstream_request_duration_seconds",
				Help:    "CMS upstream request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),

		ContentWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "markket_content_writes_total",
				Help: "Content writes forwarded upstream",
			},
			[]string{"content_type", "action", "result"},
		),
		QuotaRejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "markket_quota_rejections_total",
				Help: "Creates rejected because a store reached its limit",
			},
			[]string{"content_type"},
		),
		AuthFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "markket_auth_failures_total",
				Help: "Rejected caller tokens",
			},
			[]string{"reason"},
		),
		StoreCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "markket_store_cache_total",
				Help: "Owned-store list cache lookups",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.UpstreamRequestsTotal,
		m.UpstreamRequestDuration,
		m.ContentWritesTotal,
		m.QuotaRejectionsTotal,
		m.AuthFailuresTotal,
		m.StoreCacheTotal,
	)

	return m
}

// Handler /metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ==================== 记录 ====================

// ObserveHTTP 记录一次入站请求
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveUpstream 记录一次上游请求，status=0 表示网络错误
func (m *Metrics) ObserveUpstream(method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.UpstreamRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.UpstreamRequestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// RecordWrite result: success | failed
func (m *Metrics) RecordWrite(contentType, action, result string) {
	if m == nil {
		return
	}
	m.ContentWritesTotal.WithLabelValues(contentType, action, result).Inc()
}

func (m *Metrics) RecordQuotaRejection(contentType string) {
	if m == nil {
		return
	}
	m.QuotaRejectionsTotal.WithLabelValues(contentType).Inc()
}

// RecordAuthFailure reason: no_token | expired | rejected | blocked
func (m *Metrics) RecordAuthFailure(reason string) {
	if m == nil {
		return
	}
	m.AuthFailuresTotal.WithLabelValues(reason).Inc()
}

// RecordStoreCache result: hit | miss
func (m *Metrics) RecordStoreCache(result string) {
	if m == nil {
		return
	}
	m.StoreCacheTotal.WithLabelValues(result).Inc()
}
