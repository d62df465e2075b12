package net

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Observer 上游调用观测回调 (metrics 等)
type Observer interface {
	ObserveUpstream(method string, status int, elapsed time.Duration)
}

// Dispatcher 网络调度器 (通用组件)
// 所有上游流量 (resty 客户端 + 原始转发) 共用同一个 Transport
type Dispatcher interface {
	// Send 发送 HTTP 请求，不做重试；调用方负责关闭 Body
	Send(ctx context.Context, req *http.Request) (*http.Response, error)

	// Client 共享的 http.Client，供 resty 等上层客户端复用连接池
	Client() *http.Client
}

// Options 调度器配置
type Options struct {
	Timeout  time.Duration // 单次请求超时，0 表示不限
	ProxyURL string        // 出口代理 (可选)
	Observer Observer
}

// httpDispatcher 是 Dispatcher 接口的具体实现
// 注意：它是私有的，外部只能通过 NewDispatcher 获取接口
type httpDispatcher struct {
	client *http.Client
}

var _ Dispatcher = (*httpDispatcher)(nil)

func NewDispatcher(opts Options) (Dispatcher, error) {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
	}

	if opts.ProxyURL != "" {
		proxyURL, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid egress proxy %q: %w", opts.ProxyURL, err)
		}
		tr.Proxy = http.ProxyURL(proxyURL)
	}

	var rt http.RoundTripper = tr
	if opts.Observer != nil {
		rt = &observedTransport{next: tr, observer: opts.Observer}
	}

	return &httpDispatcher{
		client: &http.Client{
			Transport: rt,
			Timeout:   opts.Timeout,
		},
	}, nil
}

// Send 发送 HTTP 请求
// ctx 取消 (客户端断开) 会直接中断上游请求
func (d *httpDispatcher) Send(ctx context.Context, req *http.Request) (*http.Response, error) {
	if ctx != nil {
		req = req.WithContext(ctx)
	}
	return d.client.Do(req)
}

func (d *httpDispatcher) Client() *http.Client {
	return d.client
}

// ==================== 观测 ====================

type observedTransport struct {
	next     http.RoundTripper
	observer Observer
}

func (t *observedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(req)

	// 0 表示未拿到响应 (网络错误 / 超时)
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	t.observer.ObserveUpstream(req.Method, status, time.Since(start))

	return resp, err
}
