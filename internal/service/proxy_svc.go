package service

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"markket_cms_v1/internal/api/apierr"
	"markket_cms_v1/pkg/logger"
	pkgnet "markket_cms_v1/pkg/net"
)

// ProxyService 通用上游代理：所有请求统一使用管理员凭证
type ProxyService struct {
	dispatcher pkgnet.Dispatcher
	baseURL    string
	adminKey   string
}

func NewProxyService(dispatcher pkgnet.Dispatcher, baseURL, adminKey string) *ProxyService {
	return &ProxyService{
		dispatcher: dispatcher,
		baseURL:    strings.TrimRight(baseURL, "/"),
		adminKey:   adminKey,
	}
}

// ForwardRequest 待转发的请求
type ForwardRequest struct {
	Method      string
	Path        string    // 上游路径，如 /api/articles
	RawQuery    string    // 原始查询串 (含 path 参数，转发时剔除)
	ContentType string
	Body        io.Reader
}

// Forward 转发到上游并原样返回状态码和 JSON
func (s *ProxyService) Forward(ctx context.Context, req ForwardRequest) (*Result, error) {
	// 1. 组装目标地址：path 自带的查询串与其余参数合并
	path, pathQuery := splitProxyPath(req.Path)
	if path == "" {
		return nil, apierr.MissingPath()
	}
	target := s.baseURL + "/" + path
	if q := joinQuery(pathQuery, stripQueryParam(req.RawQuery, "path")); q != "" {
		target += "?" + q
	}

	// 2. 请求体
	body, contentType, err := s.prepareBody(req)
	if err != nil {
		logger.L().Warnf("[Proxy] %s %s rejected: %v", req.Method, req.Path, err)
		return nil, apierr.ProxyError()
	}

	httpReq, err := pkgnet.BuildUpstreamRequest(ctx, req.Method, target, body, contentType, s.adminKey)
	if err != nil {
		logger.L().Errorf("[Proxy] build request failed: %v", err)
		return nil, apierr.ProxyError()
	}

	// 3. 发送
	resp, err := s.dispatcher.Send(ctx, httpReq)
	if err != nil {
		logger.L().Errorf("[Proxy] %s %s failed: %v", req.Method, req.Path, err)
		return nil, apierr.ProxyError()
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.L().Errorf("[Proxy] read response failed: %v", err)
		return nil, apierr.ProxyError()
	}

	// 4. 只透传 JSON (空响应体只带状态码)
	if len(bytes.TrimSpace(raw)) > 0 && !json.Valid(raw) {
		logger.L().Errorf("[Proxy] %s %s returned non-JSON body (status %d)", req.Method, req.Path, resp.StatusCode)
		return nil, apierr.ProxyError()
	}
	return &Result{Status: resp.StatusCode, Body: raw}, nil
}

// prepareBody multipart 原样透传 (保留 boundary)；其他请求体按 JSON 发送；GET/HEAD 不带请求体
func (s *ProxyService) prepareBody(req ForwardRequest) (io.Reader, string, error) {
	if req.Method == http.MethodGet || req.Method == http.MethodHead || req.Body == nil {
		return nil, "", nil
	}

	if isMultipart(req.ContentType) {
		return req.Body, req.ContentType, nil
	}

	raw, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, "", err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, "", nil
	}
	if !json.Valid(raw) {
		return nil, "", errInvalidJSONBody
	}
	return bytes.NewReader(raw), "application/json", nil
}

type proxyError string

func (e proxyError) Error() string { return string(e) }

const errInvalidJSONBody = proxyError("request body is not valid JSON")

func isMultipart(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "multipart/form-data"
}

// stripQueryParam 删除指定参数，其余参数保持原始顺序和编码
// splitProxyPath 拆出 path 参数中的查询串，丢弃 fragment
func splitProxyPath(raw string) (path, rawQuery string) {
	raw, _, _ = strings.Cut(strings.TrimSpace(raw), "#")
	path, rawQuery, _ = strings.Cut(raw, "?")
	return strings.TrimLeft(path, "/"), rawQuery
}

func joinQuery(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.Trim(p, "&"); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "&")
}

func stripQueryParam(rawQuery, name string) string {
	if rawQuery == "" {
		return ""
	}
	parts := strings.Split(rawQuery, "&")
	kept := parts[:0]
	for _, p := range parts {
		if p == "" {
			continue
		}
		key, _, _ := strings.Cut(p, "=")
		if decoded, err := url.QueryUnescape(key); err == nil {
			key = decoded
		}
		if key == name {
			continue
		}
		kept = append(kept, p)
	}
	return strings.Join(kept, "&")
}
