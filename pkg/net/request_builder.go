package net

import (
	"context"
	"io"
	"net/http"
)

// BuildUpstreamRequest 通用上游请求构建器
// 职责：统一封装鉴权头 (Authorization) 和 Content-Type
// contentType 为空时不设置 (GET / DELETE)；multipart 需要传入原始 Content-Type 以保留 boundary
func BuildUpstreamRequest(ctx context.Context, method, url string, body io.Reader, contentType, token string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req, nil
}
