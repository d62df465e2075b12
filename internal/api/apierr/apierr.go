package apierr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Kind 错误分类
type Kind string

const (
	KindMissingConfig       Kind = "missingConfig"
	KindNoToken             Kind = "noToken"
	KindInvalidToken        Kind = "invalidToken"
	KindStoreLimit          Kind = "storeLimit"
	KindMissingFields       Kind = "missingFields"
	KindInvalidSlug         Kind = "invalidSlug"
	KindSlugTooShort        Kind = "slugTooShort"
	KindUnauthorized        Kind = "unauthorized"
	KindInternal            Kind = "internalError"
	KindInvalidContentType  Kind = "invalidContentType"
	KindValidationFailed    Kind = "validationFailed"
	KindQuotaExceeded       Kind = "quotaExceeded"
	KindNotFound            Kind = "notFound"
	KindForbidden           Kind = "forbidden"
	KindUpstreamWriteFailed Kind = "upstreamWriteFailed"
	KindProxyError          Kind = "proxyError"
	KindMissingPath         Kind = "missingPath"
)

// Error 带 HTTP 状态码和响应体的业务错误
// service 层返回它，controller 层直接渲染
type Error struct {
	Kind   Kind
	Status int
	Body   gin.H
}

func (e *Error) Error() string {
	if msg, isString := e.Body["error"].(string); isString {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return string(e.Kind)
}

func newError(kind Kind, status int, msg string) *Error {
	return &Error{Kind: kind, Status: status, Body: gin.H{"error": msg}}
}

// ==================== 固定错误表 ====================

func MissingConfig() *Error {
	return newError(KindMissingConfig, http.StatusBadRequest, "API configuration missing")
}

func NoToken() *Error {
	return newError(KindNoToken, http.StatusUnauthorized, "No token provided")
}

func InvalidToken() *Error {
	return newError(KindInvalidToken, http.StatusUnauthorized, "Invalid token")
}

// StoreLimit 用户店铺数已达上限
func StoreLimit(count int) *Error {
	e := newError(KindStoreLimit, http.StatusBadRequest, "Maximum store limit reached")
	e.Body["stores"] = count
	return e
}

func MissingFields() *Error {
	return newError(KindMissingFields, http.StatusBadRequest, "Missing required fields")
}

func InvalidSlug() *Error {
	return newError(KindInvalidSlug, http.StatusBadRequest, "Invalid slug format")
}

func SlugTooShort() *Error {
	return newError(KindSlugTooShort, http.StatusBadRequest, "Slug must be at least 5 characters")
}

func Unauthorized() *Error {
	return newError(KindUnauthorized, http.StatusForbidden, "Store not found or unauthorized")
}

func Internal() *Error {
	return newError(KindInternal, http.StatusInternalServerError, "Internal server error")
}

// ==================== 扩展错误 ====================

// InvalidContentType allowed 非空时附带可用的类型列表
func InvalidContentType(allowed ...string) *Error {
	e := newError(KindInvalidContentType, http.StatusBadRequest, "Invalid or missing content type")
	if len(allowed) > 0 {
		e.Body["allowed"] = allowed
	}
	return e
}

// ValidationFailed 字段级校验失败，msg 原样返回给前端
func ValidationFailed(msg string) *Error {
	return newError(KindValidationFailed, http.StatusBadRequest, msg)
}

// QuotaExceeded 单店铺内容数量达到上限
func QuotaExceeded(kind string, count, limit int) *Error {
	e := newError(KindQuotaExceeded, http.StatusBadRequest, fmt.Sprintf("Maximum %s limit reached", kind))
	e.Body["count"] = count
	e.Body["limit"] = limit
	return e
}

func NotFound() *Error {
	return newError(KindNotFound, http.StatusNotFound, "Content not found")
}

func Forbidden() *Error {
	return newError(KindForbidden, http.StatusForbidden, "Forbidden")
}

// UpstreamWriteFailed 上游写入失败
// status 为 0 表示请求未到达上游，统一返回 502
func UpstreamWriteFailed(action, kind string, status int, message string, details any) *Error {
	if status < http.StatusBadRequest {
		status = http.StatusBadGateway
	}
	e := newError(KindUpstreamWriteFailed, status, fmt.Sprintf("Failed to %s %s", action, kind))
	e.Body["message"] = message
	if details != nil {
		e.Body["details"] = details
	}
	return e
}

// ProxyError 通用代理的统一失败响应
func ProxyError() *Error {
	return newError(KindProxyError, http.StatusInternalServerError, "Internal Server Error")
}

func MissingPath() *Error {
	return newError(KindMissingPath, http.StatusBadRequest, "Path is required")
}

// ==================== 渲染 ====================

// Respond 渲染错误；非 *Error 一律按 internalError 处理，不泄露细节
func Respond(c *gin.Context, err error) {
	e, isAPIErr := As(err)
	if !isAPIErr {
		e = Internal()
	}
	c.AbortWithStatusJSON(e.Status, e.Body)
}

// As 提取 *Error (支持 %w 包装)
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
