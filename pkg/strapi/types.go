package strapi

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ==================== 用户 ====================

// User api/users/me 返回的身份信息
type User struct {
	ID         int64  `json:"id"`
	DocumentID string `json:"documentId"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Blocked    bool   `json:"blocked"`
	Confirmed  bool   `json:"confirmed"`
}

// UserRef 关联字段中的用户引用
type UserRef struct {
	ID         int64  `json:"id"`
	DocumentID string `json:"documentId,omitempty"`
	Username   string `json:"username,omitempty"`
}

// ==================== 店铺 ====================

// Store 店铺 (populate Logo/Cover/URLS/users)
type Store struct {
	ID          int64           `json:"id"`
	DocumentID  string          `json:"documentId"`
	Title       string          `json:"title"`
	Slug        string          `json:"slug"`
	Description json.RawMessage `json:"Description,omitempty"`
	Active      *bool           `json:"active,omitempty"`
	Logo        json.RawMessage `json:"Logo,omitempty"`
	Cover       json.RawMessage `json:"Cover,omitempty"`
	URLS        json.RawMessage `json:"URLS,omitempty"`
	Users       []UserRef       `json:"users,omitempty"`
}

// Matches storeID 可以是数字 id 或 documentId
func (s *Store) Matches(storeID string) bool {
	if storeID == "" {
		return false
	}
	return storeID == s.DocumentID || storeID == strconv.FormatInt(s.ID, 10)
}

// ==================== 通用响应 ====================

// Pagination meta.pagination
type Pagination struct {
	Page      int `json:"page"`
	PageSize  int `json:"pageSize"`
	PageCount int `json:"pageCount"`
	Total     int `json:"total"`
}

// Meta 列表响应的 meta
type Meta struct {
	Pagination Pagination `json:"pagination"`
}

// ListResponse 集合查询响应
type ListResponse[T any] struct {
	Data []T  `json:"data"`
	Meta Meta `json:"meta"`
}

// SingleResponse 单条记录响应
type SingleResponse[T any] struct {
	Data T `json:"data"`
}

// ErrorBody 上游错误体
// {"data":null,"error":{"status":400,"name":"ValidationError","message":"...","details":{}}}
type ErrorBody struct {
	Error struct {
		Status  int             `json:"status"`
		Name    string          `json:"name"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details,omitempty"`
	} `json:"error"`
}

// ==================== 错误 ====================

// StatusError 上游返回了非 2xx
type StatusError struct {
	Status  int
	Message string
	Details json.RawMessage
	Body    []byte
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("upstream status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("upstream status %d", e.Status)
}

// IsNotFound 上游 404
func (e *StatusError) IsNotFound() bool {
	return e.Status == 404
}

// newStatusError 尽量从响应体中解析出上游的错误信息
func newStatusError(status int, body []byte) *StatusError {
	e := &StatusError{Status: status, Body: body}

	var eb ErrorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		e.Message = eb.Error.Message
		if len(eb.Error.Details) > 0 && string(eb.Error.Details) != "null" {
			e.Details = eb.Error.Details
		}
	}
	return e
}
