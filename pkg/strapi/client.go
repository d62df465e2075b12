package strapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-resty/resty/v2"
)

// storePopulate 店铺查询需要展开的关联
var storePopulate = []string{"Logo", "Cover", "URLS", "users"}

const (
	storePageSize = 100 // Strapi 默认 maxLimit
	maxStorePages = 50
)

// Client Strapi REST 客户端
// 除 Me 使用调用方 token 外，其余请求一律使用管理员凭证
type Client struct {
	rc       *resty.Client
	adminKey string
}

// NewClient 创建客户端
// hc: 共享的 http.Client (来自 net.Dispatcher)，为 nil 时由 resty 自建
func NewClient(baseURL, adminKey string, hc *http.Client) *Client {
	var rc *resty.Client
	if hc != nil {
		rc = resty.NewWithClient(hc)
	} else {
		rc = resty.New()
	}

	rc.SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "markket-cms-proxy/1.0")

	return &Client{rc: rc, adminKey: adminKey}
}

// ==================== 身份 ====================

// Me 用调用方 token 换取身份，非 2xx 返回 *StatusError
func (c *Client) Me(ctx context.Context, token string) (*User, error) {
	resp, err := c.do(ctx, http.MethodGet, "api/users/me", token, nil, nil)
	if err != nil {
		return nil, err
	}

	var user User
	if err := json.Unmarshal(resp.Body(), &user); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	if user.ID == 0 {
		return nil, fmt.Errorf("decode user: missing id")
	}
	return &user, nil
}

// ==================== 店铺 ====================

// FindStoresByUser 查询用户名下的所有店铺 (按 pageCount 逐页拉取)
func (c *Client) FindStoresByUser(ctx context.Context, userID int64) ([]Store, error) {
	q := url.Values{}
	q.Set("filters[users][id][$eq]", strconv.FormatInt(userID, 10))
	for _, p := range storePopulate {
		q.Add("populate[]", p)
	}
	q.Set("pagination[pageSize]", strconv.Itoa(storePageSize))

	var stores []Store
	for page := 1; page <= maxStorePages; page++ {
		q.Set("pagination[page]", strconv.Itoa(page))

		resp, err := c.do(ctx, http.MethodGet, "api/stores", c.adminKey, q, nil)
		if err != nil {
			return nil, err
		}

		var list ListResponse[Store]
		if err := json.Unmarshal(resp.Body(), &list); err != nil {
			return nil, fmt.Errorf("decode stores: %w", err)
		}
		stores = append(stores, list.Data...)

		if page >= list.Meta.Pagination.PageCount || len(list.Data) == 0 {
			return stores, nil
		}
	}
	return nil, fmt.Errorf("user %d owns more than %d stores", userID, storePageSize*maxStorePages)
}

// ==================== 通用集合 ====================

// FindOne 查询单条记录，返回 data 对象；不存在时返回 IsNotFound 的 *StatusError
func (c *Client) FindOne(ctx context.Context, collection, id string, populate ...string) (map[string]any, error) {
	q := url.Values{}
	for _, p := range populate {
		q.Add("populate[]", p)
	}

	resp, err := c.do(ctx, http.MethodGet, itemPath(collection, id), c.adminKey, q, nil)
	if err != nil {
		return nil, err
	}

	var single SingleResponse[map[string]any]
	if err := json.Unmarshal(resp.Body(), &single); err != nil {
		return nil, fmt.Errorf("decode %s: %w", collection, err)
	}
	if single.Data == nil {
		return nil, &StatusError{Status: http.StatusNotFound}
	}
	return single.Data, nil
}

// Get 原样透传查询结果 (状态码 + 响应体)
// 上游非 2xx 不视为错误，只有网络错误才返回 err
func (c *Client) Get(ctx context.Context, path string, query url.Values) (int, []byte, error) {
	req := c.rc.R().SetContext(ctx).SetAuthToken(c.adminKey)
	if len(query) > 0 {
		req.SetQueryParamsFromValues(query)
	}

	resp, err := req.Get(path)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode(), resp.Body(), nil
}

// Count 统计满足过滤条件的记录数 (pageSize=1，只读 meta.pagination.total)
func (c *Client) Count(ctx context.Context, collection string, filters url.Values) (int, error) {
	q := url.Values{}
	for k, v := range filters {
		q[k] = v
	}
	q.Set("pagination[pageSize]", "1")
	q.Set("fields[0]", "id")

	resp, err := c.do(ctx, http.MethodGet, "api/"+collection, c.adminKey, q, nil)
	if err != nil {
		return 0, err
	}

	var list ListResponse[json.RawMessage]
	if err := json.Unmarshal(resp.Body(), &list); err != nil {
		return 0, fmt.Errorf("decode %s count: %w", collection, err)
	}
	return list.Meta.Pagination.Total, nil
}

// Create 创建记录，body 为 {data: ...}，返回上游的 data 对象
func (c *Client) Create(ctx context.Context, collection string, data any) (map[string]any, error) {
	return c.write(ctx, http.MethodPost, "api/"+collection, data)
}

// Update 更新记录
func (c *Client) Update(ctx context.Context, collection, id string, data any) (map[string]any, error) {
	return c.write(ctx, http.MethodPut, itemPath(collection, id), data)
}

// Delete 删除记录 (上游可能返回 200 或 204)
func (c *Client) Delete(ctx context.Context, collection, id string) error {
	_, err := c.do(ctx, http.MethodDelete, itemPath(collection, id), c.adminKey, nil, nil)
	return err
}

// ==================== 内部方法 ====================

func (c *Client) write(ctx context.Context, method, path string, data any) (map[string]any, error) {
	resp, err := c.do(ctx, method, path, c.adminKey, nil, map[string]any{"data": data})
	if err != nil {
		return nil, err
	}

	var single SingleResponse[map[string]any]
	if len(resp.Body()) > 0 {
		if err := json.Unmarshal(resp.Body(), &single); err != nil {
			return nil, fmt.Errorf("decode %s response: %w", path, err)
		}
	}
	return single.Data, nil
}

// do 执行请求；非 2xx 转成 *StatusError
func (c *Client) do(ctx context.Context, method, path, token string, query url.Values, body any) (*resty.Response, error) {
	req := c.rc.R().SetContext(ctx)
	if token != "" {
		req.SetAuthToken(token)
	}
	if len(query) > 0 {
		req.SetQueryParamsFromValues(query)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return resp, newStatusError(resp.StatusCode(), resp.Body())
	}
	return resp, nil
}

func itemPath(collection, id string) string {
	return "api/" + collection + "/" + url.PathEscape(id)
}
