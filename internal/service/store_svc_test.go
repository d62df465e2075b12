package service

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"markket_cms_v1/internal/api/apierr"
	"markket_cms_v1/internal/model"
	"markket_cms_v1/internal/repository"
)

func validStorePayload() map[string]any {
	return map[string]any{
		"title":       "My Store",
		"Description": "A store",
		"slug":        "my-store",
	}
}

func requireKind(t *testing.T, err error, kind apierr.Kind) *apierr.Error {
	t.Helper()
	require.Error(t, err)
	e, isAPIErr := apierr.As(err)
	require.True(t, isAPIErr, "expected *apierr.Error, got %v", err)
	assert.Equal(t, kind, e.Kind)
	return e
}

// ==================== 归属校验 ====================

func TestStoreService_ValidateStoreAccess(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.srv.AddStore(1, "store-one", 7)
	env.srv.AddStore(2, "store-two", 8)
	ctx := context.Background()

	store, allowed := env.stores.ValidateStoreAccess(ctx, testUser(7), "store-one")
	require.True(t, allowed)
	assert.Equal(t, int64(1), store.ID)

	_, allowed = env.stores.ValidateStoreAccess(ctx, testUser(7), "1")
	assert.True(t, allowed, "数字 id 同样可以匹配")

	_, allowed = env.stores.ValidateStoreAccess(ctx, testUser(7), "store-two")
	assert.False(t, allowed)

	_, allowed = env.stores.ValidateStoreAccess(ctx, testUser(7), "")
	assert.False(t, allowed)

	// 查询使用管理员凭证并按 users.id 过滤
	calls := env.srv.Calls(http.MethodGet)
	require.NotEmpty(t, calls)
	assert.Equal(t, "Bearer "+testAdminKey, calls[0].Auth)
	q, err := url.ParseQuery(calls[0].RawQuery)
	require.NoError(t, err)
	assert.Equal(t, "7", q.Get("filters[users][id][$eq]"))
}

func TestStoreService_ValidateStoreAccess_UpstreamError(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.srv.Handle("/api/stores", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, allowed := env.stores.ValidateStoreAccess(context.Background(), testUser(7), "store-one")
	assert.False(t, allowed)
}

func TestStoreService_AuthorizeStore(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.srv.AddStore(1, "store-one", 7)

	e := requireKind(t, func() error {
		_, err := env.stores.AuthorizeStore(context.Background(), testUser(7), "")
		return err
	}(), apierr.KindValidationFailed)
	assert.Equal(t, "Store ID is required", e.Body["error"])

	_, err := env.stores.AuthorizeStore(context.Background(), testUser(9), "store-one")
	e = requireKind(t, err, apierr.KindUnauthorized)
	assert.Equal(t, http.StatusForbidden, e.Status)
}

// ==================== 创建 ====================

func TestStoreService_CreateStore(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	ctx := context.Background()

	payload := validStorePayload()
	payload["users"] = []any{99} // 客户端传入的 users 会被覆盖
	created, err := env.stores.CreateStore(ctx, testUser(7), payload)
	require.NoError(t, err)
	assert.NotEmpty(t, created["documentId"])

	posts := env.srv.Calls(http.MethodPost)
	require.Len(t, posts, 1)
	data := posts[0].JSON()["data"].(map[string]any)
	assert.Equal(t, []any{float64(7)}, data["users"])
	assert.Equal(t, "my-store", data["slug"])

	// 审计落库
	logs, total, err := env.auditRepo.List(ctx, repository.AuditLogFilter{})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	assert.Equal(t, model.AuditActionCreate, logs[0].Action)
	assert.Equal(t, model.AuditStatusSuccess, logs[0].Status)
	assert.Equal(t, int64(7), logs[0].UserID)
}

func TestStoreService_CreateStore_Validation(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	payload := validStorePayload()
	payload["slug"] = "Bad Slug"
	_, err := env.stores.CreateStore(context.Background(), testUser(7), payload)
	requireKind(t, err, apierr.KindInvalidSlug)

	payload["slug"] = "abc"
	_, err = env.stores.CreateStore(context.Background(), testUser(7), payload)
	requireKind(t, err, apierr.KindSlugTooShort)

	delete(payload, "title")
	_, err = env.stores.CreateStore(context.Background(), testUser(7), payload)
	requireKind(t, err, apierr.KindMissingFields)

	assert.Empty(t, env.srv.Calls(http.MethodPost))
}

func TestStoreService_CreateStore_Limit(t *testing.T) {
	env := newTestEnv(t, envOptions{maxStores: 2})
	env.srv.AddStore(1, "store-one", 7)
	env.srv.AddStore(2, "store-two", 7)

	_, err := env.stores.CreateStore(context.Background(), testUser(7), validStorePayload())
	e := requireKind(t, err, apierr.KindStoreLimit)
	assert.Equal(t, 2, e.Body["stores"])
	assert.Equal(t, "Maximum store limit reached", e.Body["error"])
	assert.Empty(t, env.srv.Calls(http.MethodPost))
}

// ==================== 更新 / 删除 ====================

func TestStoreService_UpdateStore(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.srv.AddStore(1, "store-one", 7)

	payload := validStorePayload()
	payload["users"] = []any{99}
	_, err := env.stores.UpdateStore(context.Background(), testUser(7), "store-one", payload)
	require.NoError(t, err)

	puts := env.srv.Calls(http.MethodPut)
	require.Len(t, puts, 1)
	assert.Equal(t, "/api/stores/store-one", puts[0].Path)
	data := puts[0].JSON()["data"].(map[string]any)
	assert.NotContains(t, data, "users")

	// users 未被修改
	item := env.srv.Item("stores", "store-one")
	assert.Len(t, item["users"], 1)
}

func TestStoreService_UpdateStore_Ownership(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.srv.AddStore(1, "store-one", 7)
	env.srv.AddStore(2, "store-two", 8)
	ctx := context.Background()

	_, err := env.stores.UpdateStore(ctx, testUser(7), "store-two", validStorePayload())
	requireKind(t, err, apierr.KindUnauthorized)

	// 只按 documentId 匹配
	_, err = env.stores.UpdateStore(ctx, testUser(7), "1", validStorePayload())
	requireKind(t, err, apierr.KindUnauthorized)

	_, err = env.stores.UpdateStore(ctx, testUser(7), "", validStorePayload())
	requireKind(t, err, apierr.KindValidationFailed)

	assert.Empty(t, env.srv.Calls(http.MethodPut))
}

func TestStoreService_DeleteStore(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.srv.AddStore(1, "store-one", 7)
	ctx := context.Background()

	err := env.stores.DeleteStore(ctx, testUser(8), "store-one")
	requireKind(t, err, apierr.KindUnauthorized)

	require.NoError(t, env.stores.DeleteStore(ctx, testUser(7), "store-one"))
	assert.Equal(t, 0, env.srv.Count("stores"))
}

// ==================== 列表缓存 ====================

func TestStoreService_ListOwnedStores_Cached(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.srv.AddStore(1, "store-one", 7)
	ctx := context.Background()
	user := testUser(7)

	first, err := env.stores.ListOwnedStores(ctx, user)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := env.stores.ListOwnedStores(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, env.srv.Calls(http.MethodGet), 1, "第二次命中缓存")

	// 创建后缓存失效
	_, err = env.stores.CreateStore(ctx, user, validStorePayload())
	require.NoError(t, err)

	third, err := env.stores.ListOwnedStores(ctx, user)
	require.NoError(t, err)
	assert.Len(t, third, 2)
}

// ==================== 审计查询 ====================

func TestStoreService_AuditTrail(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.srv.AddStore(1, "store-one", 7)
	env.srv.AddStore(2, "store-two", 8)
	ctx := context.Background()

	env.audit.Record(ctx, AuditEntry{Kind: "article", StoreID: "store-one", Action: model.AuditActionCreate, Status: 201})
	env.audit.Record(ctx, AuditEntry{Kind: "page", StoreID: "1", Action: model.AuditActionUpdate, Status: 200})
	env.audit.Record(ctx, AuditEntry{Kind: "article", StoreID: "store-two", Action: model.AuditActionCreate, Status: 201})

	env.audit.Record(ctx, AuditEntry{Kind: "article", StoreID: "store-one", Action: model.AuditActionCreate, Err: apierr.QuotaExceeded("article", 10, 10)})

	page, err := env.stores.AuditTrail(ctx, testUser(7), AuditQuery{StoreID: "store-one"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, 1, page.Page)

	// 汇总合并 documentId 与数字 id 两种记录方式
	require.Len(t, page.Stats, 2)
	assert.Equal(t, repository.AuditActionStats{ContentType: "article", Action: model.AuditActionCreate, Total: 2, Failed: 1}, page.Stats[0])
	assert.Equal(t, repository.AuditActionStats{ContentType: "page", Action: model.AuditActionUpdate, Total: 1}, page.Stats[1])

	page, err = env.stores.AuditTrail(ctx, testUser(7), AuditQuery{StoreID: "store-one", ContentType: "page", Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)

	page, err = env.stores.AuditTrail(ctx, testUser(7), AuditQuery{StoreID: "store-one", Since: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	assert.Empty(t, page.Stats, "汇总起点之后没有记录")
	assert.Equal(t, int64(3), page.Total)

	_, err = env.stores.AuditTrail(ctx, testUser(7), AuditQuery{StoreID: "store-two", Page: 1, PageSize: 10})
	requireKind(t, err, apierr.KindUnauthorized)
}
