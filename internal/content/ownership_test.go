package content

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDescriptor_BelongsTo(t *testing.T) {
	r := NewRegistry(nil)
	article, _ := r.Lookup("article")
	page, _ := r.Lookup("page")
	store, _ := r.Lookup("store")

	tests := []struct {
		name string
		d    *Descriptor
		item map[string]any
		want bool
	}{
		{"documentId 数组", article, map[string]any{"stores": []any{"store-one"}}, true},
		{"展开对象数组", article, map[string]any{"stores": []any{map[string]any{"id": 1.0, "documentId": "store-one"}}}, true},
		{"数字 id", article, map[string]any{"stores": []any{map[string]any{"id": 1.0}}}, true},
		{"其他店铺", article, map[string]any{"stores": []any{map[string]any{"id": 2.0, "documentId": "store-two"}}}, false},
		{"无关联", article, map[string]any{"Title": "x"}, false},
		{"单值关联", page, map[string]any{"store": map[string]any{"documentId": "store-one"}}, true},
		{"v4 包装", page, map[string]any{"store": map[string]any{"data": map[string]any{"id": 1.0}}}, true},
		{"字段名不匹配", page, map[string]any{"stores": []any{"store-one"}}, false},
		{"store 类型没有店铺关联", store, map[string]any{"users": []any{"store-one"}}, false},
		{"nil 记录", article, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.d.BelongsTo(tt.item, "1", "store-one"))
		})
	}
}

func TestDescriptor_StoreFilters(t *testing.T) {
	r := NewRegistry(nil)
	product, _ := r.Lookup("product")
	track, _ := r.Lookup("track")

	assert.Equal(t, "store-one", product.StoreFilter("store-one").Get("filters[stores][documentId][$eq]"))
	assert.Equal(t, "store-one", track.StoreFilter("store-one").Get("filters[store][documentId][$eq]"))

	q := product.StoresFilter([]string{"a", "b"})
	assert.Equal(t, "a", q.Get("filters[stores][documentId][$in][0]"))
	assert.Equal(t, "b", q.Get("filters[stores][documentId][$in][1]"))
}

func TestDescriptor_ScopedQuery(t *testing.T) {
	r := NewRegistry(nil)
	article, _ := r.Lookup("article")

	in := url.Values{
		"sort":                                {"id:desc"},
		"filters[Title][$contains]":           {"hello"},
		"filters[stores][documentId][$in][2]": {"victim"},
		"filters[stores][documentId][$eq]":    {"victim"},
		"filters[stores][id][$notNull]":       {"true"},
	}

	q := article.ScopedQuery(in, []string{"store1", "store2"})
	assert.Equal(t, "id:desc", q.Get("sort"))
	assert.Equal(t, "hello", q.Get("filters[Title][$contains]"))
	assert.Equal(t, "store1", q.Get("filters[stores][documentId][$in][0]"))
	assert.Equal(t, "store2", q.Get("filters[stores][documentId][$in][1]"))
	assert.Empty(t, q.Get("filters[stores][documentId][$in][2]"))
	assert.Empty(t, q.Get("filters[stores][documentId][$eq]"))
	assert.Empty(t, q.Get("filters[stores][id][$notNull]"))
	assert.Len(t, in, 5, "调用方参数不被修改")

	// 单个店铺用 $eq，调用方的 $eq 被覆盖
	q = article.ScopedQuery(in, []string{"store1"})
	assert.Equal(t, "store1", q.Get("filters[stores][documentId][$eq]"))
	assert.Empty(t, q.Get("filters[stores][documentId][$in][2]"))

	// 不加范围时仍剔除店铺过滤
	q = article.ScopedQuery(in, nil)
	assert.Equal(t, url.Values{"sort": {"id:desc"}, "filters[Title][$contains]": {"hello"}}, q)
}
