package content

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// BelongsTo 记录的店铺关联是否指向 storeIDs 中任意一个
// 关联值可能是 id、documentId、展开后的对象，或它们的数组
func (d *Descriptor) BelongsTo(item map[string]any, storeIDs ...string) bool {
	if d.Relation.Field == "" || item == nil {
		return false
	}
	want := make(map[string]struct{}, len(storeIDs))
	for _, id := range storeIDs {
		if id != "" {
			want[id] = struct{}{}
		}
	}
	return relationHas(item[d.Relation.Field], want)
}

func relationHas(v any, want map[string]struct{}) bool {
	switch t := v.(type) {
	case []any:
		for _, el := range t {
			if relationHas(el, want) {
				return true
			}
		}
	case []string:
		for _, el := range t {
			if _, hit := want[el]; hit {
				return true
			}
		}
	case map[string]any:
		// Strapi v4 风格 {data: {...}}
		if inner, wrapped := t["data"]; wrapped {
			return relationHas(inner, want)
		}
		return relationHas(t["documentId"], want) || relationHas(t["id"], want)
	case string:
		_, hit := want[t]
		return hit
	case float64:
		_, hit := want[strconv.FormatFloat(t, 'f', -1, 64)]
		return hit
	case int64:
		_, hit := want[strconv.FormatInt(t, 10)]
		return hit
	case int:
		_, hit := want[strconv.Itoa(t)]
		return hit
	}
	return false
}

// StoreFilter 按单个店铺过滤
func (d *Descriptor) StoreFilter(storeDocumentID string) url.Values {
	q := url.Values{}
	if d.Relation.Field == "" {
		return q
	}
	q.Set(fmt.Sprintf("filters[%s][documentId][$eq]", d.Relation.Field), storeDocumentID)
	return q
}

// StoresFilter 按多个店铺过滤 ($in)
func (d *Descriptor) StoresFilter(storeDocumentIDs []string) url.Values {
	q := url.Values{}
	if d.Relation.Field == "" {
		return q
	}
	for i, id := range storeDocumentIDs {
		q.Set(fmt.Sprintf("filters[%s][documentId][$in][%d]", d.Relation.Field, i), id)
	}
	return q
}

// ScopedQuery 复制调用方查询参数并限定到给定店铺
// 调用方针对店铺关联的过滤条件 (filters[<关联字段>]...) 一律丢弃，避免扩展 $in 列表越权
func (d *Descriptor) ScopedQuery(query url.Values, storeDocumentIDs []string) url.Values {
	out := url.Values{}
	prefix := fmt.Sprintf("filters[%s]", d.Relation.Field)
	for k, v := range query {
		if d.Relation.Field != "" && strings.HasPrefix(k, prefix) {
			continue
		}
		out[k] = v
	}

	var scope url.Values
	switch len(storeDocumentIDs) {
	case 0:
		return out
	case 1:
		scope = d.StoreFilter(storeDocumentIDs[0])
	default:
		scope = d.StoresFilter(storeDocumentIDs)
	}
	for k, v := range scope {
		out[k] = v
	}
	return out
}
