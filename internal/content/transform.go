package content

import (
	"encoding/json"
	"fmt"
)

// Payload 客户端提交的原始 JSON 对象
type Payload = map[string]any

// ==================== 校验 ====================

// Validate 必填字段 + slug 规则
func (d *Descriptor) Validate(payload Payload) ValidationResult {
	if payload == nil {
		return fail(MsgMissingFields)
	}
	for _, field := range d.Required {
		if isBlank(payload[field]) {
			return fail(MsgMissingFields)
		}
	}

	slug, isString := payload["slug"].(string)
	if !isString {
		return fail(MsgInvalidSlug)
	}
	if len(slug) < d.MinSlugLen {
		return fail(fmt.Sprintf("Slug must be at least %d characters", d.MinSlugLen))
	}
	if !matchesSlugPattern(slug) {
		return fail(MsgInvalidSlug)
	}
	return ok()
}

const (
	MsgMissingFields = "Missing required fields"
	MsgInvalidSlug   = "Invalid slug format"
)

// isBlank 与前端的 falsy 判断保持一致：null / "" / false / 0 视为缺失
func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	case float64:
		return t == 0
	case json.Number:
		return t.String() == "0"
	}
	return false
}

// ==================== 转换 ====================

// Transform 把客户端 payload 映射成上游 collection 接受的结构
// 只输出白名单字段；SEO 拍平；按 Relation 挂上店铺；store 类型写入 users
func (d *Descriptor) Transform(payload Payload, userID int64, storeID, albumID string) Payload {
	out := make(Payload, len(d.Fields)+3)

	for _, field := range d.Fields {
		v, present := payload[field]
		if !present {
			continue
		}
		out[field] = v
	}
	for _, field := range d.MediaFields {
		if v, present := out[field]; present {
			out[field] = mediaRefs(v)
		}
	}

	if seo, present := flattenSEO(payload["SEO"]); present {
		out["SEO"] = seo
	}

	if d.Relation.Field != "" && storeID != "" {
		switch d.Relation.Cardinality {
		case Many:
			out[d.Relation.Field] = []string{storeID}
		default:
			out[d.Relation.Field] = storeID
		}
	}

	if d.Kind == KindTrack && albumID != "" {
		out["album"] = albumID
	}

	if d.OwnedByUser && userID > 0 {
		out["users"] = []int64{userID}
	}

	return out
}

// flattenSEO 只保留四个 SEO 字段，socialImage 压缩为 id
func flattenSEO(v any) (Payload, bool) {
	seo, isMap := v.(map[string]any)
	if !isMap {
		return nil, false
	}

	out := make(Payload, 4)
	for _, key := range []string{"metaTitle", "metaDescription", "metaKeywords"} {
		if val, present := seo[key]; present {
			out[key] = val
		}
	}
	if id := mediaID(seo["socialImage"]); id != nil {
		out["socialImage"] = id
	}
	return out, true
}

// mediaRefs 单个媒体或媒体数组都压缩为 id
func mediaRefs(v any) any {
	list, isList := v.([]any)
	if !isList {
		return mediaID(v)
	}
	ids := make([]any, 0, len(list))
	for _, item := range list {
		if id := mediaID(item); id != nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// mediaID 媒体对象取 id；已经是 id 的原样返回
func mediaID(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return t["id"]
	case float64, int, int64, string, json.Number:
		return t
	}
	return nil
}
