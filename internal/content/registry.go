package content

import (
	"fmt"
	"sort"
)

// ==================== 内容类型 ====================

// Kind 内容类型标识，对应请求中的 contentType 参数
type Kind string

const (
	KindArticle Kind = "article"
	KindPage    Kind = "page"
	KindProduct Kind = "product"
	KindTrack   Kind = "track"
	KindAlbum   Kind = "album"
	KindEvent   Kind = "event"
	KindStore   Kind = "store"
)

// AllKinds 全部内容类型 (新增类型时必须同时补充 descriptorFor)
func AllKinds() []Kind {
	return []Kind{KindArticle, KindPage, KindProduct, KindTrack, KindAlbum, KindEvent, KindStore}
}

// Cardinality 店铺关联字段的基数
type Cardinality int

const (
	One  Cardinality = iota // store: "id"
	Many                    // stores: ["id"]
)

// Relation 内容与店铺的关联方式，字段名和基数均与上游 collection 一一对应，不可互换
type Relation struct {
	Field       string
	Cardinality Cardinality
}

// ValidationResult 校验结果，Error 仅在 Valid=false 时有值
type ValidationResult struct {
	Valid bool
	Error string
}

func ok() ValidationResult { return ValidationResult{Valid: true} }

func fail(msg string) ValidationResult { return ValidationResult{Valid: false, Error: msg} }

// ==================== Descriptor ====================

// Descriptor 单个内容类型的全部行为配置
type Descriptor struct {
	Kind       Kind
	Collection string // 上游 REST 路径，api/<Collection>

	Required   []string
	MinSlugLen int

	Fields      []string // 允许透传到上游的字段白名单
	MediaFields []string // 媒体字段，对象会被压缩成 id
	Relation    Relation

	LinkToStore bool // 需要 storeId 且校验店铺归属
	PropLimit   int  // 单店铺数量上限，0 表示不限
	OwnedByUser bool // 归属直接挂在 users 上 (store)
}

// HasLimit 是否需要配额校验
func (d *Descriptor) HasLimit() bool {
	return d.PropLimit > 0
}

// descriptorFor 每个 Kind 的静态配置
func descriptorFor(kind Kind) *Descriptor {
	switch kind {
	case KindArticle:
		return &Descriptor{
			Kind:        KindArticle,
			Collection:  "articles",
			Required:    []string{"Title", "Content", "slug"},
			MinSlugLen:  SlugMinLen,
			Fields:      []string{"Title", "Content", "slug", "Tags", "cover", "category"},
			MediaFields: []string{"cover"},
			Relation:    Relation{Field: "stores", Cardinality: Many},
			LinkToStore: true,
		}
	case KindPage:
		return &Descriptor{
			Kind:        KindPage,
			Collection:  "pages",
			Required:    []string{"Title", "Content", "slug"},
			MinSlugLen:  ShortSlugMinLen,
			Fields:      []string{"Title", "Content", "slug", "Active", "menuOrder"},
			Relation:    Relation{Field: "store", Cardinality: One},
			LinkToStore: true,
		}
	case KindProduct:
		return &Descriptor{
			Kind:        KindProduct,
			Collection:  "products",
			Required:    []string{"Name", "Description", "slug"},
			MinSlugLen:  SlugMinLen,
			Fields:      []string{"Name", "Description", "slug", "SKU", "usd_price", "quantity", "active", "Thumbnail", "Slides", "PRICES", "Tag"},
			MediaFields: []string{"Thumbnail", "Slides"},
			Relation:    Relation{Field: "stores", Cardinality: Many},
			LinkToStore: true,
		}
	case KindTrack:
		return &Descriptor{
			Kind:        KindTrack,
			Collection:  "tracks",
			Required:    []string{"title", "slug"},
			MinSlugLen:  SlugMinLen,
			Fields:      []string{"title", "description", "content", "slug", "media", "urls"},
			MediaFields: []string{"media"},
			Relation:    Relation{Field: "store", Cardinality: One},
			LinkToStore: true,
		}
	case KindAlbum:
		return &Descriptor{
			Kind:        KindAlbum,
			Collection:  "albums",
			Required:    []string{"title", "slug"},
			MinSlugLen:  SlugMinLen,
			Fields:      []string{"title", "description", "content", "slug", "cover", "displayType"},
			MediaFields: []string{"cover"},
			Relation:    Relation{Field: "store", Cardinality: Many},
			LinkToStore: true,
		}
	case KindEvent:
		return &Descriptor{
			Kind:        KindEvent,
			Collection:  "events",
			Required:    []string{"Name", "slug", "startDate"},
			MinSlugLen:  SlugMinLen,
			Fields:      []string{"Name", "Description", "slug", "startDate", "endDate", "maxCapacity", "usd_price", "amount", "active", "Thumbnail", "Slides", "PRICES", "Tag"},
			MediaFields: []string{"Thumbnail", "Slides"},
			Relation:    Relation{Field: "stores", Cardinality: Many},
			LinkToStore: true,
		}
	case KindStore:
		return &Descriptor{
			Kind:        KindStore,
			Collection:  "stores",
			Required:    []string{"title", "Description", "slug"},
			MinSlugLen:  SlugMinLen,
			Fields:      []string{"title", "Description", "slug", "active", "Logo", "Cover", "Favicon", "Slides", "URLS"},
			MediaFields: []string{"Logo", "Cover", "Favicon", "Slides"},
			OwnedByUser: true,
		}
	}
	return nil
}

// ==================== Registry ====================

// Registry 内容类型注册表，启动时构建，运行期只读
type Registry struct {
	descriptors map[Kind]*Descriptor
}

// NewRegistry 构建注册表
// limits: contentType -> 单店铺上限 (来自配置)，缺省为不限
func NewRegistry(limits map[string]int) *Registry {
	r := &Registry{descriptors: make(map[Kind]*Descriptor, len(AllKinds()))}
	for _, kind := range AllKinds() {
		d := descriptorFor(kind)
		if d == nil {
			panic(fmt.Sprintf("content: kind %q has no descriptor", kind))
		}
		if !d.OwnedByUser {
			d.PropLimit = limits[string(kind)]
		}
		r.descriptors[kind] = d
	}
	return r
}

// Lookup 按名称查找，未知类型返回 false
func (r *Registry) Lookup(name string) (*Descriptor, bool) {
	if name == "" {
		return nil, false
	}
	d, found := r.descriptors[Kind(name)]
	return d, found
}

// Names 已注册的类型名 (排序后)
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.descriptors))
	for k := range r.descriptors {
		names = append(names, string(k))
	}
	sort.Strings(names)
	return names
}
