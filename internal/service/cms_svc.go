package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"markket_cms_v1/internal/api/apierr"
	"markket_cms_v1/internal/content"
	"markket_cms_v1/internal/model"
	"markket_cms_v1/internal/quota"
	"markket_cms_v1/pkg/logger"
	"markket_cms_v1/pkg/metrics"
	"markket_cms_v1/pkg/strapi"
)

// CMSService 店铺内容的增删改查
// 流程：店铺授权 -> 配额 (加锁) -> 校验 -> 转换 -> 上游写入 -> 审计
type CMSService struct {
	upstream Upstream
	stores   *StoreService
	locker   quota.Locker
	audit    *AuditService
	archive  *ArchiveService
	metrics  *metrics.Metrics
}

func NewCMSService(
	upstream Upstream,
	stores *StoreService,
	locker quota.Locker,
	audit *AuditService,
	archive *ArchiveService,
	m *metrics.Metrics,
) *CMSService {
	if locker == nil {
		locker = quota.NewMemoryLocker()
	}
	return &CMSService{
		upstream: upstream,
		stores:   stores,
		locker:   locker,
		audit:    audit,
		archive:  archive,
		metrics:  m,
	}
}

// WriteRequest 一次写请求的参数
type WriteRequest struct {
	User    *strapi.User
	Desc    *content.Descriptor
	ID      string // PUT / DELETE
	StoreID string
	AlbumID string
	Payload content.Payload
}

// ==================== 创建 ====================

// Create 创建内容，返回上游 data
func (s *CMSService) Create(ctx context.Context, req WriteRequest) (map[string]any, error) {
	d := req.Desc
	if d.OwnedByUser {
		return s.stores.CreateStore(ctx, req.User, req.Payload)
	}

	// 1. 店铺授权
	var store *strapi.Store
	if d.LinkToStore {
		var err error
		if store, err = s.stores.AuthorizeStore(ctx, req.User, req.StoreID); err != nil {
			return nil, err
		}
	}

	// 2. 配额：count + create 在同一把锁内完成
	if d.HasLimit() && store != nil {
		unlock, err := s.locker.Lock(ctx, quota.Key(store.DocumentID, string(d.Kind)))
		if err != nil {
			logger.L().Errorf("[CMS] acquire quota lock %s/%s failed: %v", store.DocumentID, d.Kind, err)
			return nil, apierr.Internal()
		}
		defer unlock()

		count, err := s.upstream.Count(ctx, d.Collection, d.StoreFilter(store.DocumentID))
		if err != nil {
			logger.L().Errorf("[CMS] count %s for store %s failed: %v", d.Kind, store.DocumentID, err)
			return nil, apierr.Internal()
		}
		if count >= d.PropLimit {
			s.metrics.RecordQuotaRejection(string(d.Kind))
			logger.L().Infof("[CMS] quota reached: store=%s kind=%s count=%d limit=%d", store.DocumentID, d.Kind, count, d.PropLimit)
			return nil, apierr.QuotaExceeded(string(d.Kind), count, d.PropLimit)
		}
	}

	// 3. 校验
	if err := validationError(d.Validate(req.Payload)); err != nil {
		return nil, err
	}

	// 4. 转换 + 写入
	data := d.Transform(req.Payload, req.User.ID, req.StoreID, req.AlbumID)
	started := time.Now()
	created, err := s.upstream.Create(ctx, d.Collection, data)
	s.audit.Record(ctx, AuditEntry{
		User:    req.User,
		Kind:    string(d.Kind),
		StoreID: req.StoreID,
		ItemID:  documentIDOf(created),
		Action:  model.AuditActionCreate,
		Payload: data,
		Started: started,
		Status:  http.StatusCreated,
		Err:     err,
	})
	if err != nil {
		logger.L().Warnf("[CMS] create %s failed: %v", d.Kind, err)
		return nil, upstreamWriteError("create", string(d.Kind), err)
	}
	return created, nil
}

// ==================== 更新 ====================

// Update 更新内容；禁止通过此接口修改 users
func (s *CMSService) Update(ctx context.Context, req WriteRequest) (map[string]any, error) {
	d := req.Desc
	if d.OwnedByUser {
		return s.stores.UpdateStore(ctx, req.User, req.ID, req.Payload)
	}
	if req.ID == "" {
		return nil, apierr.ValidationFailed("ID is required")
	}

	// 1. 店铺授权 + 记录归属
	store, err := s.stores.AuthorizeStore(ctx, req.User, req.StoreID)
	if err != nil {
		return nil, err
	}
	if _, err := s.ownedItem(ctx, d, store, req.ID); err != nil {
		return nil, err
	}

	// 2. 校验 + 转换
	if err := validationError(d.Validate(req.Payload)); err != nil {
		return nil, err
	}
	data := d.Transform(req.Payload, 0, req.StoreID, req.AlbumID)
	delete(data, "users")

	// 3. 写入
	started := time.Now()
	updated, err := s.upstream.Update(ctx, d.Collection, req.ID, data)
	s.audit.Record(ctx, AuditEntry{
		User:    req.User,
		Kind:    string(d.Kind),
		StoreID: req.StoreID,
		ItemID:  req.ID,
		Action:  model.AuditActionUpdate,
		Payload: data,
		Started: started,
		Status:  http.StatusOK,
		Err:     err,
	})
	if err != nil {
		logger.L().Warnf("[CMS] update %s %s failed: %v", d.Kind, req.ID, err)
		return nil, upstreamWriteError("update", string(d.Kind), err)
	}
	return updated, nil
}

// ==================== 删除 ====================

// Delete 删除内容，删除前确认记录属于已授权的店铺
func (s *CMSService) Delete(ctx context.Context, req WriteRequest) error {
	d := req.Desc
	if d.OwnedByUser {
		return s.stores.DeleteStore(ctx, req.User, req.ID)
	}
	if req.ID == "" {
		return apierr.ValidationFailed("ID is required")
	}

	// 1. 店铺授权
	store, err := s.stores.AuthorizeStore(ctx, req.User, req.StoreID)
	if err != nil {
		return err
	}

	// 2. 记录归属
	item, err := s.ownedItem(ctx, d, store, req.ID)
	if err != nil {
		return err
	}

	// 3. 归档 (可选) + 删除
	archiveURL := s.archive.archiveOrLog(ctx, string(d.Kind), req.StoreID, item)

	started := time.Now()
	err = s.upstream.Delete(ctx, d.Collection, req.ID)
	s.audit.Record(ctx, AuditEntry{
		User:       req.User,
		Kind:       string(d.Kind),
		StoreID:    req.StoreID,
		ItemID:     req.ID,
		Action:     model.AuditActionDelete,
		ArchiveURL: archiveURL,
		Started:    started,
		Status:     http.StatusOK,
		Err:        err,
	})
	if err != nil {
		if isNotFound(err) {
			return apierr.NotFound()
		}
		logger.L().Warnf("[CMS] delete %s %s failed: %v", d.Kind, req.ID, err)
		return upstreamWriteError("delete", string(d.Kind), err)
	}
	return nil
}

// ownedItem 拉取记录并确认其店铺关联指向 store
// 不存在 -> 404；属于其他店铺 -> 403
func (s *CMSService) ownedItem(ctx context.Context, d *content.Descriptor, store *strapi.Store, id string) (map[string]any, error) {
	item, err := s.upstream.FindOne(ctx, d.Collection, id, d.Relation.Field)
	if err != nil {
		if isNotFound(err) {
			return nil, apierr.NotFound()
		}
		logger.L().Errorf("[CMS] fetch %s %s failed: %v", d.Kind, id, err)
		return nil, apierr.Internal()
	}
	if !d.BelongsTo(item, strconv.FormatInt(store.ID, 10), store.DocumentID) {
		logger.L().Warnf("[CMS] %s %s does not belong to store %s", d.Kind, id, store.DocumentID)
		return nil, apierr.Forbidden()
	}
	return item, nil
}

// ==================== 查询 ====================

// FindRequest 查询参数
type FindRequest struct {
	User    *strapi.User
	Desc    *content.Descriptor
	ID      string
	StoreID string
	Query   url.Values // populate / sort / pagination 等原样透传
}

// Result 透传给前端的上游响应
type Result struct {
	Status int
	Body   []byte
}

// Find 查询内容，结果限定在调用方拥有的店铺内
func (s *CMSService) Find(ctx context.Context, req FindRequest) (*Result, error) {
	d := req.Desc
	if d.OwnedByUser {
		return s.findStores(ctx, req)
	}

	// 1. 确定店铺范围
	var owned []strapi.Store
	if req.StoreID != "" {
		store, err := s.stores.AuthorizeStore(ctx, req.User, req.StoreID)
		if err != nil {
			return nil, err
		}
		owned = []strapi.Store{*store}
	} else {
		stores, err := s.stores.OwnedStores(ctx, req.User)
		if err != nil {
			logger.L().Errorf("[CMS] fetch stores for user %d failed: %v", req.User.ID, err)
			return nil, apierr.Internal()
		}
		owned = stores
	}

	// 2. 单条：先确认归属再透传
	if req.ID != "" {
		item, err := s.upstream.FindOne(ctx, d.Collection, req.ID, d.Relation.Field)
		if err != nil {
			if isNotFound(err) {
				return nil, apierr.NotFound()
			}
			logger.L().Errorf("[CMS] fetch %s %s failed: %v", d.Kind, req.ID, err)
			return nil, apierr.Internal()
		}
		if !d.BelongsTo(item, storeIdentifiers(owned)...) {
			return nil, apierr.NotFound()
		}
		return s.passthrough(ctx, "api/"+d.Collection+"/"+url.PathEscape(req.ID), d.ScopedQuery(req.Query, nil))
	}

	// 3. 列表：按店铺过滤
	if len(owned) == 0 {
		return emptyList()
	}
	docIDs := make([]string, 0, len(owned))
	for _, st := range owned {
		docIDs = append(docIDs, st.DocumentID)
	}
	return s.passthrough(ctx, "api/"+d.Collection, d.ScopedQuery(req.Query, docIDs))
}

// findStores contentType=store：列出或读取调用方自己的店铺
func (s *CMSService) findStores(ctx context.Context, req FindRequest) (*Result, error) {
	stores, err := s.stores.ListOwnedStores(ctx, req.User)
	if err != nil {
		logger.L().Errorf("[CMS] list stores for user %d failed: %v", req.User.ID, err)
		return nil, apierr.Internal()
	}

	var payload any
	if req.ID == "" {
		payload = map[string]any{
			"data": stores,
			"meta": map[string]any{"pagination": strapi.Pagination{Page: 1, PageSize: len(stores), PageCount: 1, Total: len(stores)}},
		}
	} else {
		var found *strapi.Store
		for i := range stores {
			if stores[i].Matches(req.ID) {
				found = &stores[i]
				break
			}
		}
		if found == nil {
			return nil, apierr.NotFound()
		}
		payload = map[string]any{"data": found}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, apierr.Internal()
	}
	return &Result{Status: http.StatusOK, Body: body}, nil
}

func (s *CMSService) passthrough(ctx context.Context, path string, query url.Values) (*Result, error) {
	status, body, err := s.upstream.Get(ctx, path, query)
	if err != nil {
		logger.L().Errorf("[CMS] GET %s failed: %v", path, err)
		return nil, apierr.Internal()
	}
	return &Result{Status: status, Body: body}, nil
}

func emptyList() (*Result, error) {
	body, _ := json.Marshal(map[string]any{
		"data": []any{},
		"meta": map[string]any{"pagination": strapi.Pagination{Page: 1, PageCount: 0, Total: 0}},
	})
	return &Result{Status: http.StatusOK, Body: body}, nil
}

func storeIdentifiers(stores []strapi.Store) []string {
	ids := make([]string, 0, len(stores)*2)
	for _, st := range stores {
		ids = append(ids, strconv.FormatInt(st.ID, 10), st.DocumentID)
	}
	return ids
}
