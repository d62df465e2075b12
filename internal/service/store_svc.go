package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"markket_cms_v1/internal/api/apierr"
	"markket_cms_v1/internal/content"
	"markket_cms_v1/internal/model"
	"markket_cms_v1/internal/quota"
	"markket_cms_v1/internal/repository"
	"markket_cms_v1/pkg/logger"
	"markket_cms_v1/pkg/metrics"
	"markket_cms_v1/pkg/strapi"
	"markket_cms_v1/pkg/utils"
)

// StoreService 店铺归属校验与店铺增删改
type StoreService struct {
	upstream  Upstream
	desc      *content.Descriptor
	maxStores int
	locker    quota.Locker
	cache     *utils.TTLCache[[]strapi.Store]
	audit     *AuditService
	archive   *ArchiveService
	metrics   *metrics.Metrics
}

// StoreOptions 店铺服务配置
type StoreOptions struct {
	MaxStores int
	CacheTTL  time.Duration
}

func NewStoreService(
	upstream Upstream,
	registry *content.Registry,
	opts StoreOptions,
	locker quota.Locker,
	audit *AuditService,
	archive *ArchiveService,
	m *metrics.Metrics,
) *StoreService {
	desc, _ := registry.Lookup(string(content.KindStore))
	if locker == nil {
		locker = quota.NewMemoryLocker()
	}
	return &StoreService{
		upstream:  upstream,
		desc:      desc,
		maxStores: opts.MaxStores,
		locker:    locker,
		cache:     utils.NewTTLCache[[]strapi.Store](1024, opts.CacheTTL),
		audit:     audit,
		archive:   archive,
		metrics:   m,
	}
}

// ==================== 归属校验 ====================

// OwnedStores 实时查询用户拥有的店铺 (不走缓存，用于鉴权)
func (s *StoreService) OwnedStores(ctx context.Context, user *strapi.User) ([]strapi.Store, error) {
	return s.upstream.FindStoresByUser(ctx, user.ID)
}

// ListOwnedStores 店铺列表，按用户缓存
func (s *StoreService) ListOwnedStores(ctx context.Context, user *strapi.User) ([]strapi.Store, error) {
	key := cacheKey(user)
	if stores, hit := s.cache.Get(key); hit {
		s.metrics.RecordStoreCache("hit")
		return stores, nil
	}
	s.metrics.RecordStoreCache("miss")

	return s.cache.GetOrLoad(ctx, key, func(ctx context.Context) ([]strapi.Store, error) {
		return s.OwnedStores(ctx, user)
	})
}

// ValidateStoreAccess storeID 匹配任一店铺的 id 或 documentId 即通过；查询失败视为无权限
func (s *StoreService) ValidateStoreAccess(ctx context.Context, user *strapi.User, storeID string) (*strapi.Store, bool) {
	if user == nil || storeID == "" {
		return nil, false
	}
	stores, err := s.OwnedStores(ctx, user)
	if err != nil {
		logger.L().Warnf("[Store] fetch stores for user %d failed: %v", user.ID, err)
		return nil, false
	}
	for i := range stores {
		if stores[i].Matches(storeID) {
			return &stores[i], true
		}
	}
	return nil, false
}

// AuthorizeStore ValidateStoreAccess 的错误版本
func (s *StoreService) AuthorizeStore(ctx context.Context, user *strapi.User, storeID string) (*strapi.Store, error) {
	if storeID == "" {
		return nil, apierr.ValidationFailed("Store ID is required")
	}
	store, allowed := s.ValidateStoreAccess(ctx, user, storeID)
	if !allowed {
		return nil, apierr.Unauthorized()
	}
	return store, nil
}

// ownedByDocumentID store 类型的更新 / 删除只按 documentId 匹配
func (s *StoreService) ownedByDocumentID(ctx context.Context, user *strapi.User, documentID string) (*strapi.Store, error) {
	if documentID == "" {
		return nil, apierr.ValidationFailed("ID is required")
	}
	stores, err := s.OwnedStores(ctx, user)
	if err != nil {
		logger.L().Warnf("[Store] fetch stores for user %d failed: %v", user.ID, err)
		return nil, apierr.Unauthorized()
	}
	for i := range stores {
		if stores[i].DocumentID == documentID {
			return &stores[i], nil
		}
	}
	return nil, apierr.Unauthorized()
}

// ==================== 写操作 ====================

// CreateStore 创建店铺，创建者写入 users
func (s *StoreService) CreateStore(ctx context.Context, user *strapi.User, payload content.Payload) (map[string]any, error) {
	// 1. 校验
	if err := validationError(s.desc.Validate(payload)); err != nil {
		return nil, err
	}

	// 2. 同一用户的建店串行化，数量检查和创建之间不能插入别的创建
	unlock, err := s.locker.Lock(ctx, quota.Key("user:"+strconv.FormatInt(user.ID, 10), string(content.KindStore)))
	if err != nil {
		logger.L().Errorf("[Store] acquire lock failed: %v", err)
		return nil, apierr.Internal()
	}
	defer unlock()

	// 3. 店铺上限
	stores, err := s.OwnedStores(ctx, user)
	if err != nil {
		logger.L().Errorf("[Store] count stores for user %d failed: %v", user.ID, err)
		return nil, apierr.Internal()
	}
	if s.maxStores > 0 && len(stores) >= s.maxStores {
		s.metrics.RecordQuotaRejection(string(content.KindStore))
		return nil, apierr.StoreLimit(len(stores))
	}

	// 4. 创建
	data := s.desc.Transform(payload, user.ID, "", "")
	started := time.Now()
	created, err := s.upstream.Create(ctx, s.desc.Collection, data)
	entry := AuditEntry{
		User:    user,
		Kind:    string(content.KindStore),
		Action:  model.AuditActionCreate,
		Payload: data,
		Started: started,
		Status:  201,
	}
	if err != nil {
		entry.Err = err
		s.audit.Record(ctx, entry)
		return nil, upstreamWriteError("create", string(content.KindStore), err)
	}
	entry.ItemID = documentIDOf(created)
	entry.StoreID = entry.ItemID
	s.audit.Record(ctx, entry)

	s.cache.Delete(cacheKey(user))
	logger.L().Infof("[Store] user %d created store %s", user.ID, entry.ItemID)
	return created, nil
}

// UpdateStore 更新店铺，禁止通过此接口修改 users
func (s *StoreService) UpdateStore(ctx context.Context, user *strapi.User, documentID string, payload content.Payload) (map[string]any, error) {
	// 1. 归属
	store, err := s.ownedByDocumentID(ctx, user, documentID)
	if err != nil {
		return nil, err
	}

	// 2. 校验 + 转换
	if err := validationError(s.desc.Validate(payload)); err != nil {
		return nil, err
	}
	data := s.desc.Transform(payload, 0, "", "")
	delete(data, "users")

	// 3. 写入
	started := time.Now()
	updated, err := s.upstream.Update(ctx, s.desc.Collection, store.DocumentID, data)
	entry := AuditEntry{
		User:    user,
		Kind:    string(content.KindStore),
		StoreID: store.DocumentID,
		ItemID:  store.DocumentID,
		Action:  model.AuditActionUpdate,
		Payload: data,
		Started: started,
		Status:  200,
		Err:     err,
	}
	s.audit.Record(ctx, entry)
	if err != nil {
		return nil, upstreamWriteError("update", string(content.KindStore), err)
	}

	s.cache.Delete(cacheKey(user))
	return updated, nil
}

// DeleteStore 删除店铺 (归档后再删)
func (s *StoreService) DeleteStore(ctx context.Context, user *strapi.User, documentID string) error {
	store, err := s.ownedByDocumentID(ctx, user, documentID)
	if err != nil {
		return err
	}

	archiveURL := s.archive.ArchiveFromUpstream(ctx, s.upstream, s.desc, store.DocumentID, store.DocumentID)

	started := time.Now()
	err = s.upstream.Delete(ctx, s.desc.Collection, store.DocumentID)
	s.audit.Record(ctx, AuditEntry{
		User:       user,
		Kind:       string(content.KindStore),
		StoreID:    store.DocumentID,
		ItemID:     store.DocumentID,
		Action:     model.AuditActionDelete,
		ArchiveURL: archiveURL,
		Started:    started,
		Status:     200,
		Err:        err,
	})
	if err != nil {
		if isNotFound(err) {
			return apierr.NotFound()
		}
		return upstreamWriteError("delete", string(content.KindStore), err)
	}

	s.cache.Delete(cacheKey(user))
	return nil
}

// ==================== 审计查询 ====================

// AuditPage 店铺审计记录分页
type AuditPage struct {
	Data  []model.AuditLog              `json:"data"`
	Total int64                         `json:"total"`
	Page  int                           `json:"page"`
	Stats []repository.AuditActionStats `json:"stats"`
}

// AuditQuery 审计查询条件
type AuditQuery struct {
	StoreID     string
	ContentType string
	Page        int
	PageSize    int
	Since       time.Time // 汇总起点，零值表示保留期内全部
}

// AuditTrail 查询调用方自己店铺的写操作记录及按类型汇总
func (s *StoreService) AuditTrail(ctx context.Context, user *strapi.User, q AuditQuery) (*AuditPage, error) {
	store, err := s.AuthorizeStore(ctx, user, q.StoreID)
	if err != nil {
		return nil, err
	}
	storeIDs := []string{store.DocumentID, strconv.FormatInt(store.ID, 10)}

	logs, total, err := s.audit.Trail(ctx, storeIDs, q.ContentType, q.Page, q.PageSize)
	if err != nil {
		logger.L().Errorf("[Store] audit trail for %s failed: %v", store.DocumentID, err)
		return nil, apierr.Internal()
	}
	stats, err := s.audit.Stats(ctx, storeIDs, q.Since)
	if err != nil {
		logger.L().Errorf("[Store] audit stats for %s failed: %v", store.DocumentID, err)
		return nil, apierr.Internal()
	}

	page := q.Page
	if page < 1 {
		page = 1
	}
	return &AuditPage{Data: logs, Total: total, Page: page, Stats: stats}, nil
}

// ==================== 辅助 ====================

func cacheKey(user *strapi.User) string {
	return "stores:" + strconv.FormatInt(user.ID, 10)
}

// validationError 校验结果转错误
func validationError(res content.ValidationResult) error {
	if res.Valid {
		return nil
	}
	switch {
	case res.Error == content.MsgMissingFields:
		return apierr.MissingFields()
	case res.Error == content.MsgInvalidSlug:
		return apierr.InvalidSlug()
	case res.Error == slugTooShortMsg:
		return apierr.SlugTooShort()
	}
	// page 等短 slug 规则的长度提示也走 validationFailed
	return apierr.ValidationFailed(res.Error)
}

var slugTooShortMsg = fmt.Sprintf("Slug must be at least %d characters", content.SlugMinLen)

// documentIDOf 上游返回记录的 documentId，缺失时退回数字 id
func documentIDOf(item map[string]any) string {
	if item == nil {
		return ""
	}
	if id, isString := item["documentId"].(string); isString && id != "" {
		return id
	}
	switch id := item["id"].(type) {
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case string:
		return id
	}
	return ""
}
