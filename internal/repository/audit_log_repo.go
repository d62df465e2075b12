package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"markket_cms_v1/internal/model"
)

// ==================== 仓储接口 ====================

// AuditLogRepository 审计日志仓储接口
type AuditLogRepository interface {
	Create(ctx context.Context, log *model.AuditLog) error
	List(ctx context.Context, filter AuditLogFilter) ([]model.AuditLog, int64, error)

	// 统计查询
	// storeIDs 是同一店铺的 id 与 documentId
	GetStatsByStore(ctx context.Context, storeIDs []string, since time.Time) ([]AuditActionStats, error)

	// PurgeBefore 物理删除 cutoff 之前的日志，返回删除条数
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditLogFilter 列表过滤条件
type AuditLogFilter struct {
	StoreIDs    []string // 店铺可能以 id 或 documentId 记录
	ContentType string
	Action      string
	Page        int
	PageSize    int
}

// ==================== 统计结构 ====================

// AuditActionStats 按 内容类型 + 操作 汇总
type AuditActionStats struct {
	ContentType string `json:"content_type"`
	Action      string `json:"action"`
	Total       int64  `json:"total"`
	Failed      int64  `json:"failed"`
}

// ==================== 仓储实现 ====================

type auditLogRepo struct {
	db *gorm.DB
}

// NewAuditLogRepository 创建审计日志仓储
func NewAuditLogRepository(db *gorm.DB) AuditLogRepository {
	return &auditLogRepo{db: db}
}

func (r *auditLogRepo) Create(ctx context.Context, log *model.AuditLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *auditLogRepo) List(ctx context.Context, filter AuditLogFilter) ([]model.AuditLog, int64, error) {
	var list []model.AuditLog
	var total int64

	query := r.db.WithContext(ctx).Model(&model.AuditLog{})
	if len(filter.StoreIDs) > 0 {
		query = query.Where("store_id IN ?", filter.StoreIDs)
	}
	if filter.ContentType != "" {
		query = query.Where("content_type = ?", filter.ContentType)
	}
	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	err := query.Order("id DESC").
		Offset((filter.Page - 1) * filter.PageSize).
		Limit(filter.PageSize).
		Find(&list).Error

	return list, total, err
}

func (r *auditLogRepo) GetStatsByStore(ctx context.Context, storeIDs []string, since time.Time) ([]AuditActionStats, error) {
	stats := []AuditActionStats{}
	if len(storeIDs) == 0 {
		return stats, nil
	}

	query := r.db.WithContext(ctx).Model(&model.AuditLog{}).Where("store_id IN ?", storeIDs)
	if !since.IsZero() {
		query = query.Where("created_at >= ?", since)
	}

	err := query.Select(`
		content_type,
		action,
		COUNT(*) as total,
		SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END) as failed
	`).
		Group("content_type, action").
		Order("content_type ASC, action ASC").
		Scan(&stats).Error

	return stats, err
}

func (r *auditLogRepo) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Unscoped().
		Where("created_at < ?", cutoff).
		Delete(&model.AuditLog{})
	return res.RowsAffected, res.Error
}
