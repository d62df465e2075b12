package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"gorm.io/datatypes"

	"markket_cms_v1/internal/api/apierr"
	"markket_cms_v1/internal/model"
	"markket_cms_v1/internal/repository"
	"markket_cms_v1/pkg/logger"
	"markket_cms_v1/pkg/metrics"
	"markket_cms_v1/pkg/strapi"
)

// AuditService 记录每一次发往上游的写操作
// repo 为 nil 时只记指标不落库
type AuditService struct {
	repo    repository.AuditLogRepository
	metrics *metrics.Metrics
}

func NewAuditService(repo repository.AuditLogRepository, m *metrics.Metrics) *AuditService {
	return &AuditService{repo: repo, metrics: m}
}

// AuditEntry 一次写操作的结果
type AuditEntry struct {
	User       *strapi.User
	Kind       string
	StoreID    string
	ItemID     string
	Action     string
	Payload    any
	ArchiveURL string
	Started    time.Time
	Status     int   // 成功时的状态码
	Err        error // 失败原因
}

// Record 写入审计日志；失败只打日志，不影响主流程
func (s *AuditService) Record(ctx context.Context, e AuditEntry) {
	if s == nil {
		return
	}

	result := model.AuditStatusSuccess
	status := e.Status
	errMsg := ""
	if e.Err != nil {
		result = model.AuditStatusFailed
		errMsg = truncate(e.Err.Error(), 1024)
		status = statusOf(e.Err)
	}
	s.metrics.RecordWrite(e.Kind, e.Action, result)

	if s.repo == nil {
		return
	}

	log := &model.AuditLog{
		StoreID:        e.StoreID,
		ContentType:    e.Kind,
		ItemID:         e.ItemID,
		Action:         e.Action,
		UpstreamStatus: status,
		Status:         result,
		ErrorMsg:       errMsg,
		ArchiveURL:     e.ArchiveURL,
	}
	if e.User != nil {
		log.UserID = e.User.ID
	}
	if !e.Started.IsZero() {
		log.DurationMs = time.Since(e.Started).Milliseconds()
	}
	if e.Payload != nil {
		if raw, err := json.Marshal(e.Payload); err == nil {
			log.Payload = datatypes.JSON(raw)
		}
	}

	// 请求结束后 ctx 会被取消，审计写入不能跟着失败
	if err := s.repo.Create(context.WithoutCancel(ctx), log); err != nil {
		logger.L().Warnf("[Audit] write failed (%s %s): %v", e.Action, e.Kind, err)
	}
}

// Trail 查询店铺的审计记录
func (s *AuditService) Trail(ctx context.Context, storeIDs []string, contentType string, page, pageSize int) ([]model.AuditLog, int64, error) {
	if s == nil || s.repo == nil {
		return []model.AuditLog{}, 0, nil
	}
	return s.repo.List(ctx, repository.AuditLogFilter{
		StoreIDs:    storeIDs,
		ContentType: contentType,
		Page:        page,
		PageSize:    pageSize,
	})
}

// Stats 店铺写操作汇总，storeIDs 为同一店铺的 id 与 documentId
func (s *AuditService) Stats(ctx context.Context, storeIDs []string, since time.Time) ([]repository.AuditActionStats, error) {
	if s == nil || s.repo == nil {
		return []repository.AuditActionStats{}, nil
	}
	return s.repo.GetStatsByStore(ctx, storeIDs, since)
}

func statusOf(err error) int {
	if e, isAPIErr := apierr.As(err); isAPIErr {
		return e.Status
	}
	var se *strapi.StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return http.StatusBadGateway
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
