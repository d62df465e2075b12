package task

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"markket_cms_v1/pkg/logger"
)

// AuditPurger 审计日志清理所需的仓储能力
type AuditPurger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditCleanupTask 按保留天数定期清理审计日志
type AuditCleanupTask struct {
	repo      AuditPurger
	retention time.Duration
	spec      string
	Cron      *cron.Cron

	now func() time.Time
}

func NewAuditCleanupTask(repo AuditPurger, retentionDays int, spec string) *AuditCleanupTask {
	return &AuditCleanupTask{
		repo:      repo,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		spec:      spec,
		Cron:      cron.New(cron.WithSeconds()), // 支持秒级控制
		now:       time.Now,
	}
}

// Start 启动定时任务
func (t *AuditCleanupTask) Start() error {
	_, err := t.Cron.AddFunc(t.spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		t.cleanupJob(ctx)
	})
	if err != nil {
		return fmt.Errorf("无法启动审计清理任务 (%s): %w", t.spec, err)
	}

	// 首次执行
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		logger.L().Info("[AuditCleanup] 服务启动，正在执行首次清理...")
		t.cleanupJob(ctx)
	}()

	t.Cron.Start()
	logger.L().Infof("[AuditCleanup] 任务已启动 (cron=%s, 保留 %s)", t.spec, t.retention)
	return nil
}

// Stop 停止调度并等待正在执行的任务结束
func (t *AuditCleanupTask) Stop() {
	<-t.Cron.Stop().Done()
}

// RunOnce 立即清理一次，返回删除条数
func (t *AuditCleanupTask) RunOnce(ctx context.Context) (int64, error) {
	cutoff := t.now().Add(-t.retention)
	return t.repo.PurgeBefore(ctx, cutoff)
}

func (t *AuditCleanupTask) cleanupJob(ctx context.Context) {
	purged, err := t.RunOnce(ctx)
	if err != nil {
		logger.L().Errorf("[AuditCleanup] 清理失败: %v", err)
		return
	}
	logger.L().Infow("[AuditCleanup] 本轮清理完成", "purged", purged)
}
