package task

import "markket_cms_v1/pkg/logger"

// ==================== TaskManager 后台任务管理器 ====================

// TaskManager 统一管理后台任务
// 管理范围：审计日志清理、上游巡检
type TaskManager struct {
	cleanupTask *AuditCleanupTask
	probeTask   *UpstreamProbeTask
}

// TaskManagerDeps 任务管理器依赖
type TaskManagerDeps struct {
	AuditRepo AuditPurger
	Upstream  HealthChecker
}

// TaskManagerConfig 任务管理器配置
type TaskManagerConfig struct {
	// 审计清理
	RetentionDays int
	CleanupCron   string

	// 上游巡检
	ProbeCron string
}

// NewTaskManager 创建任务管理器，缺少依赖或配置的任务不启用
func NewTaskManager(deps *TaskManagerDeps, cfg *TaskManagerConfig) *TaskManager {
	tm := &TaskManager{}

	if deps.AuditRepo != nil && cfg.CleanupCron != "" && cfg.RetentionDays > 0 {
		tm.cleanupTask = NewAuditCleanupTask(deps.AuditRepo, cfg.RetentionDays, cfg.CleanupCron)
	}

	if deps.Upstream != nil && cfg.ProbeCron != "" {
		tm.probeTask = NewUpstreamProbeTask(deps.Upstream, cfg.ProbeCron)
	}

	return tm
}

// ==================== 生命周期管理 ====================

// Start 启动所有任务，任一任务 cron 表达式非法时返回错误
func (tm *TaskManager) Start() error {
	logger.L().Info("[TaskManager] 正在启动后台任务...")

	if tm.cleanupTask != nil {
		if err := tm.cleanupTask.Start(); err != nil {
			return err
		}
	}
	if tm.probeTask != nil {
		if err := tm.probeTask.Start(); err != nil {
			return err
		}
	}

	logger.L().Info("[TaskManager] 后台任务已全部启动")
	return nil
}

// Stop 停止所有任务
func (tm *TaskManager) Stop() {
	logger.L().Info("[TaskManager] 正在停止后台任务...")

	if tm.cleanupTask != nil {
		tm.cleanupTask.Stop()
	}
	if tm.probeTask != nil {
		tm.probeTask.Stop()
	}

	logger.L().Info("[TaskManager] 后台任务已全部停止")
}

// ==================== 状态查询 ====================

// UpstreamHealthy 上游巡检结果；未启用巡检时返回 nil
func (tm *TaskManager) UpstreamHealthy() func() bool {
	if tm.probeTask == nil {
		return nil
	}
	return tm.probeTask.Healthy
}

// Status 获取任务状态，启用巡检时附带最近一次探测的状态码
func (tm *TaskManager) Status() map[string]any {
	status := map[string]any{
		"audit_cleanup":  tm.cleanupTask != nil,
		"upstream_probe": tm.probeTask != nil,
	}
	if tm.probeTask != nil {
		status["upstream_status"] = tm.probeTask.LastStatus()
	}
	return status
}
