package task

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"markket_cms_v1/pkg/logger"
)

// healthPath Strapi 内置健康检查，正常返回 204
const healthPath = "/_health"

// HealthChecker 上游探测所需的能力
type HealthChecker interface {
	Get(ctx context.Context, path string, query url.Values) (int, []byte, error)
}

// UpstreamProbeTask 上游巡检任务
// 结果只用于 /healthz 展示，不影响请求处理
type UpstreamProbeTask struct {
	upstream HealthChecker
	spec     string
	Cron     *cron.Cron

	healthy    atomic.Bool
	lastStatus atomic.Int64
}

func NewUpstreamProbeTask(upstream HealthChecker, spec string) *UpstreamProbeTask {
	return &UpstreamProbeTask{
		upstream: upstream,
		spec:     spec,
		Cron:     cron.New(cron.WithSeconds()),
	}
}

// Start 启动巡检
func (p *UpstreamProbeTask) Start() error {
	_, err := p.Cron.AddFunc(p.spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		p.Execute(ctx)
	})
	if err != nil {
		return fmt.Errorf("无法启动上游巡检 (%s): %w", p.spec, err)
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		p.Execute(ctx)
	}()

	p.Cron.Start()
	logger.L().Infof("[UpstreamProbe] 巡检任务已启动 (cron=%s)", p.spec)
	return nil
}

func (p *UpstreamProbeTask) Stop() {
	<-p.Cron.Stop().Done()
}

// Execute 执行一次探测，5xx 或网络错误视为不可用
func (p *UpstreamProbeTask) Execute(ctx context.Context) bool {
	status, _, err := p.upstream.Get(ctx, healthPath, nil)
	p.lastStatus.Store(int64(status))

	healthy := err == nil && status < http.StatusInternalServerError
	if p.healthy.Swap(healthy) != healthy {
		if healthy {
			logger.L().Infow("[UpstreamProbe] 上游恢复", "status", status)
		} else {
			logger.L().Warnw("[UpstreamProbe] 上游不可用", "status", status, "error", err)
		}
	}
	return healthy
}

// Healthy 最近一次探测结果
func (p *UpstreamProbeTask) Healthy() bool {
	return p.healthy.Load()
}

// LastStatus 最近一次探测的 HTTP 状态码，0 表示请求未到达
func (p *UpstreamProbeTask) LastStatus() int {
	return int(p.lastStatus.Load())
}
