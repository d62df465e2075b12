package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"markket_cms_v1/internal/config"
	"markket_cms_v1/internal/content"
	"markket_cms_v1/internal/controller"
	"markket_cms_v1/internal/middleware"
	"markket_cms_v1/internal/model"
	"markket_cms_v1/internal/quota"
	"markket_cms_v1/internal/repository"
	"markket_cms_v1/internal/router"
	"markket_cms_v1/internal/service"
	"markket_cms_v1/internal/task"
	"markket_cms_v1/pkg/database"
	"markket_cms_v1/pkg/logger"
	"markket_cms_v1/pkg/metrics"
	"markket_cms_v1/pkg/net"
	"markket_cms_v1/pkg/strapi"
)

func main() {
	// 1. 加载配置
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.DevMode)
	defer logger.Sync()

	if !cfg.DevMode {
		gin.SetMode(gin.ReleaseMode)
	}
	if !cfg.IsConfigPresent() {
		logger.L().Warn("MARKKET_API / MARKKET_API_KEY 未配置，所有业务请求将返回 400")
	}

	// 2. 初始化审计库
	db := initDatabase(cfg)

	// 3. 初始化依赖
	deps := initDependencies(cfg, db)
	defer deps.Close()

	// 4. 启动定时任务
	tasks := initTasks(cfg, deps)
	defer tasks.Stop()

	// 5. 初始化路由
	r := router.SetupRouter(deps.Controllers, router.Options{
		Auth:            deps.Services.Auth,
		Registry:        deps.Registry,
		Metrics:         deps.Metrics,
		ConfigPresent:   cfg.IsConfigPresent(),
		UpstreamHealthy: tasks.UpstreamHealthy(),
		Tasks:           tasks.Status,
	})

	// 6. 启动服务
	startServer(r, cfg.Server)
}

// ==================== 依赖容器 ====================

// Dependencies 依赖容器
type Dependencies struct {
	DB          *gorm.DB
	Repos       *Repositories
	Dispatcher  net.Dispatcher
	Upstream    *strapi.Client
	Registry    *content.Registry
	Metrics     *metrics.Metrics
	Locker      quota.Locker
	Controllers *router.Controllers
	Services    *Services

	closers []func() error
}

// Repositories 仓库集合
type Repositories struct {
	AuditLog repository.AuditLogRepository
}

// Services 服务集合
type Services struct {
	Auth    *service.AuthService
	Audit   *service.AuditService
	Archive *service.ArchiveService
	Store   *service.StoreService
	CMS     *service.CMSService
	Proxy   *service.ProxyService
}

// Close 释放外部连接
func (d *Dependencies) Close() {
	for _, closeFn := range d.closers {
		if err := closeFn(); err != nil {
			logger.L().Warnf("资源释放失败: %v", err)
		}
	}
}

// ==================== 初始化函数 ====================

// initDatabase 初始化审计库；失败时审计降级为只记日志
func initDatabase(cfg *config.Config) *gorm.DB {
	db, err := database.InitDB(database.Config{
		Driver: cfg.Database.Driver,
		DSN:    cfg.Database.DSN,
		Debug:  cfg.DevMode,
	}, &model.AuditLog{})
	if err != nil {
		logger.L().Errorf("审计库初始化失败，审计日志将不落库: %v", err)
		return nil
	}
	middleware.RegisterAuditCallbacks(db)
	return db
}

// initDependencies 初始化所有依赖
func initDependencies(cfg *config.Config, db *gorm.DB) *Dependencies {
	deps := &Dependencies{DB: db}

	// -------- Repo 层 --------
	deps.Repos = initRepositories(db)

	// -------- 基础设施 --------
	deps.Metrics = metrics.NewMetrics(nil)

	dispatcher, err := net.NewDispatcher(net.Options{
		Timeout:  cfg.Upstream.Timeout,
		ProxyURL: cfg.Upstream.HTTPProxy,
		Observer: deps.Metrics,
	})
	if err != nil {
		logger.L().Fatalf("上游 HTTP 客户端初始化失败: %v", err)
	}
	deps.Dispatcher = dispatcher
	deps.Upstream = strapi.NewClient(cfg.Upstream.BaseURL, cfg.Upstream.AdminKey, dispatcher.Client())
	deps.Registry = content.NewRegistry(cfg.Quota.Limits)
	deps.Locker = initLocker(cfg, deps)

	// -------- 业务服务 --------
	audit := service.NewAuditService(deps.Repos.AuditLog, deps.Metrics)
	archive := initArchiveService(cfg)
	stores := service.NewStoreService(deps.Upstream, deps.Registry, service.StoreOptions{
		MaxStores: cfg.Quota.MaxStoresPerUser,
		CacheTTL:  cfg.Upstream.StoreCacheTTL,
	}, deps.Locker, audit, archive, deps.Metrics)

	deps.Services = &Services{
		Auth:    service.NewAuthService(deps.Upstream, cfg.IsConfigPresent(), deps.Metrics),
		Audit:   audit,
		Archive: archive,
		Store:   stores,
		CMS:     service.NewCMSService(deps.Upstream, stores, deps.Locker, audit, archive, deps.Metrics),
		Proxy:   service.NewProxyService(dispatcher, cfg.Upstream.BaseURL, cfg.Upstream.AdminKey),
	}

	// -------- Controller 层 --------
	deps.Controllers = initControllers(deps.Services)
	return deps
}

// initRepositories 初始化所有仓库
func initRepositories(db *gorm.DB) *Repositories {
	repos := &Repositories{}
	if db != nil {
		repos.AuditLog = repository.NewAuditLogRepository(db)
	}
	return repos
}

// initLocker 配置了 Redis 时使用分布式锁，否则进程内锁
func initLocker(cfg *config.Config, deps *Dependencies) quota.Locker {
	if cfg.Quota.RedisAddr == "" {
		logger.L().Info("配额锁: 进程内 (单实例部署)")
		return quota.NewMemoryLocker()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	locker, err := quota.NewRedisLocker(ctx, cfg.Quota.RedisAddr, cfg.Quota.RedisPassword, cfg.Quota.LockTTL)
	if err != nil {
		logger.L().Fatalf("配额锁 Redis 连接失败 (%s): %v", cfg.Quota.RedisAddr, err)
	}
	deps.closers = append(deps.closers, locker.Close)
	logger.L().Infof("配额锁: Redis %s", cfg.Quota.RedisAddr)
	return locker
}

// initArchiveService 初始化删除前归档；失败时不归档
func initArchiveService(cfg *config.Config) *service.ArchiveService {
	provider, err := service.NewArchiveProvider(service.ArchiveConfig{
		Provider:  cfg.Archive.Provider,
		Bucket:    cfg.Archive.Bucket,
		Region:    cfg.Archive.Region,
		AccessKey: cfg.Archive.AccessKey,
		SecretKey: cfg.Archive.SecretKey,
		Endpoint:  cfg.Archive.Endpoint,
		BasePath:  cfg.Archive.BasePath,
	})
	if err != nil {
		logger.L().Warnf("警告: 归档服务初始化失败，删除前不再归档: %v", err)
		return service.NewArchiveService(nil)
	}
	return service.NewArchiveService(provider)
}

// initControllers 初始化所有控制器
func initControllers(svc *Services) *router.Controllers {
	return &router.Controllers{
		CMS:   controller.NewCMSController(svc.CMS),
		Store: controller.NewStoreController(svc.Store),
		Proxy: controller.NewProxyController(svc.Proxy),
	}
}

// ==================== 定时任务 ====================

// initTasks 初始化定时任务
func initTasks(cfg *config.Config, deps *Dependencies) *task.TaskManager {
	taskDeps := &task.TaskManagerDeps{}
	if deps.Repos.AuditLog != nil {
		taskDeps.AuditRepo = deps.Repos.AuditLog
	}
	if cfg.IsConfigPresent() {
		taskDeps.Upstream = deps.Upstream
	}

	tm := task.NewTaskManager(taskDeps, &task.TaskManagerConfig{
		RetentionDays: cfg.Audit.RetentionDays,
		CleanupCron:   cfg.Audit.CleanupCron,
		ProbeCron:     cfg.Upstream.ProbeCron,
	})
	if err := tm.Start(); err != nil {
		logger.L().Fatalf("定时任务启动失败: %v", err)
	}
	return tm
}

// ==================== 服务启动 ====================

// startServer 启动服务
func startServer(r *gin.Engine, cfg config.ServerConfig) {
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	// 异步启动服务
	go func() {
		logger.L().Infof("服务启动在 :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.L().Fatalf("服务启动失败: %v", err)
		}
	}()

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.L().Info("正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.L().Errorf("服务强制关闭: %v", err)
		return
	}

	logger.L().Info("服务已退出")
}
