package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ==================== 配置结构 ====================

// Config 进程级配置，启动时加载一次，之后只读
type Config struct {
	Server   ServerConfig
	Upstream UpstreamConfig
	Quota    QuotaConfig
	Database DatabaseConfig
	Audit    AuditConfig
	Archive  ArchiveConfig

	LogLevel string
	DevMode  bool
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Port            string
	ShutdownTimeout time.Duration
}

// UpstreamConfig Strapi 上游配置
type UpstreamConfig struct {
	BaseURL   string        // MARKKET_API
	AdminKey  string        // MARKKET_API_KEY，所有提权调用都使用它
	Timeout   time.Duration // 单次上游请求超时
	HTTPProxy string        // 出口代理 (可选)

	StoreCacheTTL time.Duration // 店铺列表缓存，最长 30s
	ProbeCron     string        // 上游健康巡检，为空时不启动
}

// QuotaConfig 配额配置
type QuotaConfig struct {
	MaxStoresPerUser int
	Limits           map[string]int // contentType -> 上限，0 表示不限

	RedisAddr     string // 为空时使用进程内锁
	RedisPassword string
	LockTTL       time.Duration
}

// DatabaseConfig 审计库配置
type DatabaseConfig struct {
	Driver string // sqlite | postgres
	DSN    string
}

// AuditConfig 审计日志保留策略
type AuditConfig struct {
	RetentionDays int
	CleanupCron   string
}

// ArchiveConfig 删除前归档配置
type ArchiveConfig struct {
	Provider  string // none | local | s3
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	Endpoint  string
	BasePath  string
}

// maxStoreCacheTTL 店铺列表最多缓存 30 秒
const maxStoreCacheTTL = 30 * time.Second

// quotaKinds 支持配额的内容类型
var quotaKinds = []string{"article", "page", "product", "track", "album", "event"}

// ==================== 加载 ====================

// Load 从环境变量 (以及可选的 config.yaml) 加载配置
func Load() *Config {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	// 配置文件可选，不存在时只用 ENV
	_ = v.ReadInConfig()

	return FromViper(v)
}

// FromViper 从 viper 实例构建配置 (测试可直接注入)
func FromViper(v *viper.Viper) *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:            v.GetString("SERVER_PORT"),
			ShutdownTimeout: v.GetDuration("SHUTDOWN_TIMEOUT"),
		},
		Upstream: UpstreamConfig{
			BaseURL:       strings.TrimSpace(v.GetString("MARKKET_API")),
			AdminKey:      strings.TrimSpace(v.GetString("MARKKET_API_KEY")),
			Timeout:       v.GetDuration("UPSTREAM_TIMEOUT"),
			HTTPProxy:     v.GetString("UPSTREAM_HTTP_PROXY"),
			StoreCacheTTL: v.GetDuration("STORE_CACHE_TTL"),
			ProbeCron:     v.GetString("UPSTREAM_PROBE_CRON"),
		},
		Quota: QuotaConfig{
			MaxStoresPerUser: v.GetInt("MAX_STORES_PER_USER"),
			Limits:           make(map[string]int, len(quotaKinds)),
			RedisAddr:        v.GetString("QUOTA_LOCK_REDIS_ADDR"),
			RedisPassword:    v.GetString("QUOTA_LOCK_REDIS_PASSWORD"),
			LockTTL:          v.GetDuration("QUOTA_LOCK_TTL"),
		},
		Database: DatabaseConfig{
			Driver: v.GetString("DB_DRIVER"),
			DSN:    v.GetString("DB_DSN"),
		},
		Audit: AuditConfig{
			RetentionDays: v.GetInt("AUDIT_RETENTION_DAYS"),
			CleanupCron:   v.GetString("AUDIT_CLEANUP_CRON"),
		},
		Archive: ArchiveConfig{
			Provider:  v.GetString("ARCHIVE_PROVIDER"),
			Bucket:    v.GetString("AWS_BUCKET"),
			Region:    v.GetString("AWS_REGION"),
			AccessKey: v.GetString("AWS_ACCESS_KEY_ID"),
			SecretKey: v.GetString("AWS_SECRET_ACCESS_KEY"),
			Endpoint:  v.GetString("ARCHIVE_ENDPOINT"),
			BasePath:  v.GetString("ARCHIVE_BASE_PATH"),
		},
		LogLevel: v.GetString("LOG_LEVEL"),
		DevMode:  v.GetBool("DEV_MODE"),
	}

	for _, kind := range quotaKinds {
		cfg.Quota.Limits[kind] = v.GetInt("QUOTA_" + strings.ToUpper(kind))
	}

	if cfg.Upstream.StoreCacheTTL <= 0 || cfg.Upstream.StoreCacheTTL > maxStoreCacheTTL {
		cfg.Upstream.StoreCacheTTL = maxStoreCacheTTL
	}
	cfg.Upstream.BaseURL = strings.TrimRight(cfg.Upstream.BaseURL, "/")

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SHUTDOWN_TIMEOUT", 30*time.Second)

	v.SetDefault("UPSTREAM_TIMEOUT", 20*time.Second)
	v.SetDefault("STORE_CACHE_TTL", maxStoreCacheTTL)
	v.SetDefault("UPSTREAM_PROBE_CRON", "0 */1 * * * *")

	v.SetDefault("MAX_STORES_PER_USER", 3)
	v.SetDefault("QUOTA_ARTICLE", 0)
	v.SetDefault("QUOTA_PAGE", 12)
	v.SetDefault("QUOTA_PRODUCT", 24)
	v.SetDefault("QUOTA_TRACK", 60)
	v.SetDefault("QUOTA_ALBUM", 12)
	v.SetDefault("QUOTA_EVENT", 24)
	v.SetDefault("QUOTA_LOCK_TTL", 10*time.Second)

	v.SetDefault("DB_DRIVER", "sqlite")
	v.SetDefault("DB_DSN", "markket_audit.db")

	v.SetDefault("AUDIT_RETENTION_DAYS", 30)
	v.SetDefault("AUDIT_CLEANUP_CRON", "0 30 3 * * *")

	v.SetDefault("ARCHIVE_PROVIDER", "none")
	v.SetDefault("ARCHIVE_BASE_PATH", "markket-archive")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DEV_MODE", false)
}

// ==================== 校验 ====================

// IsConfigPresent 上游地址和管理员凭证都已配置
func (c *Config) IsConfigPresent() bool {
	return c != nil && c.Upstream.BaseURL != "" && c.Upstream.AdminKey != ""
}
