package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"markket_cms_v1/internal/content"
	"markket_cms_v1/internal/model"
	"markket_cms_v1/internal/quota"
	"markket_cms_v1/internal/repository"
	"markket_cms_v1/pkg/metrics"
	"markket_cms_v1/pkg/strapi"
	"markket_cms_v1/pkg/strapi/strapitest"
)

const testAdminKey = "admin-key"

// ==================== 测试辅助 ====================

type testEnv struct {
	srv       *strapitest.Server
	client    *strapi.Client
	registry  *content.Registry
	auditRepo repository.AuditLogRepository
	audit     *AuditService
	archive   *ArchiveService
	stores    *StoreService
	cms       *CMSService
	metrics   *metrics.Metrics
}

type envOptions struct {
	limits    map[string]int
	maxStores int
	archive   ArchiveProvider
}

func setupAuditTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("连接测试数据库失败: %v", err)
	}
	// :memory: 每个连接一个库，必须限制为单连接
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&model.AuditLog{}))
	return db
}

func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()

	srv := strapitest.NewServer(testAdminKey)
	t.Cleanup(srv.Close)

	if opts.maxStores == 0 {
		opts.maxStores = 3
	}

	m := metrics.NewMetrics(nil)
	client := strapi.NewClient(srv.URL, testAdminKey, nil)
	registry := content.NewRegistry(opts.limits)
	locker := quota.NewMemoryLocker()
	auditRepo := repository.NewAuditLogRepository(setupAuditTestDB(t))
	audit := NewAuditService(auditRepo, m)
	archive := NewArchiveService(opts.archive)

	stores := NewStoreService(client, registry, StoreOptions{MaxStores: opts.maxStores, CacheTTL: 30 * time.Second}, locker, audit, archive, m)
	cms := NewCMSService(client, stores, locker, audit, archive, m)

	return &testEnv{
		srv:       srv,
		client:    client,
		registry:  registry,
		auditRepo: auditRepo,
		audit:     audit,
		archive:   archive,
		stores:    stores,
		cms:       cms,
		metrics:   m,
	}
}

func (e *testEnv) kind(t *testing.T, name string) *content.Descriptor {
	t.Helper()
	d, found := e.registry.Lookup(name)
	require.True(t, found, name)
	return d
}

func testUser(id int64) *strapi.User {
	return &strapi.User{ID: id, DocumentID: "user-doc", Username: "tester"}
}
