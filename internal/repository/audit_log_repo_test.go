package repository

import (
	"context"
	"testing"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"markket_cms_v1/internal/model"
)

func setupAuditLogTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("连接测试数据库失败: %v", err)
	}

	err = db.AutoMigrate(&model.AuditLog{})
	if err != nil {
		t.Fatalf("数据库迁移失败: %v", err)
	}

	return db
}

func TestAuditLogRepo_Create(t *testing.T) {
	db := setupAuditLogTestDB(t)
	repo := NewAuditLogRepository(db)
	ctx := context.Background()

	log := &model.AuditLog{
		UserID:         7,
		StoreID:        "store-one",
		ContentType:    "article",
		ItemID:         "article-doc-1",
		Action:         model.AuditActionCreate,
		UpstreamStatus: 201,
		DurationMs:     35,
		Status:         model.AuditStatusSuccess,
		Payload:        datatypes.JSON(`{"Title":"Hello","stores":["store-one"]}`),
	}

	err := repo.Create(ctx, log)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if log.ID == 0 {
		t.Error("Create() 未设置 ID")
	}

	var got model.AuditLog
	if err := db.First(&got, log.ID).Error; err != nil {
		t.Fatalf("First() error = %v", err)
	}
	if got.ContentType != "article" {
		t.Errorf("ContentType = %s, want article", got.ContentType)
	}
	if string(got.Payload) != `{"Title":"Hello","stores":["store-one"]}` {
		t.Errorf("Payload = %s", got.Payload)
	}
}

func TestAuditLogRepo_List(t *testing.T) {
	db := setupAuditLogTestDB(t)
	repo := NewAuditLogRepository(db)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		repo.Create(ctx, &model.AuditLog{StoreID: "store-one", ContentType: "product", Action: model.AuditActionCreate, Status: model.AuditStatusSuccess})
	}
	repo.Create(ctx, &model.AuditLog{StoreID: "1", ContentType: "page", Action: model.AuditActionDelete, Status: model.AuditStatusSuccess})
	repo.Create(ctx, &model.AuditLog{StoreID: "store-two", ContentType: "product", Action: model.AuditActionCreate, Status: model.AuditStatusSuccess})

	list, total, err := repo.List(ctx, AuditLogFilter{StoreIDs: []string{"store-one", "1"}, PageSize: 4})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 6 {
		t.Errorf("total = %d, want 6", total)
	}
	if len(list) != 4 {
		t.Errorf("len(list) = %d, want 4", len(list))
	}
	// 最新的在前
	if list[0].ContentType != "page" {
		t.Errorf("list[0].ContentType = %s, want page", list[0].ContentType)
	}

	list, total, _ = repo.List(ctx, AuditLogFilter{StoreIDs: []string{"store-one"}, Action: model.AuditActionDelete})
	if total != 0 || len(list) != 0 {
		t.Errorf("total = %d, want 0", total)
	}
}

func TestAuditLogRepo_GetStatsByStore(t *testing.T) {
	db := setupAuditLogTestDB(t)
	repo := NewAuditLogRepository(db)
	ctx := context.Background()

	logs := []*model.AuditLog{
		{StoreID: "s1", ContentType: "article", Action: model.AuditActionCreate, Status: model.AuditStatusSuccess},
		{StoreID: "s1", ContentType: "article", Action: model.AuditActionCreate, Status: model.AuditStatusFailed},
		{StoreID: "s1", ContentType: "article", Action: model.AuditActionDelete, Status: model.AuditStatusSuccess},
		{StoreID: "s1", ContentType: "track", Action: model.AuditActionUpdate, Status: model.AuditStatusSuccess},
		{StoreID: "7", ContentType: "article", Action: model.AuditActionCreate, Status: model.AuditStatusSuccess},
		{StoreID: "s2", ContentType: "article", Action: model.AuditActionCreate, Status: model.AuditStatusSuccess},
	}
	for _, l := range logs {
		repo.Create(ctx, l)
	}

	// 同一店铺以 documentId 和数字 id 记录的日志合并统计
	stats, err := repo.GetStatsByStore(ctx, []string{"s1", "7"}, time.Time{})
	if err != nil {
		t.Fatalf("GetStatsByStore() error = %v", err)
	}
	if len(stats) != 3 {
		t.Fatalf("len(stats) = %d, want 3", len(stats))
	}

	first := stats[0]
	if first.ContentType != "article" || first.Action != "create" {
		t.Errorf("stats[0] = %+v", first)
	}
	if first.Total != 3 || first.Failed != 1 {
		t.Errorf("Total = %d, Failed = %d, want 3, 1", first.Total, first.Failed)
	}

	empty, err := repo.GetStatsByStore(ctx, nil, time.Time{})
	if err != nil || len(empty) != 0 {
		t.Errorf("空店铺集合: stats = %v, err = %v", empty, err)
	}
}

func TestAuditLogRepo_PurgeBefore(t *testing.T) {
	db := setupAuditLogTestDB(t)
	repo := NewAuditLogRepository(db)
	ctx := context.Background()

	old := &model.AuditLog{StoreID: "s1", ContentType: "article", Action: model.AuditActionCreate}
	repo.Create(ctx, old)
	db.Model(old).UpdateColumn("created_at", time.Now().AddDate(0, 0, -40))

	fresh := &model.AuditLog{StoreID: "s1", ContentType: "article", Action: model.AuditActionUpdate}
	repo.Create(ctx, fresh)

	n, err := repo.PurgeBefore(ctx, time.Now().AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("PurgeBefore() error = %v", err)
	}
	if n != 1 {
		t.Errorf("purged = %d, want 1", n)
	}

	// 物理删除，Unscoped 也查不到
	var count int64
	db.Unscoped().Model(&model.AuditLog{}).Count(&count)
	if count != 1 {
		t.Errorf("remaining = %d, want 1", count)
	}
}
