package model

import "gorm.io/datatypes"

// AuditLog 上游写操作审计日志
type AuditLog struct {
	BaseModel

	// 操作者与对象
	UserID      int64  `gorm:"index;comment:操作用户ID"`
	StoreID     string `gorm:"size:64;index;comment:店铺ID或documentId"`
	ContentType string `gorm:"size:32;index;comment:内容类型"`
	ItemID      string `gorm:"size:64;comment:内容documentId"`
	Action      string `gorm:"size:16;index;comment:操作(create/update/delete)"`

	// 上游结果
	UpstreamStatus int   `gorm:"comment:上游HTTP状态码"`
	DurationMs     int64 `gorm:"comment:耗时(毫秒)"`

	// 状态
	Status   string `gorm:"size:16;index;default:success;comment:状态(success/failed)"`
	ErrorMsg string `gorm:"size:1024;comment:错误信息"`

	// 发往上游的数据 / 删除前快照的归档地址
	Payload    datatypes.JSON `gorm:"comment:上游payload"`
	ArchiveURL string         `gorm:"size:512;comment:删除前归档地址"`
}

func (AuditLog) TableName() string {
	return "cms_audit_logs"
}

// ==================== 操作常量 ====================

const (
	AuditActionCreate = "create"
	AuditActionUpdate = "update"
	AuditActionDelete = "delete"
)

// ==================== 状态常量 ====================

const (
	AuditStatusSuccess = "success"
	AuditStatusFailed  = "failed"
)
