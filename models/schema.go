package models

import (
	"time"

	"gorm.io/gorm"
)

// StateBlob 持久化状态条目 (Key -> JSON Value)
// 配额和健康状态各占一个固定 Key，整体作为 JSON 读写
type StateBlob struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"uniqueIndex;not null" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CallAttemptLog 调用尝试审计日志
// 中间失败也会入库，但只有全部耗尽才对调用方可见
type CallAttemptLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	RequestID string    `gorm:"index" json:"request_id"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	Tier      string    `json:"tier"`
	Success   bool      `json:"success"`
	Status    int       `json:"status"`
	ErrorKind string    `json:"error_kind"`
	ErrorMsg  string    `json:"error_msg"`
	Duration  int64     `json:"duration"` // 毫秒
}

// AutoMigrate 自动迁移数据库结构
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&StateBlob{},
		&CallAttemptLog{},
	)
}
