package models

import (
	"time"

	"gorm.io/gorm"
)

// 请求上下文键
const (
	DbField   = "_db"   // *gorm.DB，由 middleware.InjectDB 注入
	UserField = "_user" // *User，由 AuthRequired 注入
)

// BaseModel 各表的公共字段
type BaseModel struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime;comment:Creation time"`
	UpdatedAt time.Time `json:"updatedAt,omitempty" gorm:"autoUpdateTime;comment:Update time"`
}

// BeforeCreate 补齐时间戳，手工构造的记录也能入库
func (m *BaseModel) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = now
	}
	return nil
}

// BeforeUpdate 刷新更新时间
func (m *BaseModel) BeforeUpdate(tx *gorm.DB) error {
	m.UpdatedAt = time.Now()
	return nil
}

// Migrate 建表，服务启动时调用
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&Device{},
		&Reminder{},
		&UserPreference{},
		&UserCredential{},
	)
}
