package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// 提醒投递状态
const (
	ReminderPending   = 0 // 待投递
	ReminderDelivered = 1 // 已投递
	ReminderExpired   = 2 // 过期作废（超时未能送达）
)

// 提醒来源，语音工具按来源区分闹钟、倒计时和普通提醒
const (
	ReminderSourceVoice = "voice"
	ReminderSourceAPI   = "api"
	ReminderSourceAlarm = "alarm"
	ReminderSourceTimer = "timer"
)

// Reminder 定时提醒，由后台调度器播报到在线设备
type Reminder struct {
	BaseModel
	UserID         uint      `json:"userId" gorm:"index;not null"`
	DeviceID       string    `json:"deviceId" gorm:"size:64;index;not null"`
	RemindAt       time.Time `json:"remindAt" gorm:"index;not null"`
	Message        string    `json:"message" gorm:"size:512;not null"`
	Delivered      int       `json:"delivered" gorm:"default:0;index"`
	IsRecurring    bool      `json:"isRecurring" gorm:"default:false"`
	RecurrenceRule string    `json:"recurrenceRule,omitempty" gorm:"size:64"`
	Source         string    `json:"source,omitempty" gorm:"size:16;default:voice"`
}

func (Reminder) TableName() string {
	return "reminders"
}

// ReminderForm 创建提醒请求体
type ReminderForm struct {
	DeviceID       string    `json:"deviceId" binding:"required"`
	RemindAt       time.Time `json:"remindAt" binding:"required"`
	Message        string    `json:"message" binding:"required"`
	IsRecurring    bool      `json:"isRecurring"`
	RecurrenceRule string    `json:"recurrenceRule"`
}

func CreateReminder(db *gorm.DB, reminder *Reminder) error {
	if reminder.Message == "" {
		return errors.New("reminder message cannot be empty")
	}
	if reminder.DeviceID == "" {
		return errors.New("reminder device cannot be empty")
	}
	if reminder.Source == "" {
		reminder.Source = ReminderSourceVoice
	}
	return db.Create(reminder).Error
}

// GetDueReminders 到期且未投递的提醒，按时间先后
func GetDueReminders(db *gorm.DB, now time.Time) ([]Reminder, error) {
	var reminders []Reminder
	err := db.Where("remind_at <= ? AND delivered = ?", now, ReminderPending).
		Order("remind_at ASC").
		Find(&reminders).Error
	return reminders, err
}

// GetUserReminders 用户的待投递提醒列表
func GetUserReminders(db *gorm.DB, userID uint) ([]Reminder, error) {
	var reminders []Reminder
	err := db.Where("user_id = ? AND delivered = ?", userID, ReminderPending).
		Order("remind_at ASC").
		Find(&reminders).Error
	return reminders, err
}

// GetUserRemindersBySource 按来源筛选的待投递提醒
func GetUserRemindersBySource(db *gorm.DB, userID uint, source string) ([]Reminder, error) {
	var reminders []Reminder
	err := db.Where("user_id = ? AND delivered = ? AND source = ?", userID, ReminderPending, source).
		Order("remind_at ASC").
		Find(&reminders).Error
	return reminders, err
}

// DeleteNearestPendingReminder 删除用户最近一条待投递提醒，source 为空时不限来源。
// 返回被删的提醒，没有可删的返回 (nil, nil)。
func DeleteNearestPendingReminder(db *gorm.DB, userID uint, source string) (*Reminder, error) {
	query := db.Where("user_id = ? AND delivered = ?", userID, ReminderPending)
	if source != "" {
		query = query.Where("source = ?", source)
	}
	var reminder Reminder
	err := query.Order("remind_at ASC").First(&reminder).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if err := db.Delete(&reminder).Error; err != nil {
		return nil, err
	}
	return &reminder, nil
}

// MarkReminderDelivered 投递成功
func MarkReminderDelivered(db *gorm.DB, id uint) error {
	return db.Model(&Reminder{}).Where("id = ?", id).
		Update("delivered", ReminderDelivered).Error
}

// MarkReminderExpired 超时作废
func MarkReminderExpired(db *gorm.DB, id uint) error {
	return db.Model(&Reminder{}).Where("id = ?", id).
		Update("delivered", ReminderExpired).Error
}

// DeleteReminder 删除用户自己的提醒
func DeleteReminder(db *gorm.DB, userID, id uint) error {
	result := db.Where("user_id = ? AND id = ?", userID, id).Delete(&Reminder{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.New("reminder not found")
	}
	return nil
}

// CountPendingReminders 待投递数量，日报用
func CountPendingReminders(db *gorm.DB, userID uint) (int64, error) {
	var count int64
	err := db.Model(&Reminder{}).
		Where("user_id = ? AND delivered = ?", userID, ReminderPending).
		Count(&count).Error
	return count, err
}
