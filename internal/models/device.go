package models

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/voicebridge-ai/EchoGate/pkg/auth"
)

// Device 接入网关的语音终端，ID 即设备上报的 device-id（通常为 MAC 地址）
type Device struct {
	ID         string `json:"id" gorm:"primaryKey;size:64"`
	UserID     uint   `json:"userId" gorm:"index"`
	DeviceName string `json:"deviceName,omitempty" gorm:"size:128"`
	TokenHash  string `json:"-" gorm:"size:128;not null"`
	Board      string `json:"board,omitempty" gorm:"size:128"`
	AppVersion string `json:"appVersion,omitempty" gorm:"size:64"`

	// 运行状态
	IsOnline      bool       `json:"isOnline" gorm:"default:false;index"`
	LastSeen      *time.Time `json:"lastSeen,omitempty" gorm:"index"`
	LastConnected *time.Time `json:"lastConnected,omitempty"`

	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"autoUpdateTime"`
}

// TableName specifies the table name
func (Device) TableName() string {
	return "devices"
}

// DeviceRegisterForm 注册设备请求体
type DeviceRegisterForm struct {
	DeviceID   string `json:"deviceId" binding:"required"`
	DeviceName string `json:"deviceName"`
	Board      string `json:"board"`
}

// CreateDevice creates a new device record
func CreateDevice(db *gorm.DB, device *Device) error {
	if device.ID == "" {
		return errors.New("device ID cannot be empty")
	}
	if device.TokenHash == "" {
		return errors.New("device token cannot be empty")
	}
	return db.Create(device).Error
}

// GetDeviceByID gets device by ID
func GetDeviceByID(db *gorm.DB, id string) (*Device, error) {
	var device Device
	err := db.Where("id = ?", id).First(&device).Error
	if err != nil {
		return nil, err
	}
	return &device, nil
}

// ValidateDeviceToken 用明文令牌校验设备身份，库里只存 bcrypt 哈希
func ValidateDeviceToken(db *gorm.DB, deviceID, token string) (*Device, error) {
	if deviceID == "" || token == "" {
		return nil, errors.New("invalid device token")
	}
	device, err := GetDeviceByID(db, deviceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("device not found")
		}
		return nil, err
	}
	if !auth.CheckDeviceToken(device.TokenHash, token) {
		return nil, errors.New("invalid device token")
	}
	return device, nil
}

// UpdateDevice updates device information
func UpdateDevice(db *gorm.DB, device *Device) error {
	return db.Save(device).Error
}

// DeleteDevice deletes a device
func DeleteDevice(db *gorm.DB, userID uint, id string) error {
	result := db.Where("user_id = ? AND id = ?", userID, id).Delete(&Device{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.New("device not found")
	}
	return nil
}

// GetUserDevices 获取用户的设备列表
func GetUserDevices(db *gorm.DB, userID uint) ([]Device, error) {
	var devices []Device
	err := db.Where("user_id = ?", userID).Order("last_seen DESC").Find(&devices).Error
	return devices, err
}

// UpdateDeviceOnlineStatus 更新设备在线状态
func UpdateDeviceOnlineStatus(db *gorm.DB, deviceID string, isOnline bool) error {
	now := time.Now()
	updates := map[string]interface{}{
		"is_online": isOnline,
		"last_seen": &now,
	}
	if isOnline {
		updates["last_connected"] = &now
	}
	return db.Model(&Device{}).Where("id = ?", deviceID).Updates(updates).Error
}

// RegenerateDeviceToken 重置设备令牌，传入新令牌的 bcrypt 哈希
func RegenerateDeviceToken(db *gorm.DB, userID uint, deviceID, newTokenHash string) error {
	result := db.Model(&Device{}).
		Where("user_id = ? AND id = ?", userID, deviceID).
		Update("token_hash", newTokenHash)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.New("device not found")
	}
	return nil
}
