package bootstrap

import (
	"github.com/voicebridge-ai/EchoGate/internal/models"
	"github.com/voicebridge-ai/EchoGate/pkg/auth"
	"gorm.io/gorm"
)

// 开发环境种子数据。固件模拟器可以直接用这里的设备号和令牌连网关。
const (
	demoUserEmail    = "demo@echogate.dev"
	demoUserPassword = "demo123456"
	demoDeviceID     = "00:11:22:33:44:55"
	demoDeviceToken  = "echogate-dev-device-token"
)

type SeedService struct {
	db *gorm.DB
}

func (s *SeedService) SeedAll() error {
	if err := s.seedDemoUser(); err != nil {
		return err
	}
	if err := s.seedDemoDevices(); err != nil {
		return err
	}
	if err := s.seedDemoPreferences(); err != nil {
		return err
	}
	return nil
}

func (s *SeedService) seedDemoUser() error {
	var count int64
	err := s.db.Model(&models.User{}).Where("email = ?", demoUserEmail).Count(&count).Error
	if err != nil {
		return err
	}
	if count != 0 {
		return nil
	}

	hash, err := models.HashPassword(demoUserPassword)
	if err != nil {
		return err
	}
	user := models.User{
		Email:       demoUserEmail,
		Password:    hash,
		DisplayName: "演示账号",
		Enabled:     true,
		Role:        models.RoleUser,
	}
	return s.db.Create(&user).Error
}

func (s *SeedService) seedDemoDevices() error {
	user, err := models.GetUserByEmail(s.db, demoUserEmail)
	if err != nil {
		return err
	}

	var count int64
	err = s.db.Model(&models.Device{}).Where("id = ?", demoDeviceID).Count(&count).Error
	if err != nil {
		return err
	}
	if count != 0 {
		return nil
	}

	hash, err := auth.HashDeviceToken(demoDeviceToken)
	if err != nil {
		return err
	}
	device := models.Device{
		ID:         demoDeviceID,
		UserID:     user.ID,
		DeviceName: "开发板",
		Board:      "esp32-s3-devkit",
		TokenHash:  hash,
	}
	return s.db.Create(&device).Error
}

func (s *SeedService) seedDemoPreferences() error {
	user, err := models.GetUserByEmail(s.db, demoUserEmail)
	if err != nil {
		return err
	}

	defaults := map[string]string{
		"preferred_city": "北京",
		"nickname":       "开发者",
	}
	for key, value := range defaults {
		// 已经改过的偏好不回写，重复执行种子不会覆盖用户数据
		existing, err := models.GetPreference(s.db, user.ID, key)
		if err != nil {
			return err
		}
		if existing != "" {
			continue
		}
		if err := models.SetPreference(s.db, user.ID, key, value); err != nil {
			return err
		}
	}
	return nil
}
