package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// UserCredential 用户级提供方覆盖配置（Pro 模式）：
// 用户可以接自己的 OpenAI 兼容服务与模型，API key 加密落库，
// 网关在每次调用提供方前解密使用。每个用户至多一行。
type UserCredential struct {
	BaseModel
	UserID      uint   `json:"userId" gorm:"uniqueIndex;not null"`
	ASRProvider string `json:"asrProvider" gorm:"size:32"` // whisper | funasr，空用全局
	ChatModel   string `json:"chatModel" gorm:"size:64"`
	ASRModel    string `json:"asrModel" gorm:"size:64"`
	TTSModel    string `json:"ttsModel" gorm:"size:64"`
	TTSVoice    string `json:"ttsVoice" gorm:"size:64"`
	BaseURL     string `json:"baseUrl" gorm:"size:256"`
	// AES-256-GCM 密文，见 pkg/auth.SecretBox
	APIKeyEncrypted string `json:"-" gorm:"size:512"`
}

func (UserCredential) TableName() string {
	return "user_credentials"
}

// UserCredentialForm 更新请求体。APIKey 传明文，空串表示保留原值，
// ClearAPIKey 为 true 时清空。
type UserCredentialForm struct {
	ASRProvider string `json:"asrProvider"`
	ChatModel   string `json:"chatModel"`
	ASRModel    string `json:"asrModel"`
	TTSModel    string `json:"ttsModel"`
	TTSVoice    string `json:"ttsVoice"`
	BaseURL     string `json:"baseUrl"`
	APIKey      string `json:"apiKey"`
	ClearAPIKey bool   `json:"clearApiKey"`
}

// UserCredentialResponse 凭证脱敏视图，不回显密钥内容
type UserCredentialResponse struct {
	ASRProvider string    `json:"asrProvider"`
	ChatModel   string    `json:"chatModel"`
	ASRModel    string    `json:"asrModel"`
	TTSModel    string    `json:"ttsModel"`
	TTSVoice    string    `json:"ttsVoice"`
	BaseURL     string    `json:"baseUrl"`
	APIKeySet   bool      `json:"apiKeySet"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ToResponse 转成脱敏视图
func (c *UserCredential) ToResponse() *UserCredentialResponse {
	return &UserCredentialResponse{
		ASRProvider: c.ASRProvider,
		ChatModel:   c.ChatModel,
		ASRModel:    c.ASRModel,
		TTSModel:    c.TTSModel,
		TTSVoice:    c.TTSVoice,
		BaseURL:     c.BaseURL,
		APIKeySet:   c.APIKeyEncrypted != "",
		UpdatedAt:   c.UpdatedAt,
	}
}

// GetUserCredential 查用户的覆盖配置，没有时返回 (nil, nil)
func GetUserCredential(db *gorm.DB, userID uint) (*UserCredential, error) {
	var cred UserCredential
	err := db.Where("user_id = ?", userID).Take(&cred).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cred, nil
}

// SaveUserCredential 按 user_id 插入或整行覆盖
func SaveUserCredential(db *gorm.DB, cred *UserCredential) error {
	var existing UserCredential
	err := db.Where("user_id = ?", cred.UserID).Take(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return db.Create(cred).Error
	}
	if err != nil {
		return err
	}
	cred.ID = existing.ID
	cred.CreatedAt = existing.CreatedAt
	return db.Save(cred).Error
}

// DeleteUserCredential 清掉用户的覆盖配置
func DeleteUserCredential(db *gorm.DB, userID uint) error {
	return db.Where("user_id = ?", userID).Delete(&UserCredential{}).Error
}
