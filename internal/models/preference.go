package models

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

const MaxPrefValueLen = 200

// KnownPreferenceKeys 允许写入的偏好键及中文描述（描述会注入 LLM 系统提示词）
var KnownPreferenceKeys = map[string]string{
	"preferred_city":   "用户所在城市",
	"music_preference": "音乐偏好",
	"wake_greeting":    "唤醒问候语",
	"nickname":         "用户昵称",
	"language":         "首选语言",
	"last_note":        "最近记下的内容",
}

var (
	ErrUnknownPreferenceKey = errors.New("unknown preference key")
	ErrPreferenceTooLong    = errors.New("preference value too long")
)

// UserPreference 用户级 KV 偏好
type UserPreference struct {
	BaseModel
	UserID uint   `json:"userId" gorm:"column:user_id;uniqueIndex:idx_user_pref;not null"`
	Key    string `json:"key" gorm:"column:pref_key;size:64;uniqueIndex:idx_user_pref;not null"`
	Value  string `json:"value" gorm:"column:pref_value;size:200"`
}

func (UserPreference) TableName() string {
	return "user_preferences"
}

// SanitizePrefValue 换行折成空格并去掉首尾空白
func SanitizePrefValue(v string) string {
	v = strings.ReplaceAll(v, "\n", " ")
	v = strings.ReplaceAll(v, "\r", " ")
	return strings.TrimSpace(v)
}

// SetPreference 写入（或覆盖）一条偏好，未知键与超长值拒绝
func SetPreference(db *gorm.DB, userID uint, key, value string) error {
	if _, ok := KnownPreferenceKeys[key]; !ok {
		return ErrUnknownPreferenceKey
	}
	value = SanitizePrefValue(value)
	if len([]rune(value)) > MaxPrefValueLen {
		return ErrPreferenceTooLong
	}
	result := db.Model(&UserPreference{}).
		Where("user_id = ? AND pref_key = ?", userID, key).
		Update("pref_value", value)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return db.Create(&UserPreference{UserID: userID, Key: key, Value: value}).Error
	}
	return nil
}

// GetPreference 读取单个偏好，未设置返回空串
func GetPreference(db *gorm.DB, userID uint, key string) (string, error) {
	var pref UserPreference
	err := db.Where("user_id = ? AND pref_key = ?", userID, key).Take(&pref).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return pref.Value, nil
}

// GetUserPreferences 用户全部偏好
func GetUserPreferences(db *gorm.DB, userID uint) (map[string]string, error) {
	var prefs []UserPreference
	if err := db.Where("user_id = ?", userID).Find(&prefs).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(prefs))
	for _, p := range prefs {
		out[p.Key] = p.Value
	}
	return out, nil
}

// PreferencesPrompt 把偏好拼成系统提示词片段，没有偏好返回空串
func PreferencesPrompt(db *gorm.DB, userID uint) string {
	prefs, err := GetUserPreferences(db, userID)
	if err != nil || len(prefs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("用户偏好设置：")
	for key, value := range prefs {
		if value == "" {
			continue
		}
		desc, ok := KnownPreferenceKeys[key]
		if !ok {
			desc = key
		}
		b.WriteString("\n- ")
		b.WriteString(desc)
		b.WriteString("：")
		b.WriteString(value)
	}
	return b.String()
}
