package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HashDeviceToken 设备令牌入库前的 bcrypt 哈希
func HashDeviceToken(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("device token cannot be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash device token: %w", err)
	}
	return string(hash), nil
}

// CheckDeviceToken 校验明文令牌与存储的哈希
func CheckDeviceToken(hash, token string) bool {
	if hash == "" || token == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil
}
