package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParseToken(t *testing.T) {
	secret := "test-secret-key"

	token, err := GenerateToken(secret, 42, "user@example.com", 72*time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := ParseToken(secret, token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "user@example.com", claims.Email)
	assert.Equal(t, "42", claims.Subject)
	assert.True(t, claims.ExpiresAt.After(time.Now().Add(71*time.Hour)))
}

func TestParseTokenRejectsBadInput(t *testing.T) {
	secret := "test-secret-key"
	token, err := GenerateToken(secret, 1, "a@b.c", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		secret string
		token  string
	}{
		{"wrong secret", "another-secret", token},
		{"garbage token", secret, "not.a.jwt"},
		{"empty token", secret, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseToken(tt.secret, tt.token)
			assert.Error(t, err)
		})
	}
}

func TestParseTokenExpired(t *testing.T) {
	secret := "test-secret-key"
	token, err := GenerateToken(secret, 1, "a@b.c", -time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(secret, token)
	assert.Error(t, err)
}

func TestSecretBoxRoundTrip(t *testing.T) {
	box, err := NewSecretBox("my-secret-key")
	require.NoError(t, err)

	tests := []struct {
		name  string
		plain string
	}{
		{"ascii key", "sk-abcdef1234567890"},
		{"unicode", "密钥-🔑-テスト"},
		{"long", string(make([]byte, 4096))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := box.Encrypt(tt.plain)
			require.NoError(t, err)
			require.NotEqual(t, tt.plain, enc)

			dec, err := box.Decrypt(enc)
			require.NoError(t, err)
			assert.Equal(t, tt.plain, dec)
		})
	}
}

func TestSecretBoxEmptyInOut(t *testing.T) {
	box, err := NewSecretBox("my-secret-key")
	require.NoError(t, err)

	enc, err := box.Encrypt("")
	require.NoError(t, err)
	assert.Equal(t, "", enc)

	dec, err := box.Decrypt("")
	require.NoError(t, err)
	assert.Equal(t, "", dec)
}

func TestSecretBoxRejectsGarbage(t *testing.T) {
	box, err := NewSecretBox("my-secret-key")
	require.NoError(t, err)

	_, err = box.Decrypt("not-base64!!!")
	assert.Error(t, err)

	// 合法 base64 但不是本 key 加密的内容
	_, err = box.Decrypt("QUJDREVGR0hJSktMTU5PUFFSU1RVVldYWVo=")
	assert.Error(t, err)
}

func TestSecretBoxDifferentKeys(t *testing.T) {
	box1, err := NewSecretBox("key-one")
	require.NoError(t, err)
	box2, err := NewSecretBox("key-two")
	require.NoError(t, err)

	enc, err := box1.Encrypt("payload")
	require.NoError(t, err)

	_, err = box2.Decrypt(enc)
	assert.Error(t, err)
}

func TestDeviceTokenHashRoundTrip(t *testing.T) {
	hash, err := HashDeviceToken("tok-123456")
	require.NoError(t, err)
	require.NotEqual(t, "tok-123456", hash)

	assert.True(t, CheckDeviceToken(hash, "tok-123456"))
	assert.False(t, CheckDeviceToken(hash, "tok-654321"))
	assert.False(t, CheckDeviceToken(hash, ""))
	assert.False(t, CheckDeviceToken("", "tok-123456"))

	_, err = HashDeviceToken("")
	assert.Error(t, err)
}
