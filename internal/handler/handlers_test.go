package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/voicebridge-ai/EchoGate/internal/models"
	"github.com/voicebridge-ai/EchoGate/pkg/auth"
	"github.com/voicebridge-ai/EchoGate/pkg/config"
)

// 限流按 IP 分桶，每个测试用独立的源地址，互不干扰
var testIPCounter atomic.Int32

func nextTestIP() string {
	return fmt.Sprintf("198.51.100.%d", testIPCounter.Add(1))
}

func setupTestEnv(t *testing.T) (*gin.Engine, *Handlers, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.Migrate(db))

	cfg := &config.Config{
		Server: config.ServerConfig{WSPath: "/ws"},
		Auth:   config.AuthConfig{SecretKey: "handler-test-secret", TokenExpireHours: 1},
	}
	// models.AuthRequired 从全局配置取签名密钥
	config.GlobalConfig = cfg

	secrets, err := auth.NewSecretBox(cfg.Auth.SecretKey)
	require.NoError(t, err)

	h := NewHandlers(cfg, db, secrets, nil)
	engine := gin.New()
	h.Register(engine)
	return engine, h, db
}

// seedUser 绕开 HTTP 注册接口直接建用户并签令牌，测试专用
func seedUser(t *testing.T, db *gorm.DB, email string) (*models.User, string) {
	t.Helper()
	user, err := models.CreateUser(db, email, "password123", "Test User")
	require.NoError(t, err)
	token, err := auth.GenerateToken(config.GlobalConfig.Auth.SecretKey, user.ID, user.Email, time.Hour)
	require.NoError(t, err)
	return user, token
}

func doJSON(t *testing.T, engine *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", nextTestIP())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

// doJSONFromIP 固定源 IP 的无认证请求，限流测试用
func doJSONFromIP(t *testing.T, engine *gin.Engine, method, path, ip string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", ip)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

type apiResponse struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) apiResponse {
	t.Helper()
	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "body: %s", w.Body.String())
	return resp
}
