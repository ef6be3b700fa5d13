package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"

	"github.com/voicebridge-ai/EchoGate/internal/models"
)

func captureLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, recorded := observer.New(zapcore.InfoLevel)
	return zap.New(core), recorded
}

// entryFields 把唯一一条日志的字段摊成 map，缺字段时取零值 Field，
// 断言自然失败
func entryFields(t *testing.T, logs *observer.ObservedLogs) map[string]zapcore.Field {
	t.Helper()
	entries := logs.All()
	require.Len(t, entries, 1)
	fields := map[string]zapcore.Field{}
	for _, f := range entries[0].Context {
		fields[f.Key] = f
	}
	return fields
}

func TestLoggerMiddlewareRecordsWrites(t *testing.T) {
	gin.SetMode(gin.TestMode)
	lg, recorded := captureLogger()

	r := gin.New()
	r.Use(LoggerMiddleware(lg))
	r.POST("/api/devices", func(c *gin.Context) {
		time.Sleep(5 * time.Millisecond)
		c.String(http.StatusCreated, "created")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/devices?page=1&size=20", nil)
	req.Header.Set("User-Agent", "EchoGateTest/1.0")
	// ClientIP 优先读 X-Forwarded-For，设了代理头断言才可控
	req.Header.Set("X-Forwarded-For", "203.0.113.1")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)

	fields := entryFields(t, recorded)
	assert.Equal(t, "Request", recorded.All()[0].Message)
	assert.Equal(t, int64(http.StatusCreated), fields["status"].Integer)
	assert.Equal(t, "POST", fields["method"].String)
	assert.Equal(t, "/api/devices", fields["path"].String)
	assert.Contains(t, fields["query"].String, "page=1")
	assert.Equal(t, "203.0.113.1", fields["ip"].String)
	assert.Equal(t, "EchoGateTest/1.0", fields["user-agent"].String)
	assert.Equal(t, zapcore.DurationType, fields["latency"].Type)
	assert.Greater(t, fields["latency"].Integer, int64(0))
}

func TestLoggerMiddlewareSkipsGet(t *testing.T) {
	gin.SetMode(gin.TestMode)
	lg, recorded := captureLogger()

	r := gin.New()
	r.Use(LoggerMiddleware(lg))
	r.GET("/api/reminders", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/reminders", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, recorded.All(), "读接口不该出现在访问日志里")
}

func TestLoggerMiddlewareEmptyQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	lg, recorded := captureLogger()

	r := gin.New()
	r.Use(LoggerMiddleware(lg))
	r.POST("/api/auth/login", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/api/auth/login", nil))

	require.Equal(t, http.StatusOK, w.Code)

	fields := entryFields(t, recorded)
	assert.Equal(t, "/api/auth/login", fields["path"].String)
	assert.Equal(t, "", fields["query"].String)
	_, hasIP := fields["ip"]
	assert.True(t, hasIP, "没有代理头时 ip 字段也要有")
	assert.Greater(t, fields["latency"].Integer, int64(0))
}

func TestCorsMiddlewarePreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(CorsMiddleware())
	r.POST("/api/devices", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/devices", nil)
	req.Header.Set("Origin", "http://console.example.com")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://console.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", w.Header().Get("Vary"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "DELETE")
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestCorsMiddlewareWithoutOrigin(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(CorsMiddleware())
	r.GET("/api/devices", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/devices", nil))

	// 非浏览器调用没有 Origin，放开通配
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestInjectDB(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := &gorm.DB{}

	r := gin.New()
	r.Use(InjectDB(db))
	r.GET("/api/preferences", func(c *gin.Context) {
		got, ok := c.Get(models.DbField)
		require.True(t, ok, "上下文里要有数据库句柄")
		assert.Same(t, db, got)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/preferences", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
