package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestNewRateLimiter(t *testing.T) {
	rl := NewRateLimiter(DefaultLimits())
	assert.NotNil(t, rl)
}

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(map[string]EndpointLimit{
		"/api/auth/login": {RPS: 1, Burst: 3},
	})

	// 未配置限流的接口一律放行
	for i := 0; i < 100; i++ {
		assert.True(t, rl.Allow("127.0.0.1", "/api/devices"))
	}

	// 配置过的接口耗尽突发额度后拒绝
	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("127.0.0.1", "/api/auth/login"), "burst request %d", i)
	}
	assert.False(t, rl.Allow("127.0.0.1", "/api/auth/login"))

	// 不同 IP 互不影响
	assert.True(t, rl.Allow("10.0.0.2", "/api/auth/login"))
}

func TestRateLimiter_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rl := NewRateLimiter(map[string]EndpointLimit{
		"/api/auth/login": {RPS: 1, Burst: 2},
	})

	r := gin.New()
	r.POST("/api/auth/login", rl.Middleware(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	do := func() int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/api/auth/login", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.9")
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, do())
	assert.Equal(t, http.StatusOK, do())

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/auth/login", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "请求过于频繁")
}

func TestDefaultLimits(t *testing.T) {
	limits := DefaultLimits()
	assert.Contains(t, limits, "/api/auth/login")
	assert.Contains(t, limits, "/api/auth/register")
	for endpoint, limit := range limits {
		assert.Greater(t, limit.RPS, 0, endpoint)
		assert.Greater(t, limit.Burst, 0, endpoint)
	}
}

func TestGetRateLimiter(t *testing.T) {
	rl := GetRateLimiter()
	assert.NotNil(t, rl)

	// Should return the same instance
	rl2 := GetRateLimiter()
	assert.Equal(t, rl, rl2)
}
