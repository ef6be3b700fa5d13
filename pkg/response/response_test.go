package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(t *testing.T, handler gin.HandlerFunc, extra ...gin.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	r := gin.New()
	r.GET("/t", append([]gin.HandlerFunc{handler}, extra...)...)
	rr := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/t", nil)
	r.ServeHTTP(rr, req)
	return rr
}

func readJSON(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var got map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got), "body=%q", rr.Body.String())
	return got
}

func TestSuccessEnvelope(t *testing.T) {
	rr := serve(t, func(c *gin.Context) {
		Success(c, "ok-msg", gin.H{"k": "v"})
	})

	require.Equal(t, http.StatusOK, rr.Code)
	got := readJSON(t, rr)

	// JSON 数字解出来是 float64
	assert.Equal(t, float64(200), got["code"])
	assert.Equal(t, "ok-msg", got["msg"])
	data, ok := got["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "v", data["k"])
	// 成功响应不带 error 标签
	_, hasTag := got["error"]
	assert.False(t, hasTag)
}

func TestSuccessNilData(t *testing.T) {
	rr := serve(t, func(c *gin.Context) {
		Success(c, "deleted", nil)
	})

	got := readJSON(t, rr)
	assert.Equal(t, "deleted", got["msg"])
	assert.Nil(t, got["data"])
}

func TestAbortWithStatusJSONUnknownError(t *testing.T) {
	rr := serve(t, func(c *gin.Context) {
		AbortWithStatusJSON(c, http.StatusForbidden, errors.New("nope"))
	}, func(c *gin.Context) {
		c.Header("X-After", "should-not-exist")
	})

	require.Equal(t, http.StatusForbidden, rr.Code)
	got := readJSON(t, rr)

	// 未知错误原样透传，code 跟随 HTTP 状态
	assert.Equal(t, "nope", got["msg"])
	assert.Equal(t, "UNKNOWN_ERROR", got["error"])
	assert.Equal(t, float64(403), got["code"])
	assert.Empty(t, rr.Header().Get("X-After"), "Abort 要拦住后续 handler")
}

func TestAbortWithStatusJSONKnownError(t *testing.T) {
	rr := serve(t, func(c *gin.Context) {
		AbortWithStatusJSON(c, http.StatusUnauthorized, errors.New("invalid credentials"))
	})

	require.Equal(t, http.StatusUnauthorized, rr.Code)
	got := readJSON(t, rr)

	assert.Equal(t, "邮箱或密码错误", got["msg"])
	assert.Equal(t, "INVALID_CREDENTIALS", got["error"])
	assert.Equal(t, float64(401), got["code"])
}

func TestAbortWithStatusJSONMatchesSubstring(t *testing.T) {
	// 包装过的错误串也要能命中映射
	rr := serve(t, func(c *gin.Context) {
		AbortWithStatusJSON(c, http.StatusBadRequest,
			errors.New("create user: email already registered"))
	})

	got := readJSON(t, rr)
	assert.Equal(t, "该邮箱已被注册", got["msg"])
	assert.Equal(t, "EMAIL_EXISTS", got["error"])
}
