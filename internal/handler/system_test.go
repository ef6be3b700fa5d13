package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthCheck(t *testing.T) {
	engine, _, _ := setupTestEnv(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())
}

func TestOTAEndpoint(t *testing.T) {
	engine, _, _ := setupTestEnv(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/ota/", nil)
	req.Host = "gate.example.com:8000"
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var out struct {
		Websocket struct {
			URL     string `json:"url"`
			Version int    `json:"version"`
		} `json:"websocket"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	// WebSocket 地址按请求的 Host 回显，固件不用单独配网关地址
	assert.Equal(t, "ws://gate.example.com:8000/ws", out.Websocket.URL)
	assert.Equal(t, 3, out.Websocket.Version)
}

func TestMetricsEndpoint(t *testing.T) {
	engine, _, _ := setupTestEnv(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "echogate_")
}
