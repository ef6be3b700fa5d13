package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetAndGetPreferences(t *testing.T) {
	engine, _, db := setupTestEnv(t)
	_, token := seedUser(t, db, "owner@example.com")

	w := doJSON(t, engine, "PUT", "/api/preferences", token, map[string]any{
		"key":   "preferred_city",
		"value": "上海",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, engine, "PUT", "/api/preferences", token, map[string]any{
		"key":   "nickname",
		"value": "  小王\n",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, engine, "GET", "/api/preferences", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)

	var prefs map[string]string
	require.NoError(t, json.Unmarshal(resp.Data, &prefs))
	assert.Equal(t, "上海", prefs["preferred_city"])
	// 换行和首尾空白写入前清洗
	assert.Equal(t, "小王", prefs["nickname"])
}

func TestSetPreferenceUnknownKey(t *testing.T) {
	engine, _, db := setupTestEnv(t)
	_, token := seedUser(t, db, "owner@example.com")

	w := doJSON(t, engine, "PUT", "/api/preferences", token, map[string]any{
		"key":   "favorite_color",
		"value": "蓝色",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "UNKNOWN_PREFERENCE")
}

func TestSetPreferenceOverwrites(t *testing.T) {
	engine, _, db := setupTestEnv(t)
	_, token := seedUser(t, db, "owner@example.com")

	for _, city := range []string{"北京", "广州"} {
		w := doJSON(t, engine, "PUT", "/api/preferences", token, map[string]any{
			"key":   "preferred_city",
			"value": city,
		})
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := doJSON(t, engine, "GET", "/api/preferences", token, nil)
	resp := decodeResponse(t, w)
	var prefs map[string]string
	require.NoError(t, json.Unmarshal(resp.Data, &prefs))
	assert.Equal(t, "广州", prefs["preferred_city"])
}
