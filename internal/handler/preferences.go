package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/voicebridge-ai/EchoGate/internal/models"
	"github.com/voicebridge-ai/EchoGate/pkg/response"
)

// preferenceForm 单条偏好写入请求体
type preferenceForm struct {
	Key   string `json:"key" binding:"required"`
	Value string `json:"value"`
}

// handleGetPreferences 用户全部偏好
// GET /api/preferences
func (h *Handlers) handleGetPreferences(c *gin.Context) {
	user := models.CurrentUser(c)

	prefs, err := models.GetUserPreferences(h.db, user.ID)
	if err != nil {
		response.AbortWithStatusJSON(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, "ok", prefs)
}

// handleSetPreference 写入单条偏好，键必须在白名单内
// PUT /api/preferences
func (h *Handlers) handleSetPreference(c *gin.Context) {
	var form preferenceForm
	if err := c.BindJSON(&form); err != nil {
		response.AbortWithStatusJSON(c, http.StatusBadRequest, err)
		return
	}

	user := models.CurrentUser(c)

	if err := models.SetPreference(h.db, user.ID, form.Key, form.Value); err != nil {
		if errors.Is(err, models.ErrUnknownPreferenceKey) || errors.Is(err, models.ErrPreferenceTooLong) {
			response.AbortWithStatusJSON(c, http.StatusBadRequest, err)
			return
		}
		response.AbortWithStatusJSON(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, "ok", gin.H{form.Key: models.SanitizePrefValue(form.Value)})
}
