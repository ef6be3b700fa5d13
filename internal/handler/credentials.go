package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/voicebridge-ai/EchoGate/internal/models"
	"github.com/voicebridge-ai/EchoGate/pkg/config"
	"github.com/voicebridge-ai/EchoGate/pkg/logger"
	"github.com/voicebridge-ai/EchoGate/pkg/response"
)

// handleGetCredential 查看自己的提供方配置，密钥只回显是否已设置
// GET /api/credentials
func (h *Handlers) handleGetCredential(c *gin.Context) {
	user := models.CurrentUser(c)

	cred, err := models.GetUserCredential(h.db, user.ID)
	if err != nil {
		response.AbortWithStatusJSON(c, http.StatusInternalServerError, err)
		return
	}
	if cred == nil {
		response.Success(c, "ok", nil)
		return
	}
	response.Success(c, "ok", cred.ToResponse())
}

// handleSaveCredential 保存提供方覆盖配置。
// APIKey 空串保留原值，ClearAPIKey 为 true 时清空，明文进来加密落库。
// PUT /api/credentials
func (h *Handlers) handleSaveCredential(c *gin.Context) {
	var form models.UserCredentialForm
	if err := c.BindJSON(&form); err != nil {
		response.AbortWithStatusJSON(c, http.StatusBadRequest, err)
		return
	}

	if form.ASRProvider != "" && form.ASRProvider != "whisper" && form.ASRProvider != "funasr" {
		response.AbortWithStatusJSON(c, http.StatusBadRequest, errors.New("unknown ASR provider"))
		return
	}

	user := models.CurrentUser(c)

	existing, err := models.GetUserCredential(h.db, user.ID)
	if err != nil {
		response.AbortWithStatusJSON(c, http.StatusInternalServerError, err)
		return
	}

	cred := &models.UserCredential{
		UserID:      user.ID,
		ASRProvider: form.ASRProvider,
		ChatModel:   form.ChatModel,
		ASRModel:    form.ASRModel,
		TTSModel:    form.TTSModel,
		TTSVoice:    form.TTSVoice,
		BaseURL:     form.BaseURL,
	}

	switch {
	case form.ClearAPIKey:
		cred.APIKeyEncrypted = ""
	case form.APIKey != "":
		enc, err := h.secrets.Encrypt(config.SanitizeASCII(form.APIKey))
		if err != nil {
			response.AbortWithStatusJSON(c, http.StatusInternalServerError, err)
			return
		}
		cred.APIKeyEncrypted = enc
	case existing != nil:
		cred.APIKeyEncrypted = existing.APIKeyEncrypted
	}

	if err := models.SaveUserCredential(h.db, cred); err != nil {
		response.AbortWithStatusJSON(c, http.StatusInternalServerError, err)
		return
	}

	logger.Info("[API] 更新提供方配置",
		zap.Uint("userId", user.ID),
		zap.Bool("apiKeySet", cred.APIKeyEncrypted != ""))

	response.Success(c, "ok", cred.ToResponse())
}

// handleDeleteCredential 清掉提供方覆盖配置，回到全局默认
// DELETE /api/credentials
func (h *Handlers) handleDeleteCredential(c *gin.Context) {
	user := models.CurrentUser(c)

	if err := models.DeleteUserCredential(h.db, user.ID); err != nil {
		response.AbortWithStatusJSON(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, "deleted", nil)
}
