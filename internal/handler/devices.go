package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/voicebridge-ai/EchoGate/internal/models"
	"github.com/voicebridge-ai/EchoGate/pkg/auth"
	"github.com/voicebridge-ai/EchoGate/pkg/logger"
	"github.com/voicebridge-ai/EchoGate/pkg/response"
)

// handleRegisterDevice 登记设备并签发接入令牌。
// 明文令牌只在本次响应出现一次，库里只存 bcrypt 哈希，丢了只能重置。
// POST /api/devices
func (h *Handlers) handleRegisterDevice(c *gin.Context) {
	var form models.DeviceRegisterForm
	if err := c.BindJSON(&form); err != nil {
		response.AbortWithStatusJSON(c, http.StatusBadRequest, err)
		return
	}

	user := models.CurrentUser(c)

	if existing, err := models.GetDeviceByID(h.db, form.DeviceID); err == nil && existing != nil {
		response.AbortWithStatusJSON(c, http.StatusConflict, errors.New("device already registered"))
		return
	} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		response.AbortWithStatusJSON(c, http.StatusInternalServerError, err)
		return
	}

	token := uuid.New().String()
	hash, err := auth.HashDeviceToken(token)
	if err != nil {
		response.AbortWithStatusJSON(c, http.StatusInternalServerError, err)
		return
	}

	device := &models.Device{
		ID:         form.DeviceID,
		UserID:     user.ID,
		DeviceName: form.DeviceName,
		Board:      form.Board,
		TokenHash:  hash,
	}
	if err := models.CreateDevice(h.db, device); err != nil {
		response.AbortWithStatusJSON(c, http.StatusInternalServerError, err)
		return
	}

	logger.Info("[API] 设备登记",
		zap.String("deviceId", device.ID),
		zap.Uint("userId", user.ID))

	response.Success(c, "registered", gin.H{
		"device": device,
		"token":  token,
	})
}

// handleListDevices 当前用户的设备列表
// GET /api/devices
func (h *Handlers) handleListDevices(c *gin.Context) {
	user := models.CurrentUser(c)

	devices, err := models.GetUserDevices(h.db, user.ID)
	if err != nil {
		response.AbortWithStatusJSON(c, http.StatusInternalServerError, err)
		return
	}
	response.Success(c, "ok", devices)
}

// handleDeleteDevice 删除设备，之后该设备的令牌无法再接入
// DELETE /api/devices/:id
func (h *Handlers) handleDeleteDevice(c *gin.Context) {
	user := models.CurrentUser(c)
	deviceID := c.Param("id")

	if err := models.DeleteDevice(h.db, user.ID, deviceID); err != nil {
		response.AbortWithStatusJSON(c, http.StatusNotFound, err)
		return
	}

	logger.Info("[API] 设备删除",
		zap.String("deviceId", deviceID),
		zap.Uint("userId", user.ID))

	response.Success(c, "deleted", nil)
}

// handleRegenerateDeviceToken 重置设备令牌，旧令牌立即失效
// POST /api/devices/:id/token
func (h *Handlers) handleRegenerateDeviceToken(c *gin.Context) {
	user := models.CurrentUser(c)
	deviceID := c.Param("id")

	token := uuid.New().String()
	hash, err := auth.HashDeviceToken(token)
	if err != nil {
		response.AbortWithStatusJSON(c, http.StatusInternalServerError, err)
		return
	}

	if err := models.RegenerateDeviceToken(h.db, user.ID, deviceID, hash); err != nil {
		response.AbortWithStatusJSON(c, http.StatusNotFound, err)
		return
	}

	logger.Info("[API] 设备令牌重置",
		zap.String("deviceId", deviceID),
		zap.Uint("userId", user.ID))

	response.Success(c, "regenerated", gin.H{
		"token": token,
	})
}
