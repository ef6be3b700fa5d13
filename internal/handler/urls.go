// Package handlers 管理面 HTTP API：账号、设备、提醒、偏好与凭证，
// 外加设备固件用的 /ota/ 发现端点和语音 WebSocket 入口。
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/voicebridge-ai/EchoGate/internal/models"
	"github.com/voicebridge-ai/EchoGate/pkg/auth"
	"github.com/voicebridge-ai/EchoGate/pkg/config"
	"github.com/voicebridge-ai/EchoGate/pkg/gateway"
	"github.com/voicebridge-ai/EchoGate/pkg/metrics"
	"github.com/voicebridge-ai/EchoGate/pkg/middleware"
)

type Handlers struct {
	cfg     *config.Config
	db      *gorm.DB
	secrets *auth.SecretBox
	ws      *gateway.Handler
}

func NewHandlers(cfg *config.Config, db *gorm.DB, secrets *auth.SecretBox, ws *gateway.Handler) *Handlers {
	return &Handlers{
		cfg:     cfg,
		db:      db,
		secrets: secrets,
		ws:      ws,
	}
}

func (h *Handlers) Register(engine *gin.Engine) {
	// 固件侧端点不走 /api 前缀
	engine.GET("/health", h.HealthCheck)
	engine.GET("/metrics", gin.WrapH(metrics.Handler()))
	engine.GET("/ota/", h.HandleOTACheck)
	if h.ws != nil {
		engine.GET(h.cfg.Server.WSPath, h.ws.Serve)
	}

	r := engine.Group("/api")

	// Register Global Singleton DB
	r.Use(middleware.InjectDB(h.db))
	r.Use(middleware.CorsMiddleware())
	r.Use(middleware.GetRateLimiter().Middleware())

	// Register Business Module Routes
	h.registerAuthRoutes(r)
	h.registerDeviceRoutes(r)
	h.registerReminderRoutes(r)
	h.registerPreferenceRoutes(r)
	h.registerCredentialRoutes(r)
}

// registerAuthRoutes Auth Module
func (h *Handlers) registerAuthRoutes(r *gin.RouterGroup) {
	authGroup := r.Group("auth")
	{
		authGroup.POST("/register", h.handleUserSignup)

		authGroup.POST("/login", h.handleUserSignin)

		authGroup.GET("/me", models.AuthRequired, h.handleUserInfo)
	}
}

// registerDeviceRoutes Device Module
func (h *Handlers) registerDeviceRoutes(r *gin.RouterGroup) {
	device := r.Group("devices")
	device.Use(models.AuthRequired)
	{
		device.POST("", h.handleRegisterDevice)

		device.GET("", h.handleListDevices)

		device.DELETE("/:id", h.handleDeleteDevice)

		// 重置设备令牌，旧令牌立即失效
		device.POST("/:id/token", h.handleRegenerateDeviceToken)
	}
}

// registerReminderRoutes Reminder Module
func (h *Handlers) registerReminderRoutes(r *gin.RouterGroup) {
	reminder := r.Group("reminders")
	reminder.Use(models.AuthRequired)
	{
		reminder.POST("", h.handleCreateReminder)

		reminder.GET("", h.handleListReminders)

		reminder.DELETE("/:id", h.handleDeleteReminder)
	}
}

// registerPreferenceRoutes Preference Module
func (h *Handlers) registerPreferenceRoutes(r *gin.RouterGroup) {
	pref := r.Group("preferences")
	pref.Use(models.AuthRequired)
	{
		pref.GET("", h.handleGetPreferences)

		pref.PUT("", h.handleSetPreference)
	}
}

// registerCredentialRoutes Credentials Module（用户自带提供方配置）
func (h *Handlers) registerCredentialRoutes(r *gin.RouterGroup) {
	credential := r.Group("credentials")
	credential.Use(models.AuthRequired)
	{
		credential.GET("", h.handleGetCredential)

		credential.PUT("", h.handleSaveCredential)

		credential.DELETE("", h.handleDeleteCredential)
	}
}

// HealthCheck health check endpoint
func (h *Handlers) HealthCheck(c *gin.Context) {
	sqlDB, err := h.db.DB()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": "database connection failed"})
		return
	}
	if err := sqlDB.Ping(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": "database ping failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// HandleOTACheck 固件发现端点：告诉设备往哪儿连 WebSocket
// GET /ota/
func (h *Handlers) HandleOTACheck(c *gin.Context) {
	host := c.Request.Host
	if host == "" {
		host = c.Request.URL.Host
	}
	c.JSON(http.StatusOK, gin.H{
		"websocket": gin.H{
			"url":     "ws://" + host + h.cfg.Server.WSPath,
			"version": 3,
		},
	})
}
