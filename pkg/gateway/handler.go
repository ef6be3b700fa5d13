package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/spf13/cast"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/voicebridge-ai/EchoGate/internal/models"
	"github.com/voicebridge-ai/EchoGate/pkg/auth"
	"github.com/voicebridge-ai/EchoGate/pkg/cache"
	"github.com/voicebridge-ai/EchoGate/pkg/config"
	"github.com/voicebridge-ai/EchoGate/pkg/logger"
	"github.com/voicebridge-ai/EchoGate/pkg/metrics"
	"github.com/voicebridge-ai/EchoGate/pkg/provider"
)

const (
	// authCacheTTL bcrypt 比对接近百毫秒，设备断线重连频繁，
	// 校验通过的 (设备, 令牌哈希) 短期缓存绕开重复比对
	authCacheTTL    = 10 * time.Minute
	authCachePrefix = "device_auth:"

	// closeCodeAuthFailed 凭证缺失或无效时的关闭码，固件据此停止重试
	closeCodeAuthFailed = 4401

	// pipelineGrace 断连后等流水线自行收尾的时长，超时硬取消
	pipelineGrace = 2 * time.Second
)

// Handler 设备接入端点：升级连接、认证、路由消息、断开清场
type Handler struct {
	cfg      *config.Config
	db       *gorm.DB
	cache    cache.Cache
	secrets  *auth.SecretBox
	registry *Registry
	pipeline *Pipeline
	upgrader websocket.Upgrader
}

func NewHandler(cfg *config.Config, db *gorm.DB, c cache.Cache, secrets *auth.SecretBox, reg *Registry, pipe *Pipeline) *Handler {
	return &Handler{
		cfg:      cfg,
		db:       db,
		cache:    c,
		secrets:  secrets,
		registry: reg,
		pipeline: pipe,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// 设备固件不带 Origin 头，该端点不面向浏览器
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Serve gin 路由入口。认证放在升级之后，4401 关闭码才能送达固件。
func (h *Handler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("[Gateway] WebSocket 升级失败", zap.Error(err))
		return
	}
	h.handleConn(conn, c.Request)
}

func (h *Handler) handleConn(conn *websocket.Conn, req *http.Request) {
	defer conn.Close()
	w := NewWriter(conn, h.cfg.Gateway.SendTimeout)

	deviceID := req.Header.Get("x-device-id")
	token := req.Header.Get("x-device-token")
	if deviceID == "" || token == "" {
		logger.Warn("[Gateway] 缺少设备凭证", zap.String("remote", conn.RemoteAddr().String()))
		w.SendError("missing device_id/token")
		w.CloseWithCode(closeCodeAuthFailed, "missing credentials")
		return
	}

	userID, ok := h.authenticate(deviceID, token)
	if !ok {
		logger.Warn("[Gateway] 设备令牌校验失败", zap.String("deviceId", deviceID))
		w.SendError("invalid token")
		w.CloseWithCode(closeCodeAuthFailed, "invalid token")
		return
	}

	sess := NewSession(deviceID, userID, w, h.loadOverrides(userID))
	h.registry.Register(sess)
	metrics.ConnectionsActive.Inc()
	if err := models.UpdateDeviceOnlineStatus(h.db, deviceID, true); err != nil {
		logger.Warn("[Gateway] 更新设备在线状态失败", zap.String("deviceId", deviceID), zap.Error(err))
	}
	logger.Info("[Gateway] 设备接入",
		zap.String("deviceId", deviceID),
		zap.String("session", sess.ID),
		zap.Uint("userId", userID),
		zap.String("remote", conn.RemoteAddr().String()))

	h.readLoop(conn, sess)
	h.teardown(sess)
}

// authenticate 校验设备凭证，命中缓存时跳过 bcrypt
func (h *Handler) authenticate(deviceID, token string) (uint, bool) {
	sum := sha256.Sum256([]byte(token))
	key := authCachePrefix + deviceID + ":" + hex.EncodeToString(sum[:])
	ctx := context.Background()

	if h.cache != nil {
		if v, hit := h.cache.Get(ctx, key); hit {
			if uid := cast.ToUint(v); uid != 0 {
				return uid, true
			}
		}
	}

	device, err := models.ValidateDeviceToken(h.db, deviceID, token)
	if err != nil {
		return 0, false
	}
	if h.cache != nil {
		_ = h.cache.Set(ctx, key, device.UserID, authCacheTTL)
	}
	return device.UserID, true
}

// loadOverrides 读用户的提供方覆盖配置并解密 API key，没配置时返回 nil
func (h *Handler) loadOverrides(userID uint) *provider.Overrides {
	cred, err := models.GetUserCredential(h.db, userID)
	if err != nil {
		logger.Warn("[Gateway] 读用户凭证失败", zap.Uint("userId", userID), zap.Error(err))
		return nil
	}
	if cred == nil {
		return nil
	}

	ov := &provider.Overrides{
		ASRProvider: cred.ASRProvider,
		BaseURL:     cred.BaseURL,
		ChatModel:   cred.ChatModel,
		ASRModel:    cred.ASRModel,
		TTSModel:    cred.TTSModel,
		TTSVoice:    cred.TTSVoice,
	}
	if cred.APIKeyEncrypted != "" && h.secrets != nil {
		plain, err := h.secrets.Decrypt(cred.APIKeyEncrypted)
		if err != nil {
			logger.Warn("[Gateway] 解密用户 API key 失败", zap.Uint("userId", userID), zap.Error(err))
		} else {
			ov.APIKey = plain
		}
	}
	return ov
}

func (h *Handler) readLoop(conn *websocket.Conn, sess *Session) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				logger.Info("[Gateway] 设备断开", zap.String("session", sess.ID))
			} else {
				logger.Warn("[Gateway] 读取失败，断开连接", zap.String("session", sess.ID), zap.Error(err))
			}
			return
		}
		sess.Touch()

		switch msgType {
		case websocket.BinaryMessage:
			metrics.MessagesReceived.WithLabelValues("binary").Inc()
			sess.AppendAudio(data)
		case websocket.TextMessage:
			h.routeText(sess, data)
		}
	}
}

// inboundMsg 设备上行文本消息的通用形状，按 type 取用字段
type inboundMsg struct {
	Type       string `json:"type"`
	State      string `json:"state"`
	Mode       string `json:"mode"`
	Text       string `json:"text"`
	Reason     string `json:"reason"`
	ListenMode string `json:"listen_mode"`
}

func msgTypeLabel(t string) string {
	switch t {
	case "hello", "wake", "audio_start", "audio_end", "listen", "abort", "ping":
		return t
	}
	return "unknown"
}

// routeText 单条消息的处理失败不断开连接，只回 error
func (h *Handler) routeText(sess *Session, data []byte) {
	var msg inboundMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		sess.Writer.SendError("invalid json")
		return
	}
	metrics.MessagesReceived.WithLabelValues(msgTypeLabel(msg.Type)).Inc()

	switch msg.Type {
	case "hello":
		h.onHello(sess, &msg)
	case "wake":
		logger.Info("[Gateway] 设备唤醒", zap.String("session", sess.ID))
	case "audio_start":
		h.onAudioStart(sess, "")
	case "audio_end":
		h.onAudioEnd(sess)
	case "listen":
		switch msg.State {
		case "start":
			h.onAudioStart(sess, msg.Mode)
		case "stop":
			h.onAudioEnd(sess)
		case "detect":
			logger.Info("[Gateway] 唤醒词检测",
				zap.String("session", sess.ID),
				zap.String("text", msg.Text))
		default:
			sess.Writer.SendError("unknown listen state: " + msg.State)
		}
	case "abort":
		h.onAbort(sess, msg.Reason)
	case "ping":
		sess.Writer.SendPong()
	default:
		sess.Writer.SendError("unknown message type: " + msg.Type)
	}
}

func (h *Handler) onHello(sess *Session, msg *inboundMsg) {
	version := 1
	if msg.ListenMode != "" {
		sess.SetListenMode(msg.ListenMode)
		version = 2
	}
	sess.SetProtocolVersion(version)
	logger.Info("[Gateway] 握手",
		zap.String("session", sess.ID),
		zap.Int("version", version),
		zap.String("listenMode", msg.ListenMode))
	sess.Writer.SendHello(sess.ID, h.cfg.Audio.SampleRate, h.cfg.Audio.Channels, h.cfg.Audio.FrameDurationMs, version)
}

// onAudioStart 开始收音。流水线跑着时忽略，防止清掉正在处理的缓冲。
func (h *Handler) onAudioStart(sess *Session, mode string) {
	if sess.Processing() {
		logger.Info("[Gateway] 处理中，忽略新的收音请求", zap.String("session", sess.ID))
		return
	}
	if mode != "" {
		sess.SetListenMode(mode)
	}
	sess.ResetAudio()
	sess.SetTTSAbort(false)
	sess.SetListening(true)
}

func (h *Handler) onAudioEnd(sess *Session) {
	sess.SetListening(false)
	h.launchPipeline(sess)
}

// onAbort 协作中断：立刻确认 tts_end(abort)，流水线在检查点自行退出，
// 不再补发第二个 tts_end
func (h *Handler) onAbort(sess *Session, reason string) {
	sess.SetTTSAbort(true)
	logger.Info("[Gateway] 设备请求中断",
		zap.String("session", sess.ID),
		zap.String("reason", reason))
	sess.Writer.SendTTSEndReason("abort")
}

// launchPipeline 以后台任务启动一轮流水线，同会话同时至多一轮
func (h *Handler) launchPipeline(sess *Session) {
	if !sess.processing.CompareAndSwap(false, true) {
		logger.Info("[Gateway] 已有流水线在跑，忽略本次触发", zap.String("session", sess.ID))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	// 上一轮句柄未收尾的话先取消掉
	oldCancel, oldDone := sess.beginProcess(cancel, done)
	if oldCancel != nil && oldDone != nil {
		select {
		case <-oldDone:
		default:
			oldCancel()
		}
	}

	go func() {
		defer close(done)
		defer cancel()
		h.pipeline.Run(ctx, sess)
	}()
}

// teardown 断连清场：置中断标志、等流水线宽限退出、清会话历史、注销
func (h *Handler) teardown(sess *Session) {
	sess.Writer.MarkClosed()
	sess.SetTTSAbort(true)
	sess.SetMusicAbort(true)
	sess.SetListening(false)

	if cancel, done := sess.ProcessHandle(); done != nil {
		select {
		case <-done:
		case <-time.After(pipelineGrace):
			if cancel != nil {
				cancel()
			}
			select {
			case <-done:
			case <-time.After(500 * time.Millisecond):
				logger.Warn("[Gateway] 流水线未按时退出", zap.String("session", sess.ID))
			}
		}
	}

	h.pipeline.svc.LLM.ResetConversation(sess.ID)
	h.registry.Unregister(sess)
	metrics.ConnectionsActive.Dec()
	if err := models.UpdateDeviceOnlineStatus(h.db, sess.DeviceID, false); err != nil {
		logger.Warn("[Gateway] 更新设备离线状态失败",
			zap.String("deviceId", sess.DeviceID), zap.Error(err))
	}
	logger.Info("[Gateway] 会话结束",
		zap.String("deviceId", sess.DeviceID),
		zap.String("session", sess.ID),
		zap.Float64("idleS", sess.IdleSeconds()))
}
