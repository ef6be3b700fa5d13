package gateway

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/voicebridge-ai/EchoGate/pkg/logger"
	"github.com/voicebridge-ai/EchoGate/pkg/metrics"
)

// DefaultSendTimeout 单次写超时。设备掉线后 WriteMessage 可能长时间阻塞，
// 超时返回 false 让上游停发。
const DefaultSendTimeout = 2 * time.Second

// Writer 串行化的 WebSocket 发送端。gorilla conn 只允许一个写者，
// 所有出站消息都走这里。发送失败不 panic，只返回 false。
type Writer struct {
	conn        *websocket.Conn
	mu          sync.Mutex
	sendTimeout time.Duration
	closed      atomic.Bool
}

func NewWriter(conn *websocket.Conn, sendTimeout time.Duration) *Writer {
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}
	return &Writer{conn: conn, sendTimeout: sendTimeout}
}

// Closed 连接是否已经写失败过（之后所有发送直接返回 false）
func (w *Writer) Closed() bool {
	return w.closed.Load()
}

// MarkClosed 读循环退出时调用，阻断后续发送
func (w *Writer) MarkClosed() {
	w.closed.Store(true)
}

func (w *Writer) send(messageType int, data []byte, label string) bool {
	if w.closed.Load() {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(w.sendTimeout))
	err := w.conn.WriteMessage(messageType, data)
	if err == nil {
		return true
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		logger.Debug("[Gateway Writer] 连接已关闭，停止写入", zap.String("label", label), zap.Error(err))
	} else {
		logger.Warn("[Gateway Writer] 写入失败", zap.String("label", label), zap.Error(err))
	}
	w.closed.Store(true)
	metrics.SendFailures.Inc()
	return false
}

// SendJSON 序列化并发送文本帧，label 只用于失败日志
func (w *Writer) SendJSON(v interface{}, label string) bool {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Error("[Gateway Writer] 序列化消息失败", zap.String("label", label), zap.Error(err))
		return false
	}
	return w.send(websocket.TextMessage, data, label)
}

// SendBinary 发送一帧音频数据
func (w *Writer) SendBinary(data []byte) bool {
	if !w.send(websocket.BinaryMessage, data, "binary") {
		return false
	}
	metrics.AudioFramesSent.Inc()
	return true
}

// Ping 发送 ping 控制帧。WriteControl 自带并发保护，不占写锁，
// 流水线排空音频时也能保活。
func (w *Writer) Ping() bool {
	if w.closed.Load() {
		return false
	}
	err := w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(w.sendTimeout))
	if err != nil {
		logger.Debug("[Gateway Writer] ping 失败", zap.Error(err))
		return false
	}
	return true
}

// CloseWithCode 发关闭帧后断开底层连接，认证失败等场景使用
func (w *Writer) CloseWithCode(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(w.sendTimeout))
	w.closed.Store(true)
	_ = w.conn.Close()
}

// SendHello 握手应答，带音频参数与能力位
func (w *Writer) SendHello(sessionID string, sampleRate, channels, frameDurationMs, version int) bool {
	return w.SendJSON(map[string]interface{}{
		"type":       "hello",
		"session_id": sessionID,
		"audio_params": map[string]interface{}{
			"sample_rate":       sampleRate,
			"channels":          channels,
			"codec":             "opus",
			"frame_duration_ms": frameDurationMs,
		},
		"features": map[string]bool{
			"asr":   true,
			"tts":   true,
			"llm":   true,
			"abort": true,
		},
		"version": version,
	}, "hello")
}

// SendASRText 推送识别结果
func (w *Writer) SendASRText(text string) bool {
	return w.SendJSON(map[string]interface{}{
		"type": "asr_text",
		"text": text,
	}, "asr_text")
}

// SendTTSStart 音频流开始标记，text 为空时省略
func (w *Writer) SendTTSStart(text string) bool {
	msg := map[string]interface{}{"type": "tts_start"}
	if text != "" {
		msg["text"] = text
	}
	return w.SendJSON(msg, "tts_start")
}

// SendTTSEnd 正常结束标记
func (w *Writer) SendTTSEnd() bool {
	return w.SendJSON(map[string]interface{}{"type": "tts_end"}, "tts_end")
}

// SendTTSEndReason 带原因的结束标记（abort 确认用）
func (w *Writer) SendTTSEndReason(reason string) bool {
	return w.SendJSON(map[string]interface{}{
		"type":   "tts_end",
		"reason": reason,
	}, "tts_end")
}

// SendError 错误消息，不断开连接
func (w *Writer) SendError(message string) bool {
	return w.SendJSON(map[string]interface{}{
		"type":    "error",
		"message": message,
	}, "error")
}

// SendPong 应用层 pong
func (w *Writer) SendPong() bool {
	return w.SendJSON(map[string]interface{}{"type": "pong"}, "pong")
}

// SendVolume 通知设备调整播放音量
func (w *Writer) SendVolume(level int) bool {
	return w.SendJSON(map[string]interface{}{
		"type":  "volume",
		"level": level,
	}, "volume")
}
