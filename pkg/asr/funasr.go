package asr

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// funasr 离线转写协议：
//  1. 文本帧下发 JSON 配置（mode=offline）
//  2. 二进制帧分块发送 PCM
//  3. 文本帧发送 {"is_speaking": false}
//  4. 读 JSON 结果直到 is_final 或 mode 为 offline

const (
	funasrChunkBytes  = 1920 * 2 // 60ms 采样 * 2 字节
	funasrDialTimeout = 5 * time.Second
	funasrReadTimeout = 30 * time.Second
)

// defaultHotwords 命令词热词表，提升短语音命中率
const defaultHotwords = "播放 音乐 暂停 继续 停止 下一首 切歌 提醒 闹钟 天气 搜索 会议 记一下 清空 你好 再见"

type funasrConfig struct {
	Mode       string `json:"mode"`
	WavName    string `json:"wav_name"`
	WavFormat  string `json:"wav_format"`
	IsSpeaking bool   `json:"is_speaking"`
	AudioFs    int    `json:"audio_fs"`
	ITN        bool   `json:"itn"`
	Hotwords   string `json:"hotwords,omitempty"`
}

type funasrResult struct {
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
	Mode    string `json:"mode"`
}

func (s *Service) transcribeFunASR(ctx context.Context, pcm []byte) (string, error) {
	log := logrus.WithFields(logrus.Fields{
		"provider": "funasr",
		"url":      s.funasrURL,
		"bytes":    len(pcm),
	})

	dialer := websocket.Dialer{HandshakeTimeout: funasrDialTimeout}
	conn, resp, err := dialer.DialContext(ctx, s.funasrURL, http.Header{})
	if err != nil {
		if resp != nil {
			return "", fmt.Errorf("funasr dial failed (status %d): %w", resp.StatusCode, err)
		}
		return "", fmt.Errorf("funasr dial failed: %w", err)
	}
	defer conn.Close()

	hotwords := s.hotwords
	if hotwords == "" {
		hotwords = defaultHotwords
	}
	cfg := funasrConfig{
		Mode:       "offline",
		WavName:    "echogate_audio",
		WavFormat:  "pcm",
		IsSpeaking: true,
		AudioFs:    s.sampleRate,
		ITN:        s.itn,
		Hotwords:   hotwords,
	}
	if err := conn.WriteJSON(cfg); err != nil {
		return "", fmt.Errorf("funasr config frame: %w", err)
	}

	for off := 0; off < len(pcm); off += funasrChunkBytes {
		end := off + funasrChunkBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, pcm[off:end]); err != nil {
			return "", fmt.Errorf("funasr audio frame: %w", err)
		}
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"is_speaking": false}`)); err != nil {
		return "", fmt.Errorf("funasr end frame: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(funasrReadTimeout))
	var text string
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return "", fmt.Errorf("funasr read: %w", err)
		}
		var result funasrResult
		if err := json.Unmarshal(msg, &result); err != nil {
			log.WithError(err).Warn("funasr: skipping non-JSON frame")
			continue
		}
		text = result.Text
		if result.IsFinal || result.Mode == "offline" {
			break
		}
	}

	text = strings.TrimSpace(text)
	if text != "" {
		log.WithField("text", text).Info("funasr result")
	}
	return text, nil
}
