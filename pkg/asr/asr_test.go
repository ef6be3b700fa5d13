package asr

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicebridge-ai/EchoGate/pkg/media"
	"github.com/voicebridge-ai/EchoGate/pkg/provider"
)

// speechPCM 一段足够响的正弦波，seconds 秒 @16kHz 单声道
func speechPCM(seconds float64) []byte {
	n := int(seconds * 16000)
	pcm := make([]int16, n)
	for i := range pcm {
		pcm[i] = int16(20000 * math.Sin(2*math.Pi*300*float64(i)/16000))
	}
	return media.Int16ToBytes(pcm)
}

func newWhisperStub(t *testing.T, text string, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		assert.Contains(t, r.URL.Path, "/audio/transcriptions")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"` + text + `"}`))
	}))
}

func newTestService(clients *provider.ClientCache) *Service {
	return &Service{
		clients:    clients,
		provider:   "whisper",
		asrModel:   "whisper-1",
		itn:        true,
		sampleRate: 16000,
		channels:   1,
	}
}

func TestTranscribeShortAudioSkipsProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("provider must not be called for short audio")
	}))
	defer srv.Close()

	s := newTestService(provider.NewClientCache("test-key", srv.URL+"/v1"))
	text, err := s.Transcribe(context.Background(), speechPCM(0.3), nil)
	require.NoError(t, err)
	assert.Equal(t, "", text)
}

func TestTranscribeWhisper(t *testing.T) {
	srv := newWhisperStub(t, "今天天气怎么样", nil)
	defer srv.Close()

	s := newTestService(provider.NewClientCache("test-key", srv.URL+"/v1"))
	text, err := s.Transcribe(context.Background(), speechPCM(1.0), nil)
	require.NoError(t, err)
	assert.Equal(t, "今天天气怎么样", text)
}

func TestTranscribeFiltersHallucination(t *testing.T) {
	srv := newWhisperStub(t, "谢谢观看", nil)
	defer srv.Close()

	s := newTestService(provider.NewClientCache("test-key", srv.URL+"/v1"))
	text, err := s.Transcribe(context.Background(), speechPCM(1.0), nil)
	require.NoError(t, err)
	assert.Equal(t, "", text)
}

func TestTranscribeWhisperUserConfigFallsBack(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	}))
	defer broken.Close()

	var defaultCalls atomic.Int32
	good := newWhisperStub(t, "回退成功", &defaultCalls)
	defer good.Close()

	s := newTestService(provider.NewClientCache("default-key", good.URL+"/v1"))
	ov := &provider.Overrides{APIKey: "user-key", BaseURL: broken.URL + "/v1"}
	text, err := s.Transcribe(context.Background(), speechPCM(1.0), ov)
	require.NoError(t, err)
	assert.Equal(t, "回退成功", text)
	assert.Equal(t, int32(1), defaultCalls.Load())
}

func newFunASRStub(t *testing.T, text string, audioBytes *atomic.Int64) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Error(err)
			return
		}
		defer conn.Close()

		// 配置帧
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			t.Error(err)
			return
		}
		assert.Equal(t, websocket.TextMessage, mt)
		var cfg map[string]any
		assert.NoError(t, json.Unmarshal(msg, &cfg))
		assert.Equal(t, "offline", cfg["mode"])
		assert.EqualValues(t, 16000, cfg["audio_fs"])
		assert.NotEmpty(t, cfg["hotwords"])

		// 音频帧直到结束标记
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				t.Error(err)
				return
			}
			if mt == websocket.TextMessage {
				assert.Contains(t, string(msg), "is_speaking")
				break
			}
			if audioBytes != nil {
				audioBytes.Add(int64(len(msg)))
			}
			assert.LessOrEqual(t, len(msg), funasrChunkBytes)
		}

		_ = conn.WriteJSON(map[string]any{"text": text, "is_final": true, "mode": "offline"})
	}))
}

func TestTranscribeFunASR(t *testing.T) {
	var audioBytes atomic.Int64
	srv := newFunASRStub(t, "播放音乐", &audioBytes)
	defer srv.Close()

	s := newTestService(provider.NewClientCache("test-key", ""))
	s.provider = "funasr"
	s.funasrURL = "ws" + strings.TrimPrefix(srv.URL, "http")

	pcm := speechPCM(1.0)
	text, err := s.Transcribe(context.Background(), pcm, nil)
	require.NoError(t, err)
	assert.Equal(t, "播放音乐", text)
	assert.Equal(t, int64(len(pcm)), audioBytes.Load())
}

func TestTranscribeFunASRFallsBackToWhisper(t *testing.T) {
	var whisperCalls atomic.Int32
	whisper := newWhisperStub(t, "兜底识别", &whisperCalls)
	defer whisper.Close()

	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := "ws" + strings.TrimPrefix(dead.URL, "http")
	dead.Close() // 拨号必然失败

	s := newTestService(provider.NewClientCache("test-key", whisper.URL+"/v1"))
	s.provider = "funasr"
	s.funasrURL = deadURL

	text, err := s.Transcribe(context.Background(), speechPCM(1.0), nil)
	require.NoError(t, err)
	assert.Equal(t, "兜底识别", text)
	assert.Equal(t, int32(1), whisperCalls.Load())
}

func TestTrimPrompt(t *testing.T) {
	assert.Equal(t, "短提示", trimPrompt("短提示"))
	long := strings.Repeat("字", maxPromptRunes+50)
	assert.Equal(t, maxPromptRunes, len([]rune(trimPrompt(long))))
	assert.LessOrEqual(t, len([]rune(asrPrompt)), maxPromptRunes)
}
