package bootstrap

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/voicebridge-ai/EchoGate/pkg/config"
	"github.com/voicebridge-ai/EchoGate/pkg/logger"
)

// swapConfig 换上给定全局配置，用例结束后还原
func swapConfig(tb testing.TB, cfg *config.Config) {
	tb.Helper()
	original := config.GlobalConfig
	tb.Cleanup(func() { config.GlobalConfig = original })
	config.GlobalConfig = cfg
}

// swapLogger 把全局 logger 换成 observer，便于断言日志内容
func swapLogger(tb testing.TB) *observer.ObservedLogs {
	tb.Helper()
	core, recorded := observer.New(zapcore.InfoLevel)
	original := logger.Lg
	logger.Lg = zap.New(core)
	tb.Cleanup(func() { logger.Lg = original })
	return recorded
}

// captureStdout 截获 fn 执行期间写到标准输出的内容
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w
	defer func() { os.Stdout = old }()

	fn()

	require.NoError(t, w.Close())
	var buf bytes.Buffer
	_, err = buf.ReadFrom(r)
	require.NoError(t, err)
	return buf.String()
}

func TestLogConfigInfo(t *testing.T) {
	swapConfig(t, &config.Config{
		Server: config.ServerConfig{
			Name:   "Test Server",
			Addr:   ":8080",
			Mode:   "test",
			WSPath: "/ws",
		},
		Database: config.DatabaseConfig{
			Driver: "sqlite",
			DSN:    "./test.db",
		},
		Log: logger.LogConfig{
			Level:      "info",
			Filename:   "./test.log",
			MaxSize:    100,
			MaxAge:     30,
			MaxBackups: 5,
		},
		Auth: config.AuthConfig{
			SecretKey:        "test-secret",
			TokenExpireHours: 72,
		},
		Audio: config.AudioConfig{
			SampleRate:      16000,
			Channels:        1,
			FrameDurationMs: 60,
			TTSSampleRate:   24000,
			OpusBitrate:     24000,
		},
		ASR: config.ASRConfig{
			Provider: "whisper",
		},
		OpenAI: config.OpenAIConfig{
			APIKey:    "sk-test",
			BaseURL:   "https://api.openai.com/v1",
			ChatModel: "gpt-4o-mini",
		},
		Gateway: config.GatewayConfig{
			SendTimeout:       2 * time.Second,
			KeepaliveInterval: time.Second,
			IntentMode:        true,
			HistoryMaxTurns:   20,
		},
	})
	recorded := swapLogger(t)

	LogConfigInfo()

	// 每组配置一条日志，一条都不能少
	for _, msg := range []string{
		"system config load finished",
		"global config",
		"database config",
		"log config",
		"cache config",
		"auth config",
		"audio config",
		"asr config",
		"openai config",
		"executor config",
		"music config",
		"gateway config",
	} {
		assert.Equal(t, 1, recorded.FilterMessage(msg).Len(), msg)
	}

	global := recorded.FilterMessage("global config").All()
	require.Len(t, global, 1)
	m := global[0].ContextMap()
	assert.Equal(t, "Test Server", m["server_name"])
	assert.Equal(t, "test", m["mode"])
	assert.Equal(t, ":8080", m["addr"])
	assert.Equal(t, "/ws", m["ws_path"])
}

func TestLogConfigInfoDoesNotLeakSecrets(t *testing.T) {
	swapConfig(t, &config.Config{
		Auth: config.AuthConfig{
			SecretKey: "super-secret-signing-key",
		},
		OpenAI: config.OpenAIConfig{
			APIKey: "sk-do-not-log-me",
		},
		Music: config.MusicConfig{
			YouTubeAPIKey: "yt-do-not-log-me",
		},
	})
	recorded := swapLogger(t)

	LogConfigInfo()

	// 密钥本身不允许出现在任何字段里，只打是否已设置
	for _, entry := range recorded.All() {
		for key, value := range entry.ContextMap() {
			if s, ok := value.(string); ok {
				assert.NotContains(t, s, "super-secret-signing-key", key)
				assert.NotContains(t, s, "sk-do-not-log-me", key)
				assert.NotContains(t, s, "yt-do-not-log-me", key)
			}
		}
	}

	auth := recorded.FilterMessage("auth config").All()
	require.Len(t, auth, 1)
	assert.Equal(t, true, auth[0].ContextMap()["secret_key_set"])

	oai := recorded.FilterMessage("openai config").All()
	require.Len(t, oai, 1)
	assert.Equal(t, true, oai[0].ContextMap()["api_key_set"])
}

func TestLogConfigInfoEmptyConfig(t *testing.T) {
	swapConfig(t, &config.Config{})
	recorded := swapLogger(t)

	assert.NotPanics(t, LogConfigInfo)
	assert.Greater(t, recorded.Len(), 0)
}

func TestPrintBannerFromFile(t *testing.T) {
	bannerPath := filepath.Join(t.TempDir(), "banner.txt")
	require.NoError(t, os.WriteFile(bannerPath, []byte("  EchoGate\n  voice gateway\n"), 0644))

	var err error
	output := captureStdout(t, func() {
		err = PrintBannerFromFile(bannerPath)
	})
	require.NoError(t, err)

	assert.Contains(t, output, "EchoGate")
	assert.Contains(t, output, "voice gateway")
	// 带 256 色前缀并在行尾复位
	assert.Contains(t, output, "\x1b[38;5;")
	assert.Contains(t, output, "\x1b[0m")
}

func TestPrintBannerFromFileNotFound(t *testing.T) {
	err := PrintBannerFromFile("/nonexistent/banner.txt")
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err))
}

func TestPrintBannerFromFileEmpty(t *testing.T) {
	bannerPath := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(bannerPath, nil, 0644))

	var err error
	output := captureStdout(t, func() {
		err = PrintBannerFromFile(bannerPath)
	})
	require.NoError(t, err)
	assert.Contains(t, output, "\x1b[0m")
}

func TestPrintBannerFromFileColorCycling(t *testing.T) {
	lines := make([]string, 12)
	for i := range lines {
		lines[i] = fmt.Sprintf("banner line %02d", i)
	}
	bannerPath := filepath.Join(t.TempDir(), "colors.txt")
	require.NoError(t, os.WriteFile(bannerPath, []byte(strings.Join(lines, "\n")), 0644))

	var err error
	output := captureStdout(t, func() {
		err = PrintBannerFromFile(bannerPath)
	})
	require.NoError(t, err)

	for _, line := range lines {
		assert.Contains(t, output, line)
	}

	// 调色板有 6 种颜色，12 行正好循环两轮
	outLines := strings.Split(output, "\n")
	require.GreaterOrEqual(t, len(outLines), 12)
	assert.Equal(t, "\x1b[38;5;165m", colorOf(outLines[0]))
	assert.Equal(t, "\x1b[38;5;189m", colorOf(outLines[1]))
	assert.Equal(t, colorOf(outLines[0]), colorOf(outLines[6]))
	assert.Equal(t, colorOf(outLines[5]), colorOf(outLines[11]))
}

// colorOf 取一行开头的 256 色转义序列
func colorOf(line string) string {
	start := strings.Index(line, "\x1b[38;5;")
	if start < 0 {
		return ""
	}
	end := strings.IndexByte(line[start:], 'm')
	if end < 0 {
		return ""
	}
	return line[start : start+end+1]
}

func BenchmarkLogConfigInfo(b *testing.B) {
	swapConfig(b, &config.Config{
		Server: config.ServerConfig{
			Name: "Benchmark Server",
			Mode: "release",
			Addr: ":8080",
		},
		Database: config.DatabaseConfig{
			Driver: "sqlite",
			DSN:    "./bench.db",
		},
	})

	original := logger.Lg
	logger.Lg = zap.NewNop()
	defer func() { logger.Lg = original }()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		LogConfigInfo()
	}
}
