package config

import (
	"errors"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"

	"github.com/voicebridge-ai/EchoGate/pkg/cache"
	"github.com/voicebridge-ai/EchoGate/pkg/logger"
)

// Config main configuration structure
type Config struct {
	Server   ServerConfig     `mapstructure:"server"`
	Database DatabaseConfig   `mapstructure:"database"`
	Log      logger.LogConfig `mapstructure:"log"`
	Cache    cache.Config     `mapstructure:"cache"`
	Auth     AuthConfig       `mapstructure:"auth"`
	Audio    AudioConfig      `mapstructure:"audio"`
	ASR      ASRConfig        `mapstructure:"asr"`
	OpenAI   OpenAIConfig     `mapstructure:"openai"`
	Executor ExecutorConfig   `mapstructure:"executor"`
	Music    MusicConfig      `mapstructure:"music"`
	Gateway  GatewayConfig    `mapstructure:"gateway"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Name   string `env:"SERVER_NAME"`
	Addr   string `env:"ADDR"`
	Mode   string `env:"MODE"`
	WSPath string `env:"WS_PATH"`
}

// DatabaseConfig database configuration
type DatabaseConfig struct {
	Driver string `env:"DB_DRIVER"`
	DSN    string `env:"DSN"`
}

// AuthConfig authentication configuration
type AuthConfig struct {
	SecretKey        string `env:"SECRET_KEY"`
	TokenExpireHours int    `env:"TOKEN_EXPIRE_HOURS"`
}

// AudioConfig 设备音频参数，握手时下发给固件
type AudioConfig struct {
	SampleRate      int `env:"PCM_SAMPLE_RATE"`
	Channels        int `env:"PCM_CHANNELS"`
	FrameDurationMs int `env:"FRAME_DURATION_MS"`
	TTSSampleRate   int `env:"TTS_SAMPLE_RATE"`
	OpusBitrate     int `env:"OPUS_BITRATE"`
}

// ASRConfig speech recognition configuration
type ASRConfig struct {
	Provider       string `env:"ASR_PROVIDER"`
	FunASRURL      string `env:"FUNASR_WS_URL"`
	FunASRHotwords string `env:"FUNASR_HOTWORDS"`
	FunASRITN      bool   `env:"FUNASR_ITN"`
}

// OpenAIConfig OpenAI-compatible provider configuration
type OpenAIConfig struct {
	APIKey       string `env:"OPENAI_API_KEY"`
	BaseURL      string `env:"OPENAI_BASE_URL"`
	ChatModel    string `env:"OPENAI_CHAT_MODEL"`
	ASRModel     string `env:"OPENAI_ASR_MODEL"`
	TTSModel     string `env:"OPENAI_TTS_MODEL"`
	TTSVoice     string `env:"OPENAI_TTS_VOICE"`
	SystemPrompt string `env:"SYSTEM_PROMPT"`
}

// ExecutorConfig 任务执行网关（OpenAI 兼容），未配置时 execute 意图退化为普通聊天
type ExecutorConfig struct {
	BaseURL string        `env:"OPENCLAW_URL"`
	Token   string        `env:"OPENCLAW_TOKEN"`
	Model   string        `env:"OPENCLAW_MODEL"`
	Timeout time.Duration `env:"OPENCLAW_TIMEOUT"`
}

// Configured reports whether the execution gateway can be used.
func (e ExecutorConfig) Configured() bool {
	return e.BaseURL != "" && e.Token != ""
}

// MusicConfig music playback configuration
type MusicConfig struct {
	YouTubeAPIKey string `env:"YOUTUBE_API_KEY"`
	MaxDurationS  int    `env:"MUSIC_MAX_DURATION_S"`
	YtdlpBin      string `env:"YTDLP_BIN"`
	FfmpegBin     string `env:"FFMPEG_BIN"`
}

// GatewayConfig voice gateway behavior knobs
type GatewayConfig struct {
	SendTimeout       time.Duration `env:"WS_SEND_TIMEOUT"`
	KeepaliveInterval time.Duration `env:"KEEPALIVE_INTERVAL"`
	IntentMode        bool          `env:"INTENT_MODE"`
	HistoryMaxTurns   int           `env:"HISTORY_MAX_TURNS"`
}

var GlobalConfig *Config

// Load 加载 .env 与环境变量到 GlobalConfig
func Load() error {
	env := os.Getenv("APP_ENV")
	if err := loadEnvFile(env); err != nil {
		log.Printf("Note: .env file not found or failed to load: %v (using default values)", err)
	}

	GlobalConfig = &Config{
		Server: ServerConfig{
			Name:   getStringOrDefault("SERVER_NAME", "EchoGate"),
			Addr:   getStringOrDefault("ADDR", ":8000"),
			Mode:   getStringOrDefault("MODE", "development"),
			WSPath: getStringOrDefault("WS_PATH", "/ws"),
		},
		Database: DatabaseConfig{
			Driver: getStringOrDefault("DB_DRIVER", "sqlite"),
			DSN:    getStringOrDefault("DSN", "./echogate.db"),
		},
		Log: logger.LogConfig{
			Level:      getStringOrDefault("LOG_LEVEL", "info"),
			Filename:   getStringOrDefault("LOG_FILENAME", "./logs/app.log"),
			MaxSize:    getIntOrDefault("LOG_MAX_SIZE", 100),
			MaxAge:     getIntOrDefault("LOG_MAX_AGE", 30),
			MaxBackups: getIntOrDefault("LOG_MAX_BACKUPS", 5),
			Daily:      getBoolOrDefault("LOG_DAILY", true),
		},
		Cache: loadCacheConfig(),
		Auth: AuthConfig{
			SecretKey:        getStringOrDefault("SECRET_KEY", "change-me-in-production-please"),
			TokenExpireHours: getIntOrDefault("TOKEN_EXPIRE_HOURS", 72),
		},
		Audio: AudioConfig{
			SampleRate:      getIntOrDefault("PCM_SAMPLE_RATE", 16000),
			Channels:        getIntOrDefault("PCM_CHANNELS", 1),
			FrameDurationMs: getIntOrDefault("FRAME_DURATION_MS", 60),
			TTSSampleRate:   getIntOrDefault("TTS_SAMPLE_RATE", 24000),
			OpusBitrate:     getIntOrDefault("OPUS_BITRATE", 24000),
		},
		ASR: ASRConfig{
			Provider:       strings.ToLower(getStringOrDefault("ASR_PROVIDER", "whisper")),
			FunASRURL:      getStringOrDefault("FUNASR_WS_URL", ""),
			FunASRHotwords: getStringOrDefault("FUNASR_HOTWORDS", ""),
			FunASRITN:      getBoolOrDefault("FUNASR_ITN", true),
		},
		OpenAI: OpenAIConfig{
			APIKey:       SanitizeASCII(getStringOrDefault("OPENAI_API_KEY", "")),
			BaseURL:      getStringOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			ChatModel:    getStringOrDefault("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
			ASRModel:     getStringOrDefault("OPENAI_ASR_MODEL", "whisper-1"),
			TTSModel:     getStringOrDefault("OPENAI_TTS_MODEL", "tts-1"),
			TTSVoice:     getStringOrDefault("OPENAI_TTS_VOICE", "alloy"),
			SystemPrompt: getStringOrDefault("SYSTEM_PROMPT", defaultSystemPrompt),
		},
		Executor: ExecutorConfig{
			BaseURL: getStringOrDefault("OPENCLAW_URL", ""),
			Token:   SanitizeASCII(getStringOrDefault("OPENCLAW_TOKEN", "")),
			Model:   getStringOrDefault("OPENCLAW_MODEL", "openclaw"),
			Timeout: parseDuration(getStringOrDefault("OPENCLAW_TIMEOUT", "120s"), 120*time.Second),
		},
		Music: MusicConfig{
			YouTubeAPIKey: SanitizeASCII(getStringOrDefault("YOUTUBE_API_KEY", "")),
			MaxDurationS:  getIntOrDefault("MUSIC_MAX_DURATION_S", 600),
			YtdlpBin:      getStringOrDefault("YTDLP_BIN", "yt-dlp"),
			FfmpegBin:     getStringOrDefault("FFMPEG_BIN", "ffmpeg"),
		},
		Gateway: GatewayConfig{
			SendTimeout:       parseDuration(getStringOrDefault("WS_SEND_TIMEOUT", "2s"), 2*time.Second),
			KeepaliveInterval: parseDuration(getStringOrDefault("KEEPALIVE_INTERVAL", "1s"), time.Second),
			IntentMode:        getBoolOrDefault("INTENT_MODE", true),
			HistoryMaxTurns:   getIntOrDefault("HISTORY_MAX_TURNS", 20),
		},
	}

	return nil
}

const defaultSystemPrompt = "你是一个友好的语音助手，回答要简短口语化，适合朗读。"

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return errors.New("database DSN is required")
	}
	if c.Server.Addr == "" {
		return errors.New("server address is required")
	}
	if c.Audio.FrameDurationMs <= 0 {
		return errors.New("frame duration must be positive")
	}
	if c.Audio.SampleRate <= 0 || c.Audio.Channels <= 0 {
		return errors.New("invalid PCM audio params")
	}
	if c.ASR.Provider == "funasr" && c.ASR.FunASRURL == "" {
		return errors.New("FUNASR_WS_URL is required when ASR_PROVIDER=funasr")
	}
	return nil
}

// SanitizeASCII 去掉 API key 里误粘贴的全角字符/零宽字符/空白
func SanitizeASCII(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r > 32 && r < 127 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// loadEnvFile loads .env (or .env.<APP_ENV>) if present.
func loadEnvFile(env string) error {
	if env != "" {
		if err := godotenv.Load(".env." + env); err == nil {
			return nil
		}
	}
	return godotenv.Load()
}

// getStringOrDefault gets environment variable value, returns default if empty
func getStringOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getBoolOrDefault gets boolean environment variable value, returns default if empty
func getBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return cast.ToBool(value)
}

// getIntOrDefault gets integer environment variable value, returns default if empty
func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return cast.ToInt(value)
}

// parseDuration parses duration string with default fallback
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// loadCacheConfig loads cache configuration with all default values
func loadCacheConfig() cache.Config {
	return cache.Config{
		Type: getStringOrDefault("CACHE_TYPE", "local"),
		Redis: cache.RedisConfig{
			Addr:         getStringOrDefault("REDIS_ADDR", "localhost:6379"),
			Password:     getStringOrDefault("REDIS_PASSWORD", ""),
			DB:           getIntOrDefault("REDIS_DB", 0),
			PoolSize:     getIntOrDefault("REDIS_POOL_SIZE", 10),
			MinIdleConns: getIntOrDefault("REDIS_MIN_IDLE_CONNS", 5),
			DialTimeout:  parseDuration(getStringOrDefault("REDIS_DIAL_TIMEOUT", "5s"), 5*time.Second),
			ReadTimeout:  parseDuration(getStringOrDefault("REDIS_READ_TIMEOUT", "3s"), 3*time.Second),
			WriteTimeout: parseDuration(getStringOrDefault("REDIS_WRITE_TIMEOUT", "3s"), 3*time.Second),
		},
		Local: cache.LocalConfig{
			DefaultExpiration: parseDuration(getStringOrDefault("LOCAL_CACHE_DEFAULT_EXPIRATION", "5m"), 5*time.Minute),
			CleanupInterval:   parseDuration(getStringOrDefault("LOCAL_CACHE_CLEANUP_INTERVAL", "10m"), 10*time.Minute),
		},
	}
}
