package config

import (
	"testing"
	"time"
)

// 为了避免不同用例间互相污染，统一用 t.Setenv 设置环境变量
func setAllEnvs(t *testing.T) {
	t.Setenv("SERVER_NAME", "gate-test")
	t.Setenv("ADDR", ":9000")
	t.Setenv("MODE", "release")
	t.Setenv("WS_PATH", "/ws/v1")
	t.Setenv("DB_DRIVER", "mysql")
	t.Setenv("DSN", "user:pass@tcp(localhost:3306)/gate")
	t.Setenv("SECRET_KEY", "unit-test-secret")
	t.Setenv("TOKEN_EXPIRE_HOURS", "24")

	// 音频
	t.Setenv("PCM_SAMPLE_RATE", "8000")
	t.Setenv("PCM_CHANNELS", "2")
	t.Setenv("FRAME_DURATION_MS", "20")

	// ASR
	t.Setenv("ASR_PROVIDER", "FunASR")
	t.Setenv("FUNASR_WS_URL", "ws://localhost:10095")

	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENCLAW_TIMEOUT", "30s")
	t.Setenv("WS_SEND_TIMEOUT", "500ms")
	t.Setenv("INTENT_MODE", "false")
}

func TestLoadFromEnv(t *testing.T) {
	setAllEnvs(t)

	if err := Load(); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	cfg := GlobalConfig

	if cfg.Server.Name != "gate-test" {
		t.Fatalf("Server.Name = %q, want gate-test", cfg.Server.Name)
	}
	if cfg.Server.Addr != ":9000" {
		t.Fatalf("Server.Addr = %q, want :9000", cfg.Server.Addr)
	}
	if cfg.Database.Driver != "mysql" {
		t.Fatalf("Database.Driver = %q, want mysql", cfg.Database.Driver)
	}
	if cfg.Auth.TokenExpireHours != 24 {
		t.Fatalf("Auth.TokenExpireHours = %d, want 24", cfg.Auth.TokenExpireHours)
	}
	if cfg.Audio.SampleRate != 8000 || cfg.Audio.Channels != 2 || cfg.Audio.FrameDurationMs != 20 {
		t.Fatalf("Audio = %+v, env values not applied", cfg.Audio)
	}
	// Provider 统一转小写
	if cfg.ASR.Provider != "funasr" {
		t.Fatalf("ASR.Provider = %q, want funasr", cfg.ASR.Provider)
	}
	if cfg.Executor.Timeout != 30*time.Second {
		t.Fatalf("Executor.Timeout = %v, want 30s", cfg.Executor.Timeout)
	}
	if cfg.Gateway.SendTimeout != 500*time.Millisecond {
		t.Fatalf("Gateway.SendTimeout = %v, want 500ms", cfg.Gateway.SendTimeout)
	}
	if cfg.Gateway.IntentMode {
		t.Fatal("Gateway.IntentMode = true, want false")
	}
}

func TestLoadDefaults(t *testing.T) {
	if err := Load(); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	cfg := GlobalConfig

	if cfg.Audio.SampleRate != 16000 {
		t.Fatalf("default SampleRate = %d, want 16000", cfg.Audio.SampleRate)
	}
	if cfg.Audio.Channels != 1 {
		t.Fatalf("default Channels = %d, want 1", cfg.Audio.Channels)
	}
	if cfg.Audio.FrameDurationMs != 60 {
		t.Fatalf("default FrameDurationMs = %d, want 60", cfg.Audio.FrameDurationMs)
	}
	if cfg.OpenAI.ASRModel != "whisper-1" {
		t.Fatalf("default ASRModel = %q, want whisper-1", cfg.OpenAI.ASRModel)
	}
	if cfg.OpenAI.TTSModel != "tts-1" {
		t.Fatalf("default TTSModel = %q, want tts-1", cfg.OpenAI.TTSModel)
	}
	if cfg.OpenAI.TTSVoice != "alloy" {
		t.Fatalf("default TTSVoice = %q, want alloy", cfg.OpenAI.TTSVoice)
	}
	if cfg.Music.MaxDurationS != 600 {
		t.Fatalf("default MaxDurationS = %d, want 600", cfg.Music.MaxDurationS)
	}
	if cfg.Gateway.SendTimeout != 2*time.Second {
		t.Fatalf("default SendTimeout = %v, want 2s", cfg.Gateway.SendTimeout)
	}
	if cfg.Gateway.KeepaliveInterval != time.Second {
		t.Fatalf("default KeepaliveInterval = %v, want 1s", cfg.Gateway.KeepaliveInterval)
	}
	if cfg.Executor.Configured() {
		t.Fatal("Executor.Configured() = true without env")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "empty DSN",
			mutate:  func(c *Config) { c.Database.DSN = "" },
			wantErr: true,
		},
		{
			name:    "empty addr",
			mutate:  func(c *Config) { c.Server.Addr = "" },
			wantErr: true,
		},
		{
			name:    "zero frame duration",
			mutate:  func(c *Config) { c.Audio.FrameDurationMs = 0 },
			wantErr: true,
		},
		{
			name:    "funasr without url",
			mutate:  func(c *Config) { c.ASR.Provider = "funasr"; c.ASR.FunASRURL = "" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Load(); err != nil {
				t.Fatalf("Load() error: %v", err)
			}
			cfg := GlobalConfig
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSanitizeASCII(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"pure ascii unchanged", "sk-abc123XYZ", "sk-abc123XYZ"},
		{"strips whitespace", " sk-abc \n", "sk-abc"},
		{"strips zero width space", "sk-​abc", "sk-abc"},
		{"strips cjk", "sk-密钥abc", "sk-abc"},
		{"strips latin-1 supplement", "sk-abéc", "sk-abc"},
		{"empty stays empty", "", ""},
		{"all unicode becomes empty", "密钥​é", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeASCII(tt.in); got != tt.want {
				t.Fatalf("SanitizeASCII(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
