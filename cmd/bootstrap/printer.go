package bootstrap

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/voicebridge-ai/EchoGate/pkg/config"
	"github.com/voicebridge-ai/EchoGate/pkg/logger"
)

// LogConfigInfo 启动时把生效配置逐组打进日志，密钥只打是否已设置
func LogConfigInfo() {
	cfg := config.GlobalConfig
	logger.Info("system config load finished")

	logger.Info("global config",
		zap.String("server_name", cfg.Server.Name),
		zap.String("mode", cfg.Server.Mode),
		zap.String("addr", cfg.Server.Addr),
		zap.String("ws_path", cfg.Server.WSPath),
	)

	logger.Info("database config",
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("dsn", cfg.Database.DSN),
	)

	logger.Info("log config",
		zap.String("log_level", cfg.Log.Level),
		zap.String("log_filename", cfg.Log.Filename),
		zap.Int("log_max_size", cfg.Log.MaxSize),
		zap.Int("log_max_age", cfg.Log.MaxAge),
		zap.Int("log_max_backups", cfg.Log.MaxBackups),
		zap.Bool("log_daily", cfg.Log.Daily),
	)

	logger.Info("cache config",
		zap.String("cache_type", cfg.Cache.Type),
		zap.String("redis_addr", cfg.Cache.Redis.Addr),
		zap.Int("redis_db", cfg.Cache.Redis.DB),
	)

	logger.Info("auth config",
		zap.Bool("secret_key_set", cfg.Auth.SecretKey != ""),
		zap.Int("token_expire_hours", cfg.Auth.TokenExpireHours),
	)

	logger.Info("audio config",
		zap.Int("sample_rate", cfg.Audio.SampleRate),
		zap.Int("channels", cfg.Audio.Channels),
		zap.Int("frame_duration_ms", cfg.Audio.FrameDurationMs),
		zap.Int("tts_sample_rate", cfg.Audio.TTSSampleRate),
		zap.Int("opus_bitrate", cfg.Audio.OpusBitrate),
	)

	logger.Info("asr config",
		zap.String("asr_provider", cfg.ASR.Provider),
		zap.String("funasr_url", cfg.ASR.FunASRURL),
		zap.Bool("funasr_itn", cfg.ASR.FunASRITN),
	)

	logger.Info("openai config",
		zap.String("base_url", cfg.OpenAI.BaseURL),
		zap.String("chat_model", cfg.OpenAI.ChatModel),
		zap.String("asr_model", cfg.OpenAI.ASRModel),
		zap.String("tts_model", cfg.OpenAI.TTSModel),
		zap.String("tts_voice", cfg.OpenAI.TTSVoice),
		zap.Bool("api_key_set", cfg.OpenAI.APIKey != ""),
	)

	logger.Info("executor config",
		zap.String("executor_url", cfg.Executor.BaseURL),
		zap.String("executor_model", cfg.Executor.Model),
		zap.Duration("executor_timeout", cfg.Executor.Timeout),
		zap.Bool("executor_configured", cfg.Executor.Configured()),
	)

	logger.Info("music config",
		zap.Int("max_duration_s", cfg.Music.MaxDurationS),
		zap.String("ytdlp_bin", cfg.Music.YtdlpBin),
		zap.String("ffmpeg_bin", cfg.Music.FfmpegBin),
		zap.Bool("youtube_key_set", cfg.Music.YouTubeAPIKey != ""),
	)

	logger.Info("gateway config",
		zap.Duration("send_timeout", cfg.Gateway.SendTimeout),
		zap.Duration("keepalive_interval", cfg.Gateway.KeepaliveInterval),
		zap.Bool("intent_mode", cfg.Gateway.IntentMode),
		zap.Int("history_max_turns", cfg.Gateway.HistoryMaxTurns),
	)
}

// PrintBannerFromFile Read file and print
func PrintBannerFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	lines := strings.Split(string(data), "\n")

	colors := []string{
		"\x1b[38;5;165m",
		"\x1b[38;5;189m",
		"\x1b[38;5;207m",
		"\x1b[38;5;219m",
		"\x1b[38;5;225m",
		"\x1b[38;5;231m",
	}

	for i, line := range lines {
		color := colors[i%len(colors)]
		fmt.Println(color + line + "\x1b[0m")
	}
	return nil
}
