// Package asr 语音识别适配层：whisper（OpenAI 接口）与 funasr（自建 WS 服务）。
package asr

import (
	"context"

	"go.uber.org/zap"

	"github.com/voicebridge-ai/EchoGate/pkg/config"
	"github.com/voicebridge-ai/EchoGate/pkg/logger"
	"github.com/voicebridge-ai/EchoGate/pkg/media"
	"github.com/voicebridge-ai/EchoGate/pkg/metrics"
	"github.com/voicebridge-ai/EchoGate/pkg/provider"
)

// minDurationS 低于半秒多半是误触或环境噪声，不值得打一次识别
const minDurationS = 0.5

// Service 识别服务，按全局配置构造，调用时可带用户覆盖。
type Service struct {
	clients    *provider.ClientCache
	provider   string
	asrModel   string
	funasrURL  string
	hotwords   string
	itn        bool
	sampleRate int
	channels   int
}

func NewService(cfg *config.Config, clients *provider.ClientCache) *Service {
	return &Service{
		clients:    clients,
		provider:   cfg.ASR.Provider,
		asrModel:   cfg.OpenAI.ASRModel,
		funasrURL:  cfg.ASR.FunASRURL,
		hotwords:   cfg.ASR.FunASRHotwords,
		itn:        cfg.ASR.FunASRITN,
		sampleRate: cfg.Audio.SampleRate,
		channels:   cfg.Audio.Channels,
	}
}

// Transcribe 整段 PCM 转文本。短音频与幻觉文本返回空串（无错误），
// funasr 失败自动回退 whisper。
func (s *Service) Transcribe(ctx context.Context, pcm []byte, ov *provider.Overrides) (string, error) {
	duration := media.DurationSeconds(len(pcm)/2/s.channels, s.sampleRate)
	if duration < minDurationS {
		logger.Info("[ASR] skipping short audio", zap.Float64("seconds", duration))
		return "", nil
	}

	pcm = media.Int16ToBytes(media.NormalizePeak(media.BytesToInt16(pcm)))

	name := ov.ASRProviderOr(s.provider)
	logger.Info("[ASR] transcribing",
		zap.Int("bytes", len(pcm)),
		zap.Float64("seconds", duration),
		zap.String("provider", name))

	var text string
	var err error
	if name == "funasr" && s.funasrURL != "" {
		text, err = s.transcribeFunASR(ctx, pcm)
		if err != nil {
			logger.Warn("[ASR] funasr failed, falling back to whisper", zap.Error(err))
			metrics.ASRFallbacks.Inc()
			text, err = s.transcribeWhisper(ctx, pcm, ov)
		}
	} else {
		text, err = s.transcribeWhisper(ctx, pcm, ov)
	}
	if err != nil {
		return "", err
	}
	return FilterHallucination(text), nil
}
