// Package tts 语音合成适配层：OpenAI 兼容接口出 24kHz PCM，
// 重采样到设备采样率后按 60ms 帧编成 opus。
package tts

import (
	"context"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/voicebridge-ai/EchoGate/pkg/config"
	"github.com/voicebridge-ai/EchoGate/pkg/logger"
	"github.com/voicebridge-ai/EchoGate/pkg/media"
	"github.com/voicebridge-ai/EchoGate/pkg/provider"
)

// Service 合成服务，按全局配置构造，调用时可带用户覆盖。
type Service struct {
	clients         *provider.ClientCache
	ttsModel        string
	ttsVoice        string
	ttsRate         int
	sampleRate      int
	channels        int
	bitrate         int
	frameDurationMs int
}

func NewService(cfg *config.Config, clients *provider.ClientCache) *Service {
	return &Service{
		clients:         clients,
		ttsModel:        cfg.OpenAI.TTSModel,
		ttsVoice:        cfg.OpenAI.TTSVoice,
		ttsRate:         cfg.Audio.TTSSampleRate,
		sampleRate:      cfg.Audio.SampleRate,
		channels:        cfg.Audio.Channels,
		bitrate:         cfg.Audio.OpusBitrate,
		frameDurationMs: cfg.Audio.FrameDurationMs,
	}
}

// Synthesize 文本转有序 opus 帧。用户配置失败时回退全局默认重试一次。
func (s *Service) Synthesize(ctx context.Context, text string, ov *provider.Overrides) ([][]byte, error) {
	model := ov.TTSModelOr(s.ttsModel)
	voice := ov.TTSVoiceOr(s.ttsVoice)

	logger.Info("[TTS] synthesizing",
		zap.String("text", clip(text, 50)),
		zap.String("model", model),
		zap.String("voice", voice))

	pcm, err := s.createSpeech(ctx, s.clients.ForOverrides(ov), model, voice, text)
	if err != nil && ov.HasCustomClient() {
		logger.Warn("[TTS] user provider failed, retrying on default", zap.Error(err))
		pcm, err = s.createSpeech(ctx, s.clients.Default(), s.ttsModel, s.ttsVoice, text)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("[TTS] received PCM", zap.Int("bytes", len(pcm)), zap.Int("rate", s.ttsRate))
	return s.encode(pcm)
}

func (s *Service) createSpeech(ctx context.Context, client *openai.Client, model, voice, text string) ([]byte, error) {
	resp, err := client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(model),
		Input:          text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatPcm,
	})
	if err != nil {
		return nil, fmt.Errorf("speech request failed: %w", err)
	}
	defer resp.Close()
	return io.ReadAll(resp)
}

// encode 重采样到设备采样率并按帧时长切片编码，尾帧补零
func (s *Service) encode(pcm []byte) ([][]byte, error) {
	samples := media.BytesToInt16(pcm)
	switch {
	case s.ttsRate == s.sampleRate:
	case s.ttsRate == 24000 && s.sampleRate == 16000:
		samples = media.Resample24To16(samples)
	default:
		return nil, fmt.Errorf("unsupported resample %d -> %d", s.ttsRate, s.sampleRate)
	}

	enc, err := media.NewEncoder(s.sampleRate, s.channels, s.bitrate)
	if err != nil {
		return nil, err
	}
	frameSamples := s.sampleRate * s.frameDurationMs / 1000
	frames, err := enc.EncodeFrames(samples, frameSamples)
	if err != nil {
		return nil, err
	}

	logger.Info("[TTS] encoded opus frames", zap.Int("frames", len(frames)))
	return frames, nil
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
