package asr

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/voicebridge-ai/EchoGate/pkg/logger"
	"github.com/voicebridge-ai/EchoGate/pkg/media"
	"github.com/voicebridge-ai/EchoGate/pkg/provider"
)

// maxPromptRunes Whisper 提示词过长会反过来造成误识别，截断保护
const maxPromptRunes = 170

// asrPrompt 引导 Whisper 偏向命令词汇，降低同音误判
const asrPrompt = "EchoGate语音助手。播放音乐，放首歌，下一首，切歌，暂停，继续播放，停止播放，" +
	"音量大一点，音量小一点，提醒我，设置闹钟，今天天气怎么样，" +
	"搜索，帮我查一下，开始会议，结束会议，记一下，清空对话，你好，谢谢，再见。"

func trimPrompt(p string) string {
	r := []rune(p)
	if len(r) <= maxPromptRunes {
		return p
	}
	return string(r[:maxPromptRunes])
}

// transcribeWhisper PCM 封 WAV 后走 OpenAI 转写接口。
// 用户自配接口失败时回退全局默认再试一次。
func (s *Service) transcribeWhisper(ctx context.Context, pcm []byte, ov *provider.Overrides) (string, error) {
	wavBytes, err := media.PCMToWAV(pcm, s.sampleRate, s.channels)
	if err != nil {
		return "", err
	}

	text, err := s.createTranscription(ctx, s.clients.ForOverrides(ov), ov.ASRModelOr(s.asrModel), wavBytes)
	if err != nil && ov.HasCustomClient() {
		logger.Warn("[ASR] whisper failed on user config, retrying on default", zap.Error(err))
		text, err = s.createTranscription(ctx, s.clients.Default(), s.asrModel, wavBytes)
	}
	if err != nil {
		return "", fmt.Errorf("whisper transcription failed: %w", err)
	}
	return strings.TrimSpace(text), nil
}

func (s *Service) createTranscription(ctx context.Context, client *openai.Client, model string, wavBytes []byte) (string, error) {
	resp, err := client.CreateTranscription(ctx, openai.AudioRequest{
		Model:       model,
		Reader:      bytes.NewReader(wavBytes),
		FilePath:    "audio.wav",
		Temperature: 0,
		Language:    "zh",
		Prompt:      trimPrompt(asrPrompt),
		Format:      openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}
