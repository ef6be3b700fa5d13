package media

import (
	"bytes"
	"fmt"

	wav "github.com/youpy/go-wav"
)

// PCMToWAV 把裸 s16le PCM 包进 RIFF/WAVE 容器，上传 Whisper 用
func PCMToWAV(pcm []byte, sampleRate, channels int) ([]byte, error) {
	if channels <= 0 || sampleRate <= 0 {
		return nil, fmt.Errorf("invalid wav params: rate=%d channels=%d", sampleRate, channels)
	}
	var buf bytes.Buffer
	numSamples := uint32(len(pcm) / bytesPerSamp / channels)
	w := wav.NewWriter(&buf, numSamples, uint16(channels), uint32(sampleRate), 16)
	if _, err := w.Write(pcm); err != nil {
		return nil, fmt.Errorf("failed to build wav: %w", err)
	}
	return buf.Bytes(), nil
}

// IsWAV 简单校验 RIFF/WAVE 魔数
func IsWAV(data []byte) bool {
	if len(data) < 44 {
		return false
	}
	return string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}
