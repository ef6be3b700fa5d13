// Package media 设备音频的编解码与 PCM 处理：opus 帧、WAV 封装、重采样。
package media

import (
	"fmt"

	"github.com/hraban/opus"
)

const (
	// maxFrameMs opus 单包最长 120ms，解码缓冲按此预留
	maxFrameMs = 120
	// maxPacketBytes 单帧编码输出上限
	maxPacketBytes = 1275
)

// Decoder 按设备音频格式固定参数的 opus 解码器，非并发安全。
type Decoder struct {
	dec        *opus.Decoder
	sampleRate int
	channels   int
}

func NewDecoder(sampleRate, channels int) (*Decoder, error) {
	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus decoder: %w", err)
	}
	return &Decoder{dec: dec, sampleRate: sampleRate, channels: channels}, nil
}

// DecodeFrame 解一个 opus 包，返回 s16le PCM 采样
func (d *Decoder) DecodeFrame(packet []byte) ([]int16, error) {
	if len(packet) == 0 {
		return nil, fmt.Errorf("empty opus packet")
	}
	pcm := make([]int16, d.sampleRate*maxFrameMs/1000*d.channels)
	n, err := d.dec.Decode(packet, pcm)
	if err != nil {
		return nil, fmt.Errorf("opus decode failed: %w", err)
	}
	return pcm[:n*d.channels], nil
}

// DecodeAll 把设备上送的整段 opus 包序列拼成连续 PCM
func (d *Decoder) DecodeAll(packets [][]byte) ([]int16, error) {
	out := make([]int16, 0, len(packets)*d.sampleRate*60/1000)
	for i, pkt := range packets {
		pcm, err := d.DecodeFrame(pkt)
		if err != nil {
			return nil, fmt.Errorf("packet %d/%d: %w", i+1, len(packets), err)
		}
		out = append(out, pcm...)
	}
	return out, nil
}

// Encoder 下行 opus 编码器，非并发安全。
type Encoder struct {
	enc      *opus.Encoder
	channels int
}

// NewEncoder 语音下发用 VoIP 档编码器，开 DTX 与带内 FEC
func NewEncoder(sampleRate, channels, bitrate int) (*Encoder, error) {
	return newEncoder(sampleRate, channels, bitrate, opus.AppVoIP)
}

// NewAudioEncoder 音乐流用 Audio 档编码器
func NewAudioEncoder(sampleRate, channels, bitrate int) (*Encoder, error) {
	return newEncoder(sampleRate, channels, bitrate, opus.AppAudio)
}

func newEncoder(sampleRate, channels, bitrate int, app opus.Application) (*Encoder, error) {
	enc, err := opus.NewEncoder(sampleRate, channels, app)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}
	if err := enc.SetBitrate(bitrate); err != nil {
		return nil, fmt.Errorf("failed to set bitrate: %w", err)
	}
	if app == opus.AppVoIP {
		if err := enc.SetDTX(true); err != nil {
			return nil, fmt.Errorf("failed to enable DTX: %w", err)
		}
		if err := enc.SetInBandFEC(true); err != nil {
			return nil, fmt.Errorf("failed to enable FEC: %w", err)
		}
	}
	return &Encoder{enc: enc, channels: channels}, nil
}

// EncodeFrame 编码恰好一帧 PCM（frameSamples*channels 个采样）
func (e *Encoder) EncodeFrame(pcm []int16) ([]byte, error) {
	buf := make([]byte, maxPacketBytes)
	n, err := e.enc.Encode(pcm, buf)
	if err != nil {
		return nil, fmt.Errorf("opus encode failed: %w", err)
	}
	out := make([]byte, n)
	copy(out, buf[:n])
	return out, nil
}

// EncodeFrames 把连续 PCM 切成 frameSamples 大小的帧逐帧编码，
// 尾帧不足时补零到整帧。
func (e *Encoder) EncodeFrames(pcm []int16, frameSamples int) ([][]byte, error) {
	if frameSamples <= 0 {
		return nil, fmt.Errorf("invalid frame size: %d", frameSamples)
	}
	step := frameSamples * e.channels
	frames := make([][]byte, 0, (len(pcm)+step-1)/step)
	for off := 0; off < len(pcm); off += step {
		end := off + step
		var chunk []int16
		if end <= len(pcm) {
			chunk = pcm[off:end]
		} else {
			chunk = make([]int16, step)
			copy(chunk, pcm[off:])
		}
		frame, err := e.EncodeFrame(chunk)
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

// SilenceFrame 编码一帧静音，长任务保活时下发占位音频用
func SilenceFrame(sampleRate, channels, frameSamples int) ([]byte, error) {
	enc, err := NewEncoder(sampleRate, channels, 24000)
	if err != nil {
		return nil, err
	}
	return enc.EncodeFrame(make([]int16, frameSamples*channels))
}
