package music

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/voicebridge-ai/EchoGate/pkg/media"
)

const (
	// pausePoll 暂停期间的轮询间隔，基准时间跟着后移避免恢复后追帧
	pausePoll = 100 * time.Millisecond
	// maxConsecutiveSendErrors 连续发送失败即认定连接不可用
	maxConsecutiveSendErrors = 3
)

// Controls 播放循环要尊重的会话标志
type Controls interface {
	Paused() bool
	Aborted() bool
}

// Player 把 PCM 流切成固定时长的帧，opus 编码后按实际播放速率下发
type Player struct {
	sampleRate    int
	channels      int
	frameDuration time.Duration
	frameSamples  int
	bitrate       int
}

func NewPlayer(sampleRate, channels, frameDurationMs, bitrate int) *Player {
	return &Player{
		sampleRate:    sampleRate,
		channels:      channels,
		frameDuration: time.Duration(frameDurationMs) * time.Millisecond,
		frameSamples:  sampleRate * frameDurationMs / 1000,
		bitrate:       bitrate,
	}
}

// Stream 边读边编边发，直到流结束、被打断或连接失效。
// 节奏同语音下发：目标时刻 = 起点 + 已发帧数 × 帧时长。
// 返回成功发出的帧数。
func (p *Player) Stream(ctx context.Context, pcm io.Reader, send func([]byte) bool, ctrl Controls) (int, error) {
	enc, err := media.NewAudioEncoder(p.sampleRate, p.channels, p.bitrate)
	if err != nil {
		return 0, err
	}

	frameBytes := p.frameSamples * p.channels * 2
	buf := make([]byte, frameBytes)
	sent := 0
	errStreak := 0
	start := time.Now()

	for {
		if ctrl.Aborted() || ctx.Err() != nil {
			return sent, nil
		}

		for ctrl.Paused() {
			select {
			case <-ctx.Done():
				return sent, nil
			case <-time.After(pausePoll):
			}
			if ctrl.Aborted() {
				return sent, nil
			}
			start = start.Add(pausePoll)
		}

		n, readErr := io.ReadFull(pcm, buf)
		if n == 0 {
			if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
				return sent, nil
			}
			return sent, readErr
		}

		last := false
		switch {
		case readErr == nil:
		case errors.Is(readErr, io.ErrUnexpectedEOF), errors.Is(readErr, io.EOF):
			// 尾帧补零到整帧
			for i := n; i < frameBytes; i++ {
				buf[i] = 0
			}
			last = true
		default:
			return sent, readErr
		}

		packet, encErr := enc.EncodeFrame(media.BytesToInt16(buf))
		if encErr != nil {
			return sent, encErr
		}

		if send(packet) {
			sent++
			errStreak = 0
		} else {
			errStreak++
			if errStreak >= maxConsecutiveSendErrors {
				return sent, nil
			}
		}

		if last {
			return sent, nil
		}

		target := start.Add(time.Duration(sent) * p.frameDuration)
		if wait := time.Until(target); wait > 0 {
			select {
			case <-ctx.Done():
				return sent, nil
			case <-time.After(wait):
			}
		}
	}
}
