// Package gateway 设备 WebSocket 网关：连接握手、语音流水线、工具分发。
package gateway

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	gonanoid "github.com/matoous/go-nanoid"

	"github.com/voicebridge-ai/EchoGate/pkg/provider"
)

// Session 单连接会话状态。读循环 goroutine 独占写入，
// 调度器等旁路只读粗粒度标志（atomic）。
type Session struct {
	ID       string
	DeviceID string
	UserID   uint

	Writer    *Writer
	Overrides *provider.Overrides

	// 音频缓冲与协商结果，读循环内串行访问，流水线快照时加锁
	mu              sync.Mutex
	opusPackets     [][]byte
	listenMode      string
	protocolVersion int
	meetingNotes    []string

	listening     atomic.Bool
	processing    atomic.Bool
	ttsAbort      atomic.Bool
	musicPlaying  atomic.Bool
	musicPaused   atomic.Bool
	musicAbort    atomic.Bool
	meetingActive atomic.Bool

	volume atomic.Int32

	firstActivity time.Time
	lastActivity  atomic.Int64 // unix nano

	// 流水线任务句柄，断开时要先取消再走宽限等待
	procMu        sync.Mutex
	processCancel context.CancelFunc
	processDone   chan struct{}
}

func NewSession(deviceID string, userID uint, w *Writer, ov *provider.Overrides) *Session {
	now := time.Now()
	s := &Session{
		ID:              gonanoid.MustID(8),
		DeviceID:        deviceID,
		UserID:          userID,
		Writer:          w,
		Overrides:       ov,
		protocolVersion: 1,
		firstActivity:   now,
	}
	s.volume.Store(70)
	s.lastActivity.Store(now.UnixNano())
	return s
}

// Touch 刷新活跃时间戳，读循环每收到一条消息调用一次
func (s *Session) Touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

// IdleSeconds 距上次活跃的秒数
func (s *Session) IdleSeconds() float64 {
	return time.Since(time.Unix(0, s.lastActivity.Load())).Seconds()
}

// AppendAudio 追加一帧设备上行 opus 包，只在 listening 期间生效
func (s *Session) AppendAudio(frame []byte) {
	if !s.listening.Load() {
		return
	}
	buf := make([]byte, len(frame))
	copy(buf, frame)
	s.mu.Lock()
	s.opusPackets = append(s.opusPackets, buf)
	s.mu.Unlock()
}

// ResetAudio 清空缓冲，audio_start 时调用
func (s *Session) ResetAudio() {
	s.mu.Lock()
	s.opusPackets = nil
	s.mu.Unlock()
}

// SnapshotAudio 取缓冲快照。不清空，下一轮 audio_start 负责重置。
func (s *Session) SnapshotAudio() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.opusPackets))
	copy(out, s.opusPackets)
	return out
}

func (s *Session) BufferLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.opusPackets)
}

func (s *Session) SetListenMode(mode string) {
	s.mu.Lock()
	s.listenMode = mode
	s.mu.Unlock()
}

func (s *Session) ListenMode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listenMode
}

func (s *Session) SetProtocolVersion(v int) {
	s.mu.Lock()
	s.protocolVersion = v
	s.mu.Unlock()
}

func (s *Session) ProtocolVersion() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.protocolVersion
}

func (s *Session) Listening() bool     { return s.listening.Load() }
func (s *Session) SetListening(v bool) { s.listening.Store(v) }

func (s *Session) Processing() bool { return s.processing.Load() }

func (s *Session) TTSAborted() bool      { return s.ttsAbort.Load() }
func (s *Session) SetTTSAbort(v bool)    { s.ttsAbort.Store(v) }
func (s *Session) MusicPlaying() bool    { return s.musicPlaying.Load() }
func (s *Session) MusicPaused() bool     { return s.musicPaused.Load() }
func (s *Session) SetMusicPaused(v bool) { s.musicPaused.Store(v) }
func (s *Session) MusicAborted() bool    { return s.musicAbort.Load() }
func (s *Session) SetMusicAbort(v bool)  { s.musicAbort.Store(v) }

// Volume 当前音量 0-100
func (s *Session) Volume() int { return int(s.volume.Load()) }

// SetVolume 夹到 0-100 后存储，返回生效值
func (s *Session) SetVolume(level int) int {
	if level < 0 {
		level = 0
	}
	if level > 100 {
		level = 100
	}
	s.volume.Store(int32(level))
	return level
}

// StartMeeting 开启会议记录，已开启时返回 false
func (s *Session) StartMeeting() bool {
	if !s.meetingActive.CompareAndSwap(false, true) {
		return false
	}
	s.mu.Lock()
	s.meetingNotes = nil
	s.mu.Unlock()
	return true
}

// EndMeeting 关闭会议记录，返回已记条数与之前是否开启
func (s *Session) EndMeeting() (int, bool) {
	active := s.meetingActive.CompareAndSwap(true, false)
	s.mu.Lock()
	n := len(s.meetingNotes)
	s.mu.Unlock()
	return n, active
}

func (s *Session) MeetingActive() bool { return s.meetingActive.Load() }

func (s *Session) AddMeetingNote(text string) {
	if text == "" {
		return
	}
	s.mu.Lock()
	s.meetingNotes = append(s.meetingNotes, text)
	s.mu.Unlock()
}

func (s *Session) MeetingNotes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.meetingNotes))
	copy(out, s.meetingNotes)
	return out
}

// beginProcess 登记新一轮流水线的取消句柄，返回旧句柄供调用方先行取消
func (s *Session) beginProcess(cancel context.CancelFunc, done chan struct{}) (context.CancelFunc, chan struct{}) {
	s.procMu.Lock()
	defer s.procMu.Unlock()
	oldCancel, oldDone := s.processCancel, s.processDone
	s.processCancel, s.processDone = cancel, done
	return oldCancel, oldDone
}

// ProcessHandle 当前流水线的取消句柄，无任务时返回 (nil, nil)
func (s *Session) ProcessHandle() (context.CancelFunc, chan struct{}) {
	s.procMu.Lock()
	defer s.procMu.Unlock()
	return s.processCancel, s.processDone
}
