package tools

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSession 测试用的会话控制桩
type fakeSession struct {
	id            string
	volume        int
	pushedLevels  []int
	pushOK        bool
	musicPlaying  bool
	musicPaused   bool
	musicStopped  bool
	meetingActive bool
	notes         []string
	aborted       atomic.Bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{id: "sess0001", volume: 70, pushOK: true}
}

func (f *fakeSession) SessionID() string { return f.id }
func (f *fakeSession) Volume() int       { return f.volume }

func (f *fakeSession) SetVolume(level int) int {
	if level < 0 {
		level = 0
	}
	if level > 100 {
		level = 100
	}
	f.volume = level
	return level
}

func (f *fakeSession) PushVolume(level int) bool {
	f.pushedLevels = append(f.pushedLevels, level)
	return f.pushOK
}

func (f *fakeSession) MusicPlaying() bool { return f.musicPlaying }
func (f *fakeSession) MusicPaused() bool  { return f.musicPaused }
func (f *fakeSession) PauseMusic()        { f.musicPaused = true }
func (f *fakeSession) ResumeMusic()       { f.musicPaused = false }
func (f *fakeSession) StopMusic()         { f.musicStopped = true }

func (f *fakeSession) StartMeeting() bool {
	if f.meetingActive {
		return false
	}
	f.meetingActive = true
	f.notes = nil
	return true
}

func (f *fakeSession) EndMeeting() (int, bool) {
	active := f.meetingActive
	f.meetingActive = false
	return len(f.notes), active
}

func (f *fakeSession) MeetingActive() bool    { return f.meetingActive }
func (f *fakeSession) MeetingNotes() []string { return f.notes }
func (f *fakeSession) Aborted() bool          { return f.aborted.Load() }

func TestExecute_UnknownTool(t *testing.T) {
	exec := NewExecutor(NewRegistry())
	res := exec.Execute(context.Background(), &Call{}, "no.such.tool", nil)
	assert.Equal(t, ResultError, res.Type)
	assert.Contains(t, res.Text, "no.such.tool")
}

func TestExecute_MissingRequiredParam(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&Tool{
		Name: "echo",
		Params: []Param{
			{Name: "text", Type: "string", Required: true, Prompt: "说点什么？"},
		},
		Handler: func(ctx context.Context, call *Call, args map[string]any) Result {
			return Result{Type: ResultTTS, Text: args["text"].(string)}
		},
	})
	exec := NewExecutor(reg)

	res := exec.Execute(context.Background(), &Call{}, "echo", map[string]any{})
	require.Equal(t, ResultAskUser, res.Type)
	assert.Equal(t, "说点什么？", res.Text)
	assert.Equal(t, "text", res.Data["missing_param"])

	// 空串也算缺参
	res = exec.Execute(context.Background(), &Call{}, "echo", map[string]any{"text": ""})
	assert.Equal(t, ResultAskUser, res.Type)
}

func TestExecute_DefaultsAndCoercion(t *testing.T) {
	reg := NewRegistry()
	var got map[string]any
	reg.Register(&Tool{
		Name: "probe",
		Params: []Param{
			{Name: "count", Type: "int", Required: true, Prompt: "几个？"},
			{Name: "mode", Type: "string", Default: "fast"},
		},
		Handler: func(ctx context.Context, call *Call, args map[string]any) Result {
			got = args
			return Result{Type: ResultSilent}
		},
	})
	exec := NewExecutor(reg)

	// JSON 解出来的数字是 float64，字符串数字也要能转
	res := exec.Execute(context.Background(), &Call{}, "probe", map[string]any{"count": float64(3)})
	require.Equal(t, ResultSilent, res.Type)
	assert.Equal(t, 3, got["count"])
	assert.Equal(t, "fast", got["mode"])

	res = exec.Execute(context.Background(), &Call{}, "probe", map[string]any{"count": "7", "mode": "slow"})
	require.Equal(t, ResultSilent, res.Type)
	assert.Equal(t, 7, got["count"])
	assert.Equal(t, "slow", got["mode"])
}

func TestExecute_PanicRecovered(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&Tool{
		Name: "boom",
		Handler: func(ctx context.Context, call *Call, args map[string]any) Result {
			panic("kaboom")
		},
	})
	exec := NewExecutor(reg)

	res := exec.Execute(context.Background(), &Call{}, "boom", nil)
	assert.Equal(t, ResultError, res.Type)
	assert.NotEmpty(t, res.Text)
}

func TestExecute_LongRunningKeepalive(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&Tool{
		Name:        "slow",
		LongRunning: true,
		Handler: func(ctx context.Context, call *Call, args map[string]any) Result {
			time.Sleep(60 * time.Millisecond)
			return Result{Type: ResultTTS, Text: "done"}
		},
	})
	exec := NewExecutor(reg)
	exec.keepalive = 10 * time.Millisecond

	var silences atomic.Int32
	call := &Call{
		Session: newFakeSession(),
		SendSilence: func() bool {
			silences.Add(1)
			return true
		},
	}

	res := exec.Execute(context.Background(), call, "slow", nil)
	assert.Equal(t, ResultTTS, res.Type)
	assert.Equal(t, "done", res.Text)
	assert.GreaterOrEqual(t, silences.Load(), int32(2))
}

func TestExecute_LongRunningAbort(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&Tool{
		Name:        "slow",
		LongRunning: true,
		Handler: func(ctx context.Context, call *Call, args map[string]any) Result {
			time.Sleep(time.Second)
			return Result{Type: ResultTTS, Text: "too late"}
		},
	})
	exec := NewExecutor(reg)
	exec.keepalive = 5 * time.Millisecond

	sess := newFakeSession()
	sess.aborted.Store(true)
	call := &Call{
		Session:     sess,
		SendSilence: func() bool { return true },
	}

	start := time.Now()
	res := exec.Execute(context.Background(), call, "slow", nil)
	assert.Equal(t, ResultSilent, res.Type)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestExecute_LongRunningSendFailure(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&Tool{
		Name:        "slow",
		LongRunning: true,
		Handler: func(ctx context.Context, call *Call, args map[string]any) Result {
			time.Sleep(time.Second)
			return Result{Type: ResultTTS, Text: "too late"}
		},
	})
	exec := NewExecutor(reg)
	exec.keepalive = 5 * time.Millisecond

	call := &Call{
		Session:     newFakeSession(),
		SendSilence: func() bool { return false }, // 连接已断
	}

	res := exec.Execute(context.Background(), call, "slow", nil)
	assert.Equal(t, ResultSilent, res.Type)
}
