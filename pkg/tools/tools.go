// Package tools 语音工具注册表与执行器。LLM 意图分类产出 execute 动作后，
// 由执行器按名字查表、补参、调用对应 handler，结果统一回流给流水线播报。
package tools

import (
	"context"
	"sort"
	"strings"
	"sync"

	"gorm.io/gorm"
)

// ResultType 工具结果的去向
type ResultType string

const (
	ResultTTS     ResultType = "tts"      // Text 交给 TTS 播报
	ResultMusic   ResultType = "music"    // 交给音乐播放器，查询词在 Data["query"]
	ResultError   ResultType = "error"    // 执行失败，Text 是可播报的错误话术
	ResultAskUser ResultType = "ask_user" // 缺少必需参数，Text 是追问话术
	ResultSilent  ResultType = "silent"   // 无需播报
)

// Result 工具执行结果
type Result struct {
	Type ResultType
	Text string
	Data map[string]any
}

// Param 工具参数声明。Prompt 是缺参时向用户追问的话术。
type Param struct {
	Name     string
	Type     string // string / int / bool
	Required bool
	Default  any
	Prompt   string
}

// HandlerFunc 工具实现。args 已按声明补过默认值并做过类型归一。
type HandlerFunc func(ctx context.Context, call *Call, args map[string]any) Result

// Tool 一个已注册的工具。LongRunning 的工具在执行期间
// 由执行器向设备发静音帧保活。
type Tool struct {
	Name        string
	Description string
	Params      []Param
	LongRunning bool
	Handler     HandlerFunc
}

// SessionControls 工具可触碰的会话面，由网关适配实现
type SessionControls interface {
	SessionID() string
	Volume() int
	SetVolume(level int) int
	PushVolume(level int) bool
	MusicPlaying() bool
	MusicPaused() bool
	PauseMusic()
	ResumeMusic()
	StopMusic()
	StartMeeting() bool
	EndMeeting() (int, bool)
	MeetingActive() bool
	MeetingNotes() []string
	Aborted() bool
}

// Call 单次调用可触达的环境
type Call struct {
	DB       *gorm.DB
	UserID   uint
	DeviceID string
	Session  SessionControls

	// ResetConversation 清空当前会话的对话历史
	ResetConversation func()

	// SendSilence 向设备发一帧静音保活，返回 false 表示连接已断
	SendSilence func() bool
}

// Registry 工具注册表，启动时注册完毕后只读
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register 登记一个工具，重名直接覆盖
func (r *Registry) Register(t *Tool) {
	r.mu.Lock()
	r.tools[t.Name] = t
	r.mu.Unlock()
}

func (r *Registry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Names 按字典序返回全部工具名
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Catalog 拼成注入 LLM 系统提示词的工具清单，一行一个：
//
//	weather.query(city:string?) 查询城市实时天气
//
// 可选参数带 ? 后缀。
func (r *Registry) Catalog() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		t := r.tools[name]
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- ")
		b.WriteString(t.Name)
		b.WriteString("(")
		for j, p := range t.Params {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(p.Name)
			b.WriteString(":")
			b.WriteString(p.Type)
			if !p.Required {
				b.WriteString("?")
			}
		}
		b.WriteString(") ")
		b.WriteString(t.Description)
	}
	return b.String()
}
