package llm

import (
	"encoding/json"
	"strings"
)

// ActionKind 意图分类后的动作类型
type ActionKind string

const (
	ActionChat       ActionKind = "chat"
	ActionExecute    ActionKind = "execute"
	ActionMusic      ActionKind = "music"
	ActionMusicStop  ActionKind = "music_stop"
	ActionMusicPause ActionKind = "music_pause"
	ActionRemind     ActionKind = "remind"
)

// Action 意图模式下模型输出解析成的带标签动作。
// 各字段按 Kind 选用，未用到的保持零值。
type Action struct {
	Kind ActionKind

	// chat
	Reply string

	// music
	Query string

	// execute：Tool+Args 走本地工具注册表，Task 走执行网关
	Tool string
	Args map[string]any
	Task string

	// remind
	Message      string
	DelaySeconds int
	TimeOfDay    string
	Recurrence   string
}

// actionWire 模型输出的 JSON 形状
type actionWire struct {
	Action       string         `json:"action"`
	Reply        string         `json:"reply"`
	Query        string         `json:"query"`
	Tool         string         `json:"tool"`
	Args         map[string]any `json:"args"`
	Task         string         `json:"task"`
	Message      string         `json:"message"`
	DelaySeconds int            `json:"delay_seconds"`
	Time         string         `json:"time"`
	Recurrence   string         `json:"recurrence"`
}

const intentPromptHeader = `你可以直接回答，也可以触发设备能力。必须只输出一个 JSON 对象，不要输出任何其他文字。可选动作：
{"action":"chat","reply":"<口语化回答>"} —— 普通对话
{"action":"music","query":"<歌名或关键词>"} —— 用户想听歌或播放音乐
{"action":"music_stop"} —— 停止播放音乐
{"action":"music_pause"} —— 暂停播放音乐
{"action":"remind","message":"<提醒内容>","delay_seconds":<秒数>} —— 相对时间提醒，如"五分钟后提醒我"
{"action":"remind","message":"<提醒内容>","time":"HH:MM","recurrence":"once|daily|weekly|monthly|weekdays"} —— 定点或重复提醒
{"action":"execute","tool":"<工具名>","args":{}} —— 调用下面列出的工具`

const intentPromptTask = `{"action":"execute","task":"<任务描述>"} —— 需要在电脑上完成的复杂任务（查资料、写文档、操作软件等）`

// BuildIntentPrompt 组装意图模式的 system prompt。
// base 是全局人设，catalog 是工具清单，allowTask 表示执行网关可用。
func BuildIntentPrompt(base, catalog string, allowTask bool) string {
	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\n")
	b.WriteString(intentPromptHeader)
	if allowTask {
		b.WriteString("\n")
		b.WriteString(intentPromptTask)
	}
	if catalog != "" {
		b.WriteString("\n\n可用工具（tool 取值及参数）：\n")
		b.WriteString(catalog)
	}
	b.WriteString("\n\n没有把握时一律用 chat 动作回答。")
	return b.String()
}

// ParseAction 把模型原始输出解析为 Action。解析失败或字段缺失时
// 降级为 chat，把原文当作播报内容，第二个返回值为 false。
func ParseAction(raw string) (Action, bool) {
	text := strings.TrimSpace(raw)
	jsonPart := extractJSONObject(text)
	if jsonPart == "" {
		return Action{Kind: ActionChat, Reply: text}, false
	}

	var w actionWire
	if err := json.Unmarshal([]byte(jsonPart), &w); err != nil {
		return Action{Kind: ActionChat, Reply: text}, false
	}

	switch ActionKind(w.Action) {
	case ActionChat:
		if w.Reply == "" {
			return Action{Kind: ActionChat, Reply: text}, false
		}
		return Action{Kind: ActionChat, Reply: w.Reply}, true
	case ActionMusic:
		if strings.TrimSpace(w.Query) == "" {
			return Action{Kind: ActionChat, Reply: text}, false
		}
		return Action{Kind: ActionMusic, Query: strings.TrimSpace(w.Query)}, true
	case ActionMusicStop:
		return Action{Kind: ActionMusicStop}, true
	case ActionMusicPause:
		return Action{Kind: ActionMusicPause}, true
	case ActionRemind:
		if strings.TrimSpace(w.Message) == "" {
			return Action{Kind: ActionChat, Reply: text}, false
		}
		return Action{
			Kind:         ActionRemind,
			Message:      strings.TrimSpace(w.Message),
			DelaySeconds: w.DelaySeconds,
			TimeOfDay:    strings.TrimSpace(w.Time),
			Recurrence:   strings.TrimSpace(w.Recurrence),
		}, true
	case ActionExecute:
		if w.Tool == "" && strings.TrimSpace(w.Task) == "" {
			return Action{Kind: ActionChat, Reply: text}, false
		}
		return Action{
			Kind: ActionExecute,
			Tool: w.Tool,
			Args: w.Args,
			Task: strings.TrimSpace(w.Task),
		}, true
	default:
		return Action{Kind: ActionChat, Reply: text}, false
	}
}

// extractJSONObject 容忍模型在 JSON 前后夹带文字或代码块围栏
func extractJSONObject(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}
