package llm

import (
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

// History 按会话保存滚动对话记录。上限按消息条数截断，
// 避免长对话把上下文窗口吃满。
type History struct {
	mu       sync.RWMutex
	maxMsgs  int
	sessions map[string][]openai.ChatCompletionMessage
}

func NewHistory(maxMsgs int) *History {
	if maxMsgs <= 0 {
		maxMsgs = 20
	}
	return &History{
		maxMsgs:  maxMsgs,
		sessions: make(map[string][]openai.ChatCompletionMessage),
	}
}

// Messages 返回该会话历史的副本，调用方可自由追加
func (h *History) Messages(sessionID string) []openai.ChatCompletionMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	msgs := h.sessions[sessionID]
	out := make([]openai.ChatCompletionMessage, len(msgs))
	copy(out, msgs)
	return out
}

// Append 追加消息并截断到最近 maxMsgs 条
func (h *History) Append(sessionID string, msgs ...openai.ChatCompletionMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	merged := append(h.sessions[sessionID], msgs...)
	if len(merged) > h.maxMsgs {
		merged = merged[len(merged)-h.maxMsgs:]
	}
	h.sessions[sessionID] = merged
}

// Clear 断连或 conversation.reset 时清空该会话
func (h *History) Clear(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, sessionID)
}

// Len 该会话当前的消息条数
func (h *History) Len(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}
