// Package llm 对话适配层：滚动历史 + OpenAI 兼容聊天接口，
// 意图模式下把模型输出解析为带标签动作。
package llm

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/voicebridge-ai/EchoGate/pkg/config"
	"github.com/voicebridge-ai/EchoGate/pkg/logger"
	"github.com/voicebridge-ai/EchoGate/pkg/provider"
)

// Service 聊天服务。历史按 session_id 滚动，只有成功的往返才落入历史。
type Service struct {
	clients      *provider.ClientCache
	history      *History
	chatModel    string
	systemPrompt string
	intentMode   bool
	executor     *Executor
}

func NewService(cfg *config.Config, clients *provider.ClientCache) *Service {
	return &Service{
		clients:      clients,
		history:      NewHistory(cfg.Gateway.HistoryMaxTurns),
		chatModel:    cfg.OpenAI.ChatModel,
		systemPrompt: cfg.OpenAI.SystemPrompt,
		intentMode:   cfg.Gateway.IntentMode,
		executor:     NewExecutor(cfg.Executor),
	}
}

// Chat 普通对话。extraPrompt 附加在 system prompt 之后（用户偏好等）。
func (s *Service) Chat(ctx context.Context, sessionID, text string, ov *provider.Overrides, extraPrompt string) (string, error) {
	system := s.systemPrompt
	if extraPrompt != "" {
		system += "\n\n" + extraPrompt
	}
	return s.converse(ctx, sessionID, text, ov, system)
}

// Respond 意图模式入口：返回解析后的动作。INTENT_MODE=off 时退化为
// 普通聊天，所有输出都是 chat 动作。
func (s *Service) Respond(ctx context.Context, sessionID, text string, ov *provider.Overrides, extraPrompt, toolCatalog string) (Action, error) {
	if !s.intentMode {
		reply, err := s.Chat(ctx, sessionID, text, ov, extraPrompt)
		if err != nil {
			return Action{}, err
		}
		return Action{Kind: ActionChat, Reply: reply}, nil
	}

	base := s.systemPrompt
	if extraPrompt != "" {
		base += "\n\n" + extraPrompt
	}
	system := BuildIntentPrompt(base, toolCatalog, s.executor.Configured())

	raw, err := s.converse(ctx, sessionID, text, ov, system)
	if err != nil {
		return Action{}, err
	}

	action, parsed := ParseAction(raw)
	if !parsed {
		logger.Debug("[LLM] intent output not valid JSON, treating as chat", zap.String("raw", clip(raw, 120)))
	}
	// 模型越过提示硬给了 task 但网关没配：口头告知，不抛错
	if action.Kind == ActionExecute && action.Tool == "" && !s.executor.Configured() {
		return Action{Kind: ActionChat, Reply: "这个任务需要执行网关，现在还没有配置好。"}, nil
	}
	return action, nil
}

// ExecuteTask 把自由任务交给执行网关
func (s *Service) ExecuteTask(ctx context.Context, task string) (string, error) {
	return s.executor.Run(ctx, task)
}

// ExecutorConfigured 执行网关是否可用
func (s *Service) ExecutorConfigured() bool {
	return s.executor.Configured()
}

// ResetConversation 清空会话历史（断连或 conversation.reset 工具）
func (s *Service) ResetConversation(sessionID string) {
	s.history.Clear(sessionID)
	logger.Info("[LLM] conversation history cleared", zap.String("session", sessionID))
}

// HistoryLen 会话当前历史条数
func (s *Service) HistoryLen(sessionID string) int {
	return s.history.Len(sessionID)
}

// converse 发起一次带历史的聊天。用户配置失败时回退全局默认重试一次，
// 成功后才把这轮 user/assistant 消息写进历史。
func (s *Service) converse(ctx context.Context, sessionID, text string, ov *provider.Overrides, system string) (string, error) {
	past := s.history.Messages(sessionID)
	messages := make([]openai.ChatCompletionMessage, 0, len(past)+2)
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	messages = append(messages, past...)
	userMsg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text}
	messages = append(messages, userMsg)

	client := s.clients.ForOverrides(ov)
	model := ov.ChatModelOr(s.chatModel)

	reply, err := s.complete(ctx, client, model, messages)
	if err != nil && ov.HasCustomClient() {
		logger.Warn("[LLM] user provider failed, retrying on default", zap.Error(err))
		reply, err = s.complete(ctx, s.clients.Default(), s.chatModel, messages)
	}
	if err != nil {
		return "", err
	}

	s.history.Append(sessionID,
		userMsg,
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: reply},
	)
	return reply, nil
}

func (s *Service) complete(ctx context.Context, client *openai.Client, model string, messages []openai.ChatCompletionMessage) (string, error) {
	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
