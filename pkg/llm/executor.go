package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/voicebridge-ai/EchoGate/pkg/config"
	"github.com/voicebridge-ai/EchoGate/pkg/logger"
	"github.com/voicebridge-ai/EchoGate/pkg/metrics"
)

// ErrExecutorUnavailable 执行网关未配置（OPENCLAW_URL / OPENCLAW_TOKEN 缺失）
var ErrExecutorUnavailable = errors.New("executor not configured")

const executorInstructions = "Execute this task and report the result concisely. Focus on what was accomplished."

// Executor 任务执行网关客户端。网关对外暴露 OpenAI 兼容接口，
// 内部自己跑完整的 agent 循环，这里只发任务收结果。
type Executor struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	ok      bool
}

func NewExecutor(cfg config.ExecutorConfig) *Executor {
	e := &Executor{model: cfg.Model, timeout: cfg.Timeout, ok: cfg.Configured()}
	if !e.ok {
		return e
	}
	c := openai.DefaultConfig(cfg.Token)
	c.BaseURL = cfg.BaseURL
	e.client = openai.NewClientWithConfig(c)
	return e
}

// Configured 网关是否可用
func (e *Executor) Configured() bool {
	return e != nil && e.ok
}

// Run 同步执行一个任务，返回网关给出的结果文本
func (e *Executor) Run(ctx context.Context, task string) (string, error) {
	if !e.Configured() {
		return "", ErrExecutorUnavailable
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	logger.Info("[Executor] dispatching task", zap.String("task", clip(task, 100)))

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: executorInstructions},
			{Role: openai.ChatMessageRoleUser, Content: task},
		},
	})
	if err != nil {
		metrics.ToolCalls.WithLabelValues("executor", "error").Inc()
		return "", err
	}
	if len(resp.Choices) == 0 {
		metrics.ToolCalls.WithLabelValues("executor", "error").Inc()
		return "", errors.New("executor returned no choices")
	}

	result := strings.TrimSpace(resp.Choices[0].Message.Content)
	logger.Info("[Executor] task done", zap.String("result", clip(result, 100)))
	metrics.ToolCalls.WithLabelValues("executor", "ok").Inc()
	return result, nil
}
