package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/voicebridge-ai/EchoGate/pkg/logger"
	"github.com/voicebridge-ai/EchoGate/pkg/metrics"
)

// 长任务执行期间的静音保活间隔
const defaultKeepalive = time.Second

// Executor 按名字执行已注册工具，对外保证不 panic、不阻塞保活
type Executor struct {
	reg       *Registry
	keepalive time.Duration
}

func NewExecutor(reg *Registry) *Executor {
	return &Executor{reg: reg, keepalive: defaultKeepalive}
}

// Registry 返回底层注册表，供提示词拼装工具清单
func (e *Executor) Registry() *Registry {
	return e.reg
}

// Execute 执行一次工具调用。任何失败都折叠成可播报的 Result，
// 未注册、缺参、handler panic 均不会向上抛。
func (e *Executor) Execute(ctx context.Context, call *Call, name string, args map[string]any) Result {
	tool, ok := e.reg.Get(name)
	if !ok {
		logger.Warn("unknown tool requested",
			zap.String("tool", name),
			zap.String("device_id", call.DeviceID))
		metrics.ToolCalls.WithLabelValues(name, "unknown").Inc()
		return Result{Type: ResultError, Text: fmt.Sprintf("我还不支持「%s」这个操作。", name)}
	}

	normalized, missing := normalizeArgs(tool, args)
	if missing != nil {
		metrics.ToolCalls.WithLabelValues(name, "ask_user").Inc()
		return Result{
			Type: ResultAskUser,
			Text: missing.Prompt,
			Data: map[string]any{"missing_param": missing.Name},
		}
	}

	var res Result
	if tool.LongRunning && call.SendSilence != nil {
		res = e.runWithKeepalive(ctx, call, tool, normalized)
	} else {
		res = e.invoke(ctx, call, tool, normalized)
	}
	metrics.ToolCalls.WithLabelValues(name, string(res.Type)).Inc()
	return res
}

// runWithKeepalive 后台跑 handler，期间周期性向设备发静音帧。
// 用户打断或连接断开时放弃等待，结果按 silent 丢弃。
func (e *Executor) runWithKeepalive(ctx context.Context, call *Call, tool *Tool, args map[string]any) Result {
	resCh := make(chan Result, 1)
	go func() {
		resCh <- e.invoke(ctx, call, tool, args)
	}()

	ticker := time.NewTicker(e.keepalive)
	defer ticker.Stop()
	for {
		select {
		case res := <-resCh:
			return res
		case <-ctx.Done():
			return Result{Type: ResultSilent}
		case <-ticker.C:
			if call.Session != nil && call.Session.Aborted() {
				logger.Info("long-running tool abandoned by abort",
					zap.String("tool", tool.Name))
				return Result{Type: ResultSilent}
			}
			if !call.SendSilence() {
				return Result{Type: ResultSilent}
			}
		}
	}
}

func (e *Executor) invoke(ctx context.Context, call *Call, tool *Tool, args map[string]any) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("tool handler panic",
				zap.String("tool", tool.Name),
				zap.Any("panic", r))
			res = Result{Type: ResultError, Text: "这个操作出了点问题，稍后再试吧。"}
		}
	}()
	return tool.Handler(ctx, call, args)
}

// normalizeArgs 按参数声明做类型归一并补默认值。
// 第二个返回值非 nil 时表示缺了该必需参数。
func normalizeArgs(tool *Tool, args map[string]any) (map[string]any, *Param) {
	out := make(map[string]any, len(tool.Params))
	for i := range tool.Params {
		p := &tool.Params[i]
		raw, present := args[p.Name]
		if !present || raw == nil || cast.ToString(raw) == "" {
			if p.Default != nil {
				out[p.Name] = p.Default
				continue
			}
			if p.Required {
				return nil, p
			}
			continue
		}
		switch p.Type {
		case "int":
			v, err := cast.ToIntE(raw)
			if err != nil {
				if p.Required {
					return nil, p
				}
				continue
			}
			out[p.Name] = v
		case "bool":
			out[p.Name] = cast.ToBool(raw)
		default:
			out[p.Name] = cast.ToString(raw)
		}
	}
	return out, nil
}
