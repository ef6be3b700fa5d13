// Package metrics exposes Prometheus counters for the voice gateway,
// scraped via GET /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsActive 当前在线设备连接数
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "echogate_ws_connections_active",
		Help: "Number of device WebSocket connections currently open.",
	})

	// MessagesReceived inbound WS messages by type (hello/listen/abort/audio/...)
	MessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "echogate_ws_messages_received_total",
		Help: "Inbound WebSocket messages by message type.",
	}, []string{"type"})

	// PipelineRuns pipeline outcomes: ok / aborted / error / empty
	PipelineRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "echogate_pipeline_runs_total",
		Help: "Voice pipeline runs by outcome.",
	}, []string{"outcome"})

	// PipelineStageSeconds per-stage latency (asr / llm / tts)
	PipelineStageSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "echogate_pipeline_stage_seconds",
		Help:    "Latency of each pipeline stage in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"stage"})

	// AudioFramesSent opus 帧下发计数
	AudioFramesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "echogate_audio_frames_sent_total",
		Help: "Opus audio frames sent to devices.",
	})

	// SendFailures 发送失败（超时或写错误）
	SendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "echogate_ws_send_failures_total",
		Help: "WebSocket sends that failed or timed out.",
	})

	// ASRFallbacks funasr 失败后回退 whisper 的次数
	ASRFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "echogate_asr_fallbacks_total",
		Help: "Times the streaming ASR failed and Whisper was used instead.",
	})

	// RemindersDelivered delivered reminders by path: online / expired
	RemindersDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "echogate_reminders_delivered_total",
		Help: "Reminder deliveries by path.",
	}, []string{"path"})

	// ToolCalls 工具调用按名称与结果计数
	ToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "echogate_tool_calls_total",
		Help: "Tool invocations by tool name and result type.",
	}, []string{"tool", "result"})
)

// Handler returns the Prometheus scrape handler for mounting on /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
