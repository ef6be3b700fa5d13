package gateway

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/voicebridge-ai/EchoGate/internal/models"
	"github.com/voicebridge-ai/EchoGate/pkg/asr"
	"github.com/voicebridge-ai/EchoGate/pkg/config"
	"github.com/voicebridge-ai/EchoGate/pkg/llm"
	"github.com/voicebridge-ai/EchoGate/pkg/logger"
	"github.com/voicebridge-ai/EchoGate/pkg/media"
	"github.com/voicebridge-ai/EchoGate/pkg/metrics"
	"github.com/voicebridge-ai/EchoGate/pkg/music"
	"github.com/voicebridge-ai/EchoGate/pkg/recurrence"
	"github.com/voicebridge-ai/EchoGate/pkg/tools"
	"github.com/voicebridge-ai/EchoGate/pkg/tts"
)

// Services 流水线依赖的外部服务，启动时装配一次全局共享
type Services struct {
	ASR   *asr.Service
	TTS   *tts.Service
	LLM   *llm.Service
	Tools *tools.Executor
	Music music.Source
	DB    *gorm.DB
}

// Pipeline 驱动一轮请求：解码 → 识别 → 意图 → 合成 → 限速下发。
// 每个连接并发跑各自的轮次，Pipeline 本身无状态可安全共享。
type Pipeline struct {
	svc             *Services
	sampleRate      int
	channels        int
	frameDurationMs int
	keepalive       time.Duration
	player          *music.Player
	silence         []byte
}

func NewPipeline(cfg *config.Config, svc *Services) (*Pipeline, error) {
	frameSamples := cfg.Audio.SampleRate * cfg.Audio.FrameDurationMs / 1000
	silence, err := media.SilenceFrame(cfg.Audio.SampleRate, cfg.Audio.Channels, frameSamples)
	if err != nil {
		return nil, fmt.Errorf("prebuild silence frame: %w", err)
	}
	keepalive := cfg.Gateway.KeepaliveInterval
	if keepalive <= 0 {
		keepalive = time.Second
	}
	return &Pipeline{
		svc:             svc,
		sampleRate:      cfg.Audio.SampleRate,
		channels:        cfg.Audio.Channels,
		frameDurationMs: cfg.Audio.FrameDurationMs,
		keepalive:       keepalive,
		player:          music.NewPlayer(cfg.Audio.SampleRate, cfg.Audio.Channels, cfg.Audio.FrameDurationMs, cfg.Audio.OpusBitrate),
		silence:         silence,
	}, nil
}

// Run 跑完一轮。调用方已抢占 processing 标志，这里负责复位；
// panic 不外泄，连接层不受单轮失败影响。
func (p *Pipeline) Run(ctx context.Context, sess *Session) {
	start := time.Now()
	outcome := "error"

	defer func() {
		if r := recover(); r != nil {
			logger.Error("[Pipeline] panic 恢复",
				zap.String("session", sess.ID),
				zap.Any("panic", r),
				zap.Stack("stack"))
			sess.Writer.SendError("internal error")
			outcome = "error"
		}
		sess.processing.Store(false)
		metrics.PipelineRuns.WithLabelValues(outcome).Inc()
		logger.Info("[Pipeline] 本轮结束",
			zap.String("session", sess.ID),
			zap.String("outcome", outcome),
			zap.Float64("elapsedS", time.Since(start).Seconds()))
	}()

	stopKeepalive := p.startKeepalive(sess)
	defer stopKeepalive()

	outcome = p.runOnce(ctx, sess)
}

func (p *Pipeline) runOnce(ctx context.Context, sess *Session) string {
	w := sess.Writer

	packets := sess.SnapshotAudio()
	if len(packets) == 0 {
		w.SendError("empty audio")
		return "empty"
	}

	// 解码
	dec, err := media.NewDecoder(p.sampleRate, p.channels)
	if err != nil {
		w.SendError(fmt.Sprintf("opus decode failed: %v", err))
		return "error"
	}
	samples, err := dec.DecodeAll(packets)
	if err != nil {
		logger.Error("[Pipeline] opus 解码失败", zap.String("session", sess.ID), zap.Error(err))
		w.SendError(fmt.Sprintf("opus decode failed: %v", err))
		return "error"
	}
	pcm := media.Int16ToBytes(samples)
	logger.Info("[Pipeline] 解码完成",
		zap.String("session", sess.ID),
		zap.Int("packets", len(packets)),
		zap.Int("pcmBytes", len(pcm)))

	if p.interrupted(sess) {
		logger.Info("[Pipeline] ASR 前被中断", zap.String("session", sess.ID))
		return "aborted"
	}

	// 识别
	stage := time.Now()
	text, err := p.svc.ASR.Transcribe(ctx, pcm, sess.Overrides)
	if err != nil {
		logger.Error("[Pipeline] ASR 失败", zap.String("session", sess.ID), zap.Error(err))
		w.SendError(fmt.Sprintf("ASR failed: %v", err))
		return "error"
	}
	metrics.PipelineStageSeconds.WithLabelValues("asr").Observe(time.Since(stage).Seconds())
	logger.Info("[Pipeline] 识别结果", zap.String("session", sess.ID), zap.String("text", text))

	// 识别文本无论空否都回推，设备靠它结束等待动画
	w.SendASRText(text)
	if strings.TrimSpace(text) == "" {
		return "ok"
	}

	if sess.MeetingActive() {
		sess.AddMeetingNote(text)
	}

	if p.interrupted(sess) {
		logger.Info("[Pipeline] LLM 前被中断", zap.String("session", sess.ID))
		return "aborted"
	}

	// 意图
	stage = time.Now()
	extraPrompt := models.PreferencesPrompt(p.svc.DB, sess.UserID)
	action, err := p.svc.LLM.Respond(ctx, sess.ID, text, sess.Overrides, extraPrompt, p.svc.Tools.Registry().Catalog())
	if err != nil {
		logger.Error("[Pipeline] LLM 失败", zap.String("session", sess.ID), zap.Error(err))
		w.SendError(fmt.Sprintf("LLM failed: %v", err))
		return "error"
	}
	metrics.PipelineStageSeconds.WithLabelValues("llm").Observe(time.Since(stage).Seconds())

	if p.interrupted(sess) {
		logger.Info("[Pipeline] TTS 前被中断", zap.String("session", sess.ID))
		return "aborted"
	}

	plan := p.dispatch(ctx, sess, action)
	if plan.reply == "" {
		// 静默动作（会议记录、音量失败兜底等）没有语音回复
		if plan.after != nil {
			plan.after()
		}
		return "ok"
	}

	if p.interrupted(sess) {
		return "aborted"
	}

	// 合成
	stage = time.Now()
	frames, err := p.svc.TTS.Synthesize(ctx, plan.reply, sess.Overrides)
	if err != nil {
		logger.Error("[Pipeline] TTS 失败", zap.String("session", sess.ID), zap.Error(err))
		w.SendError(fmt.Sprintf("TTS failed: %v", err))
		return "error"
	}
	metrics.PipelineStageSeconds.WithLabelValues("tts").Observe(time.Since(stage).Seconds())

	if p.interrupted(sess) {
		logger.Info("[Pipeline] 下发前被中断", zap.String("session", sess.ID))
		return "aborted"
	}

	// 限速下发
	if !w.SendTTSStart(plan.reply) {
		logger.Warn("[Pipeline] tts_start 发送失败，放弃下发", zap.String("session", sess.ID))
		return "error"
	}
	rc := NewRateController(p.frameDurationMs)
	rc.EnqueueAll(frames)
	sent := rc.Drain(w.SendBinary, func() bool {
		return sess.TTSAborted() || w.Closed()
	})

	if sess.TTSAborted() {
		// abort 应答已由消息路由发过 tts_end(abort)，这里不再补发
		logger.Info("[Pipeline] 下发被打断",
			zap.String("session", sess.ID),
			zap.Int("sent", sent),
			zap.Int("total", len(frames)))
		return "aborted"
	}
	w.SendTTSEnd()

	if plan.after != nil && !w.Closed() {
		plan.after()
	}
	return "ok"
}

// interrupted 五个检查点共用的中断判定
func (p *Pipeline) interrupted(sess *Session) bool {
	return sess.TTSAborted() || sess.Writer.Closed()
}

// startKeepalive 处理期间每秒发一个 ping 控制帧。LLM/TTS 调用可能持续
// 数秒，不发东西的话 NAT 或移动网络会掐掉空闲连接。返回停止函数。
func (p *Pipeline) startKeepalive(sess *Session) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(p.keepalive)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if sess.Writer.Closed() || sess.TTSAborted() {
					return
				}
				sess.Writer.Ping()
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// actionPlan 动作分发的结果：要播报的文本加可选的后续动作。
// after 在回复播完且未被打断时执行（启动音乐流）。
type actionPlan struct {
	reply string
	after func()
}

func (p *Pipeline) dispatch(ctx context.Context, sess *Session, action llm.Action) actionPlan {
	switch action.Kind {
	case llm.ActionChat:
		return actionPlan{reply: action.Reply}

	case llm.ActionMusic:
		return p.planMusic(ctx, sess, action.Query)

	case llm.ActionMusicStop:
		if sess.MusicPlaying() {
			sess.SetMusicAbort(true)
			return actionPlan{reply: "好的，已停止播放。"}
		}
		return actionPlan{reply: "现在没有在放音乐。"}

	case llm.ActionMusicPause:
		if sess.MusicPlaying() {
			sess.SetMusicPaused(true)
			return actionPlan{reply: "好的，已暂停。"}
		}
		return actionPlan{reply: "现在没有在放音乐。"}

	case llm.ActionRemind:
		return p.planRemind(sess, action)

	case llm.ActionExecute:
		return p.planExecute(ctx, sess, action)
	}

	logger.Warn("[Pipeline] 未知动作类型",
		zap.String("session", sess.ID),
		zap.String("kind", string(action.Kind)))
	return actionPlan{reply: action.Reply}
}

// planMusic 解析歌名并起好拉流，确认语播完后才真正开播
func (p *Pipeline) planMusic(ctx context.Context, sess *Session, query string) actionPlan {
	if p.svc.Music == nil {
		return actionPlan{reply: "音乐功能还没有配置好。"}
	}
	if strings.TrimSpace(query) == "" {
		return actionPlan{reply: "想听什么歌？"}
	}

	title, stream, err := p.svc.Music.Resolve(ctx, query)
	if err != nil {
		logger.Warn("[Pipeline] 音乐解析失败",
			zap.String("session", sess.ID),
			zap.String("query", query),
			zap.Error(err))
		return actionPlan{reply: "没找到这首歌，换一首试试？"}
	}

	// 顶掉正在播的上一首
	if sess.MusicPlaying() {
		sess.SetMusicAbort(true)
	}

	return actionPlan{
		reply: "正在播放: " + title,
		after: func() { p.startMusic(sess, title, stream) },
	}
}

// startMusic 后台推音乐流。生命周期由会话标志控制，不挂在本轮 ctx 上，
// 确认语播完后音乐可以跨多轮对话继续。
func (p *Pipeline) startMusic(sess *Session, title string, stream io.ReadCloser) {
	go func() {
		defer stream.Close()

		// 等上一首的 goroutine 退场再接管标志
		for i := 0; sess.MusicPlaying() && i < 40; i++ {
			time.Sleep(50 * time.Millisecond)
		}

		sess.musicPlaying.Store(true)
		sess.musicPaused.Store(false)
		sess.musicAbort.Store(false)
		defer func() {
			sess.musicPlaying.Store(false)
			sess.musicPaused.Store(false)
			sess.musicAbort.Store(false)
		}()

		logger.Info("[Pipeline] 音乐开播",
			zap.String("session", sess.ID),
			zap.String("title", title))

		sent, err := p.player.Stream(context.Background(), stream, sess.Writer.SendBinary, musicControls{sess})
		if err != nil {
			logger.Warn("[Pipeline] 音乐流异常结束",
				zap.String("session", sess.ID),
				zap.String("title", title),
				zap.Int("sentFrames", sent),
				zap.Error(err))
			return
		}
		logger.Info("[Pipeline] 音乐播放结束",
			zap.String("session", sess.ID),
			zap.String("title", title),
			zap.Int("sentFrames", sent))
	}()
}

// musicControls 把会话标志适配成播放器的控制面
type musicControls struct {
	s *Session
}

func (m musicControls) Paused() bool { return m.s.MusicPaused() }

func (m musicControls) Aborted() bool {
	return m.s.MusicAborted() || m.s.Writer.Closed()
}

// planRemind 落库一条语音提醒并生成确认语
func (p *Pipeline) planRemind(sess *Session, action llm.Action) actionPlan {
	now := time.Now()
	message := strings.TrimSpace(action.Message)
	if message == "" {
		message = "时间到了"
	}

	var remindAt time.Time
	switch {
	case action.DelaySeconds > 0:
		remindAt = now.Add(time.Duration(action.DelaySeconds) * time.Second)
	case action.TimeOfDay != "":
		next, ok := recurrence.NextOccurrence(now, action.TimeOfDay)
		if !ok {
			return actionPlan{reply: "时间没听清，要用几点几分的说法。"}
		}
		remindAt = next
	default:
		return actionPlan{reply: "想在什么时候提醒你？"}
	}

	rule := strings.TrimSpace(action.Recurrence)
	isRecurring := rule != "" && rule != "once" && recurrence.Valid(rule)
	if !isRecurring {
		rule = ""
	}

	reminder := &models.Reminder{
		UserID:         sess.UserID,
		DeviceID:       sess.DeviceID,
		RemindAt:       remindAt,
		Message:        message,
		IsRecurring:    isRecurring,
		RecurrenceRule: rule,
		Source:         models.ReminderSourceVoice,
	}
	if err := models.CreateReminder(p.svc.DB, reminder); err != nil {
		logger.Error("[Pipeline] 提醒落库失败",
			zap.String("session", sess.ID),
			zap.Uint("userId", sess.UserID),
			zap.Error(err))
		return actionPlan{reply: "提醒没设上，稍后再试吧。"}
	}

	var when string
	if action.DelaySeconds > 0 {
		if action.DelaySeconds < 60 {
			when = fmt.Sprintf("%d秒后", action.DelaySeconds)
		} else {
			when = fmt.Sprintf("%d分钟后", action.DelaySeconds/60)
		}
	} else {
		when = remindAt.Format("15:04")
		if remindAt.YearDay() != now.YearDay() || remindAt.Year() != now.Year() {
			when = "明天" + when
		}
	}

	if isRecurring {
		return actionPlan{reply: fmt.Sprintf("好的，%s提醒你%s，按%s重复。", when, message, rule)}
	}
	return actionPlan{reply: fmt.Sprintf("好的，%s提醒你%s。", when, message)}
}

// planExecute 工具调用走本地注册表，自由任务走执行网关
func (p *Pipeline) planExecute(ctx context.Context, sess *Session, action llm.Action) actionPlan {
	if action.Tool != "" {
		res := p.svc.Tools.Execute(ctx, p.newToolCall(sess), action.Tool, action.Args)
		switch res.Type {
		case tools.ResultMusic:
			query, _ := res.Data["query"].(string)
			return p.planMusic(ctx, sess, query)
		case tools.ResultSilent:
			return actionPlan{}
		default:
			// tts / error / ask_user 都照播文本
			return actionPlan{reply: res.Text}
		}
	}
	return p.runTask(ctx, sess, action.Task)
}

// runTask 把自由任务交给执行网关，期间按秒发静音帧占住音频通道
func (p *Pipeline) runTask(ctx context.Context, sess *Session, task string) actionPlan {
	if strings.TrimSpace(task) == "" {
		return actionPlan{reply: "没听清要做什么任务。"}
	}
	logger.Info("[Pipeline] 执行任务",
		zap.String("session", sess.ID),
		zap.String("task", task))

	type taskOut struct {
		text string
		err  error
	}
	out := make(chan taskOut, 1)
	go func() {
		text, err := p.svc.LLM.ExecuteTask(ctx, task)
		out <- taskOut{text: text, err: err}
	}()

	ticker := time.NewTicker(p.keepalive)
	defer ticker.Stop()

	for {
		select {
		case res := <-out:
			if res.err != nil {
				logger.Error("[Pipeline] 任务执行失败",
					zap.String("session", sess.ID),
					zap.Error(res.err))
				return actionPlan{reply: "任务执行失败了，稍后再试吧。"}
			}
			return actionPlan{reply: res.text}
		case <-ctx.Done():
			return actionPlan{}
		case <-ticker.C:
			if p.interrupted(sess) {
				logger.Info("[Pipeline] 任务等待中被中断", zap.String("session", sess.ID))
				return actionPlan{}
			}
			sess.Writer.SendBinary(p.silence)
		}
	}
}

// newToolCall 组装工具调用上下文
func (p *Pipeline) newToolCall(sess *Session) *tools.Call {
	return &tools.Call{
		DB:       p.svc.DB,
		UserID:   sess.UserID,
		DeviceID: sess.DeviceID,
		Session:  toolSession{sess},
		ResetConversation: func() {
			p.svc.LLM.ResetConversation(sess.ID)
		},
		SendSilence: func() bool {
			return sess.Writer.SendBinary(p.silence)
		},
	}
}

// toolSession 把会话适配成工具层的控制面
type toolSession struct {
	s *Session
}

func (t toolSession) SessionID() string { return t.s.ID }

func (t toolSession) Volume() int { return t.s.Volume() }

func (t toolSession) SetVolume(level int) int { return t.s.SetVolume(level) }

func (t toolSession) PushVolume(level int) bool { return t.s.Writer.SendVolume(level) }

func (t toolSession) MusicPlaying() bool { return t.s.MusicPlaying() }

func (t toolSession) MusicPaused() bool { return t.s.MusicPaused() }

func (t toolSession) PauseMusic() { t.s.SetMusicPaused(true) }

func (t toolSession) ResumeMusic() { t.s.SetMusicPaused(false) }

func (t toolSession) StopMusic() { t.s.SetMusicAbort(true) }

func (t toolSession) StartMeeting() bool { return t.s.StartMeeting() }

func (t toolSession) EndMeeting() (int, bool) { return t.s.EndMeeting() }

func (t toolSession) MeetingActive() bool { return t.s.MeetingActive() }

func (t toolSession) MeetingNotes() []string { return t.s.MeetingNotes() }

func (t toolSession) Aborted() bool { return t.s.TTSAborted() || t.s.Writer.Closed() }
