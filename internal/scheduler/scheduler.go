// Package scheduler 到点提醒的后台推送：周期扫库，把到期提醒
// 合成语音后经网关的限速通道播到在线设备。
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/voicebridge-ai/EchoGate/internal/models"
	"github.com/voicebridge-ai/EchoGate/pkg/gateway"
	"github.com/voicebridge-ai/EchoGate/pkg/logger"
	"github.com/voicebridge-ai/EchoGate/pkg/metrics"
	"github.com/voicebridge-ai/EchoGate/pkg/provider"
	"github.com/voicebridge-ai/EchoGate/pkg/recurrence"
)

const (
	// startDelay 等服务完全就绪再开扫
	startDelay = 5 * time.Second

	// cycleSpec 每 30 秒扫一轮到期提醒
	cycleSpec = "*/30 * * * * *"

	// expireAfter 超过一小时仍送不出去的提醒作废
	expireAfter = time.Hour

	// synthTimeout 单条提醒合成加推送的时间上限
	synthTimeout = time.Minute
)

// Synthesizer 语音合成入口，tts.Service 实现
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, ov *provider.Overrides) ([][]byte, error)
}

// Directory 活跃会话目录，网关的连接注册表实现
type Directory interface {
	Lookup(deviceID string) (*gateway.Session, bool)
}

// ReminderScheduler 单进程部署假设：不做库级锁，多实例并跑会重复投递
type ReminderScheduler struct {
	db              *gorm.DB
	dir             Directory
	tts             Synthesizer
	frameDurationMs int
	cron            *cron.Cron
	stopped         chan struct{}
	stopOnce        sync.Once
}

func New(db *gorm.DB, dir Directory, tts Synthesizer, frameDurationMs int) *ReminderScheduler {
	return &ReminderScheduler{
		db:              db,
		dir:             dir,
		tts:             tts,
		frameDurationMs: frameDurationMs,
		cron:            cron.New(cron.WithSeconds()),
		stopped:         make(chan struct{}),
	}
}

// Start 注册周期任务并延迟启动
func (s *ReminderScheduler) Start() error {
	if _, err := s.cron.AddFunc(cycleSpec, s.runCycle); err != nil {
		return fmt.Errorf("register reminder job: %w", err)
	}
	go func() {
		select {
		case <-time.After(startDelay):
			s.cron.Start()
		case <-s.stopped:
		}
	}()
	logger.Info("[Scheduler] 提醒调度器已启动",
		zap.String("cycle", cycleSpec),
		zap.Duration("startDelay", startDelay))
	return nil
}

// Stop 停止调度并等在途任务跑完
func (s *ReminderScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopped) })
	<-s.cron.Stop().Done()
	logger.Info("[Scheduler] 提醒调度器已停止")
}

func (s *ReminderScheduler) runCycle() {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("[Scheduler] 扫描任务 panic",
				zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	now := time.Now()
	due, err := models.GetDueReminders(s.db, now)
	if err != nil {
		logger.Error("[Scheduler] 查询到期提醒失败", zap.Error(err))
		return
	}
	if len(due) == 0 {
		return
	}
	logger.Info("[Scheduler] 发现到期提醒", zap.Int("count", len(due)))

	for i := range due {
		s.deliver(now, &due[i])
	}
}

// deliver 送达一条提醒：成功标记已投递并续期，失败看过期与否决定作废或重试
func (s *ReminderScheduler) deliver(now time.Time, r *models.Reminder) {
	if s.push(r) {
		if err := models.MarkReminderDelivered(s.db, r.ID); err != nil {
			logger.Error("[Scheduler] 标记已送达失败", zap.Uint("id", r.ID), zap.Error(err))
			return
		}
		metrics.RemindersDelivered.WithLabelValues("online").Inc()
		logger.Info("[Scheduler] 提醒已送达",
			zap.Uint("id", r.ID),
			zap.String("deviceId", r.DeviceID),
			zap.String("message", r.Message))
		if r.IsRecurring && r.RecurrenceRule != "" {
			s.scheduleNext(r)
		}
		return
	}

	if overdue := now.Sub(r.RemindAt); overdue > expireAfter {
		if err := models.MarkReminderExpired(s.db, r.ID); err != nil {
			logger.Error("[Scheduler] 标记过期失败", zap.Uint("id", r.ID), zap.Error(err))
			return
		}
		metrics.RemindersDelivered.WithLabelValues("expired").Inc()
		logger.Warn("[Scheduler] 提醒过期作废",
			zap.Uint("id", r.ID),
			zap.String("deviceId", r.DeviceID),
			zap.Float64("overdueS", overdue.Seconds()))
	}
	// 未过期的留在队里，下轮重试
}

// push 合成并推送。设备不在线或正忙（录音、处理、放音乐）时顺延，
// 不打断正在进行的对话。
func (s *ReminderScheduler) push(r *models.Reminder) bool {
	sess, ok := s.dir.Lookup(r.DeviceID)
	if !ok {
		logger.Info("[Scheduler] 设备不在线，提醒顺延",
			zap.Uint("id", r.ID), zap.String("deviceId", r.DeviceID))
		return false
	}
	if sess.Processing() || sess.Listening() || sess.MusicPlaying() {
		logger.Info("[Scheduler] 设备忙，提醒顺延",
			zap.Uint("id", r.ID), zap.String("deviceId", r.DeviceID))
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), synthTimeout)
	defer cancel()
	frames, err := s.tts.Synthesize(ctx, r.Message, sess.Overrides)
	if err != nil {
		logger.Error("[Scheduler] 提醒合成失败", zap.Uint("id", r.ID), zap.Error(err))
		return false
	}
	if len(frames) == 0 {
		return false
	}

	w := sess.Writer
	if !w.SendTTSStart(r.Message) {
		return false
	}
	rc := gateway.NewRateController(s.frameDurationMs)
	rc.EnqueueAll(frames)
	sent := rc.DrainBatched(w.SendBinary, w.Closed)
	w.SendTTSEnd()

	logger.Info("[Scheduler] 提醒语音推送完成",
		zap.Uint("id", r.ID),
		zap.Int("sentFrames", sent),
		zap.Int("totalFrames", len(frames)))
	return sent > 0
}

// scheduleNext 按规则从原定时刻推算下一次，插入新行
func (s *ReminderScheduler) scheduleNext(r *models.Reminder) {
	next, ok := recurrence.NextOccurrence(r.RemindAt, r.RecurrenceRule)
	if !ok {
		logger.Warn("[Scheduler] 无法识别的重复规则，不再续期",
			zap.Uint("id", r.ID), zap.String("rule", r.RecurrenceRule))
		return
	}

	renewed := &models.Reminder{
		UserID:         r.UserID,
		DeviceID:       r.DeviceID,
		RemindAt:       next,
		Message:        r.Message,
		IsRecurring:    true,
		RecurrenceRule: r.RecurrenceRule,
		Source:         r.Source,
	}
	if err := models.CreateReminder(s.db, renewed); err != nil {
		logger.Error("[Scheduler] 重复提醒续期失败", zap.Uint("id", r.ID), zap.Error(err))
		return
	}
	logger.Info("[Scheduler] 重复提醒已续期",
		zap.Uint("id", r.ID),
		zap.Uint("nextId", renewed.ID),
		zap.Time("nextAt", next))
}
