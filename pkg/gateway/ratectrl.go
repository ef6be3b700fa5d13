package gateway

import (
	"time"

	"go.uber.org/zap"

	"github.com/voicebridge-ai/EchoGate/pkg/logger"
)

// maxConsecutiveSendErrors 连续失败阈值，超过即放弃整段音频
const maxConsecutiveSendErrors = 3

// batchFrames 调度器推送提醒时的批大小，批间检查中断
const batchFrames = 5

// RateController 按播放速率下发 opus 帧。一次性突发会冲垮手机热点的
// TCP 拥塞窗口，所以每帧间隔 frame_duration 对齐发送，60ms 一帧时
// 码率只有约 3KB/s。
type RateController struct {
	frameDuration time.Duration
	queue         [][]byte
	startTime     time.Time
}

func NewRateController(frameDurationMs int) *RateController {
	if frameDurationMs <= 0 {
		frameDurationMs = 60
	}
	return &RateController{frameDuration: time.Duration(frameDurationMs) * time.Millisecond}
}

// Enqueue 入队一帧
func (rc *RateController) Enqueue(packet []byte) {
	rc.queue = append(rc.queue, packet)
}

// EnqueueAll 批量入队
func (rc *RateController) EnqueueAll(packets [][]byte) {
	rc.queue = append(rc.queue, packets...)
}

// Pending 队内待发帧数
func (rc *RateController) Pending() int {
	return len(rc.queue)
}

// Drain 按实时速率发完队列。send 返回 false 记一次失败，连续三次停止；
// abort 返回 true 立刻停止。返回成功发送的帧数。
// 第 i 帧的目标时刻是 start + i·frameDuration（只数成功帧），
// 发送落后时不补偿间隔，直接追赶。
func (rc *RateController) Drain(send func([]byte) bool, abort func() bool) int {
	total := len(rc.queue)
	if total == 0 {
		return 0
	}

	rc.startTime = time.Now()
	sent := 0
	consecutiveErrors := 0

	for len(rc.queue) > 0 {
		if abort() {
			logger.Info("[RateCtrl] 中断退出", zap.Int("sent", sent), zap.Int("total", total))
			break
		}

		target := rc.startTime.Add(time.Duration(sent) * rc.frameDuration)
		if d := time.Until(target); d > 0 {
			time.Sleep(d)
		}

		packet := rc.queue[0]
		rc.queue = rc.queue[1:]

		if send(packet) {
			sent++
			consecutiveErrors = 0
		} else {
			consecutiveErrors++
			if consecutiveErrors >= maxConsecutiveSendErrors {
				logger.Error("[RateCtrl] 连续发送失败，放弃剩余音频",
					zap.Int("sent", sent), zap.Int("total", total))
				break
			}
		}
	}

	elapsed := time.Since(rc.startTime)
	logger.Info("[RateCtrl] 排空完成",
		zap.Int("sent", sent),
		zap.Int("total", total),
		zap.Float64("elapsedS", elapsed.Seconds()),
		zap.Float64("expectedS", (time.Duration(total)*rc.frameDuration).Seconds()))
	return sent
}

// DrainBatched 调度器推送用的批量变体：每批 batchFrames 帧，
// 批内连发、批间对齐节奏并检查中断。任何一次发送失败即停止。
func (rc *RateController) DrainBatched(send func([]byte) bool, abort func() bool) int {
	total := len(rc.queue)
	if total == 0 {
		return 0
	}

	rc.startTime = time.Now()
	sent := 0

	for len(rc.queue) > 0 {
		if abort() {
			logger.Info("[RateCtrl] 批量推送中断", zap.Int("sent", sent), zap.Int("total", total))
			break
		}

		target := rc.startTime.Add(time.Duration(sent) * rc.frameDuration)
		if d := time.Until(target); d > 0 {
			time.Sleep(d)
		}

		n := batchFrames
		if n > len(rc.queue) {
			n = len(rc.queue)
		}
		failed := false
		for i := 0; i < n; i++ {
			if !send(rc.queue[i]) {
				failed = true
				break
			}
			sent++
		}
		rc.queue = rc.queue[n:]
		if failed {
			logger.Warn("[RateCtrl] 批量推送发送失败，提前结束",
				zap.Int("sent", sent), zap.Int("total", total))
			break
		}
	}

	logger.Info("[RateCtrl] 批量推送完成", zap.Int("sent", sent), zap.Int("total", total))
	return sent
}
