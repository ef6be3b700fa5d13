package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/voicebridge-ai/EchoGate/internal/models"
	"github.com/voicebridge-ai/EchoGate/pkg/logger"
	"github.com/voicebridge-ai/EchoGate/pkg/recurrence"
)

// Deps 内置工具依赖的外部资源。BaseURL 留空用公共接口，测试时注入桩。
type Deps struct {
	HTTP           *resty.Client
	WeatherBaseURL string
	SearchBaseURL  string
}

// RegisterBuiltins 注册全部内置语音工具
func RegisterBuiltins(reg *Registry, deps *Deps) {
	if deps == nil {
		deps = &Deps{}
	}
	if deps.HTTP == nil {
		deps.HTTP = resty.New().SetTimeout(5 * time.Second)
	}
	if deps.WeatherBaseURL == "" {
		deps.WeatherBaseURL = defaultWeatherBaseURL
	}
	if deps.SearchBaseURL == "" {
		deps.SearchBaseURL = defaultSearchBaseURL
	}

	registerMusicTools(reg)
	registerInfoTools(reg, deps)
	registerReminderTools(reg)
	registerVolumeTools(reg)
	registerMeetingTools(reg)
	registerSessionTools(reg)
}

// ---- 音乐 ----

func registerMusicTools(reg *Registry) {
	reg.Register(&Tool{
		Name:        "youtube.play",
		Description: "点歌或播放音乐",
		Params: []Param{
			{Name: "query", Type: "string", Required: true, Prompt: "想听什么歌？"},
		},
		Handler: func(ctx context.Context, call *Call, args map[string]any) Result {
			return Result{
				Type: ResultMusic,
				Data: map[string]any{"query": cast.ToString(args["query"])},
			}
		},
	})

	reg.Register(&Tool{
		Name:        "player.pause",
		Description: "暂停正在播放的音乐",
		Handler: func(ctx context.Context, call *Call, args map[string]any) Result {
			if call.Session == nil || !call.Session.MusicPlaying() {
				return Result{Type: ResultTTS, Text: "现在没有在放音乐。"}
			}
			call.Session.PauseMusic()
			return Result{Type: ResultTTS, Text: "好的，已暂停。"}
		},
	})

	reg.Register(&Tool{
		Name:        "player.resume",
		Description: "继续播放暂停的音乐",
		Handler: func(ctx context.Context, call *Call, args map[string]any) Result {
			if call.Session == nil || !call.Session.MusicPlaying() {
				return Result{Type: ResultTTS, Text: "现在没有在放音乐。"}
			}
			if !call.Session.MusicPaused() {
				return Result{Type: ResultTTS, Text: "音乐本来就在放着。"}
			}
			call.Session.ResumeMusic()
			return Result{Type: ResultTTS, Text: "继续播放。"}
		},
	})

	reg.Register(&Tool{
		Name:        "player.stop",
		Description: "停止播放音乐",
		Handler: func(ctx context.Context, call *Call, args map[string]any) Result {
			if call.Session == nil || !call.Session.MusicPlaying() {
				return Result{Type: ResultTTS, Text: "现在没有在放音乐。"}
			}
			call.Session.StopMusic()
			return Result{Type: ResultTTS, Text: "好的，已停止播放。"}
		},
	})
}

// ---- 信息查询 ----

func registerInfoTools(reg *Registry, deps *Deps) {
	reg.Register(&Tool{
		Name:        "weather.query",
		Description: "查询城市实时天气",
		Params: []Param{
			{Name: "city", Type: "string", Prompt: "想查哪个城市的天气？"},
		},
		Handler: func(ctx context.Context, call *Call, args map[string]any) Result {
			city := cast.ToString(args["city"])
			if city == "" && call.DB != nil {
				city, _ = models.GetPreference(call.DB, call.UserID, "preferred_city")
			}
			if city == "" {
				return Result{
					Type: ResultAskUser,
					Text: "想查哪个城市的天气？",
					Data: map[string]any{"missing_param": "city"},
				}
			}
			text, err := fetchWeather(ctx, deps.HTTP, deps.WeatherBaseURL, city)
			if err != nil {
				logger.Warn("weather lookup failed",
					zap.String("city", city),
					zap.Error(err))
				return Result{Type: ResultError, Text: fmt.Sprintf("抱歉，暂时查不到%s的天气。", city)}
			}
			return Result{Type: ResultTTS, Text: text}
		},
	})

	reg.Register(&Tool{
		Name:        "web.search",
		Description: "联网检索一个问题的简短答案",
		Params: []Param{
			{Name: "query", Type: "string", Required: true, Prompt: "想查什么？"},
		},
		Handler: func(ctx context.Context, call *Call, args map[string]any) Result {
			query := cast.ToString(args["query"])
			text, err := searchWeb(ctx, deps.HTTP, deps.SearchBaseURL, query)
			if err != nil {
				logger.Warn("web search failed",
					zap.String("query", query),
					zap.Error(err))
				return Result{Type: ResultError, Text: "检索出了点问题，稍后再试吧。"}
			}
			if text == "" {
				return Result{Type: ResultTTS, Text: "没有查到相关的信息。"}
			}
			return Result{Type: ResultTTS, Text: text}
		},
	})

	reg.Register(&Tool{
		Name:        "time.now",
		Description: "报当前日期和时间",
		Params: []Param{
			{Name: "format", Type: "string", Default: "datetime"},
		},
		Handler: func(ctx context.Context, call *Call, args map[string]any) Result {
			now := time.Now()
			var text string
			switch cast.ToString(args["format"]) {
			case "date":
				text = fmt.Sprintf("今天是%d年%d月%d日，%s。", now.Year(), now.Month(), now.Day(), chineseWeekday(now))
			case "time":
				text = fmt.Sprintf("现在是%d点%02d分。", now.Hour(), now.Minute())
			default:
				text = fmt.Sprintf("现在是%d月%d日%d点%02d分，%s。",
					now.Month(), now.Day(), now.Hour(), now.Minute(), chineseWeekday(now))
			}
			return Result{Type: ResultTTS, Text: text}
		},
	})

	reg.Register(&Tool{
		Name:        "briefing.daily",
		Description: "播报今日简报（日期、天气、待办提醒）",
		Handler: func(ctx context.Context, call *Call, args map[string]any) Result {
			now := time.Now()
			var b strings.Builder
			fmt.Fprintf(&b, "今天是%d年%d月%d日，%s。", now.Year(), now.Month(), now.Day(), chineseWeekday(now))

			if call.DB != nil {
				if city, _ := models.GetPreference(call.DB, call.UserID, "preferred_city"); city != "" {
					if weather, err := fetchWeather(ctx, deps.HTTP, deps.WeatherBaseURL, city); err == nil {
						b.WriteString(weather)
					}
				}
				if count, err := models.CountPendingReminders(call.DB, call.UserID); err == nil {
					if count > 0 {
						fmt.Fprintf(&b, "你还有%d条待办提醒。", count)
					} else {
						b.WriteString("今天没有待办提醒。")
					}
				}
			}
			return Result{Type: ResultTTS, Text: b.String()}
		},
	})
}

// ---- 提醒、闹钟、定时 ----

func registerReminderTools(reg *Registry) {
	reg.Register(&Tool{
		Name:        "reminder.set",
		Description: "设置一条提醒，minutes 和 time 二选一",
		Params: []Param{
			{Name: "message", Type: "string", Required: true, Prompt: "要提醒你什么？"},
			{Name: "minutes", Type: "int"},
			{Name: "time", Type: "string"},
			{Name: "recurrence", Type: "string"},
		},
		Handler: func(ctx context.Context, call *Call, args map[string]any) Result {
			return createTimedReminder(call, args, models.ReminderSourceVoice,
				cast.ToString(args["message"]), "想在什么时候提醒你？")
		},
	})

	reg.Register(&Tool{
		Name:        "reminder.list",
		Description: "列出待办提醒",
		Handler: func(ctx context.Context, call *Call, args map[string]any) Result {
			reminders, err := models.GetUserReminders(call.DB, call.UserID)
			if err != nil {
				return Result{Type: ResultError, Text: "查提醒的时候出了点问题。"}
			}
			if len(reminders) == 0 {
				return Result{Type: ResultTTS, Text: "现在没有待办提醒。"}
			}
			return Result{Type: ResultTTS, Text: speakReminderList("提醒", reminders)}
		},
	})

	reg.Register(&Tool{
		Name:        "reminder.cancel",
		Description: "取消一条提醒，不带 id 时取消最近的一条",
		Params: []Param{
			{Name: "id", Type: "int"},
		},
		Handler: func(ctx context.Context, call *Call, args map[string]any) Result {
			if id := cast.ToInt(args["id"]); id > 0 {
				if err := models.DeleteReminder(call.DB, call.UserID, uint(id)); err != nil {
					return Result{Type: ResultTTS, Text: "没有找到这条提醒。"}
				}
				return Result{Type: ResultTTS, Text: "好的，这条提醒取消了。"}
			}
			deleted, err := models.DeleteNearestPendingReminder(call.DB, call.UserID, "")
			if err != nil {
				return Result{Type: ResultError, Text: "取消提醒的时候出了点问题。"}
			}
			if deleted == nil {
				return Result{Type: ResultTTS, Text: "现在没有待办提醒。"}
			}
			return Result{Type: ResultTTS, Text: fmt.Sprintf("好的，取消了「%s」这条提醒。", deleted.Message)}
		},
	})

	reg.Register(&Tool{
		Name:        "alarm.set",
		Description: "设闹钟，时间用 HH:MM，recurrence 可选 daily、weekdays 等",
		Params: []Param{
			{Name: "time", Type: "string", Required: true, Prompt: "闹钟定在几点？"},
			{Name: "recurrence", Type: "string"},
			{Name: "message", Type: "string", Default: "闹钟时间到了"},
		},
		Handler: func(ctx context.Context, call *Call, args map[string]any) Result {
			return createTimedReminder(call, args, models.ReminderSourceAlarm,
				cast.ToString(args["message"]), "闹钟定在几点？")
		},
	})

	reg.Register(&Tool{
		Name:        "alarm.list",
		Description: "列出已设的闹钟",
		Handler: func(ctx context.Context, call *Call, args map[string]any) Result {
			alarms, err := models.GetUserRemindersBySource(call.DB, call.UserID, models.ReminderSourceAlarm)
			if err != nil {
				return Result{Type: ResultError, Text: "查闹钟的时候出了点问题。"}
			}
			if len(alarms) == 0 {
				return Result{Type: ResultTTS, Text: "现在没有设闹钟。"}
			}
			return Result{Type: ResultTTS, Text: speakReminderList("闹钟", alarms)}
		},
	})

	reg.Register(&Tool{
		Name:        "alarm.cancel",
		Description: "取消最近的一个闹钟",
		Handler: func(ctx context.Context, call *Call, args map[string]any) Result {
			deleted, err := models.DeleteNearestPendingReminder(call.DB, call.UserID, models.ReminderSourceAlarm)
			if err != nil {
				return Result{Type: ResultError, Text: "取消闹钟的时候出了点问题。"}
			}
			if deleted == nil {
				return Result{Type: ResultTTS, Text: "现在没有设闹钟。"}
			}
			return Result{Type: ResultTTS, Text: fmt.Sprintf("好的，%s的闹钟取消了。", deleted.RemindAt.Format("15:04"))}
		},
	})

	reg.Register(&Tool{
		Name:        "timer.set",
		Description: "设倒计时，minutes 是分钟数",
		Params: []Param{
			{Name: "minutes", Type: "int", Required: true, Prompt: "定时多少分钟？"},
			{Name: "message", Type: "string", Default: "你设的定时到了"},
		},
		Handler: func(ctx context.Context, call *Call, args map[string]any) Result {
			minutes := cast.ToInt(args["minutes"])
			if minutes <= 0 {
				return Result{Type: ResultError, Text: "定时要大于零分钟。"}
			}
			reminder := &models.Reminder{
				UserID:   call.UserID,
				DeviceID: call.DeviceID,
				RemindAt: time.Now().Add(time.Duration(minutes) * time.Minute),
				Message:  cast.ToString(args["message"]),
				Source:   models.ReminderSourceTimer,
			}
			if err := models.CreateReminder(call.DB, reminder); err != nil {
				return Result{Type: ResultError, Text: "定时没设上，稍后再试吧。"}
			}
			return Result{Type: ResultTTS, Text: fmt.Sprintf("好的，%d分钟后提醒你。", minutes)}
		},
	})

	reg.Register(&Tool{
		Name:        "timer.cancel",
		Description: "取消最近的倒计时",
		Handler: func(ctx context.Context, call *Call, args map[string]any) Result {
			deleted, err := models.DeleteNearestPendingReminder(call.DB, call.UserID, models.ReminderSourceTimer)
			if err != nil {
				return Result{Type: ResultError, Text: "取消定时的时候出了点问题。"}
			}
			if deleted == nil {
				return Result{Type: ResultTTS, Text: "现在没有设着的定时。"}
			}
			return Result{Type: ResultTTS, Text: "好的，定时取消了。"}
		},
	})
}

// ---- 音量 ----

func registerVolumeTools(reg *Registry) {
	reg.Register(&Tool{
		Name:        "volume.set",
		Description: "把音量调到指定档位，0 到 100",
		Params: []Param{
			{Name: "level", Type: "int", Required: true, Prompt: "音量调到多少？"},
		},
		Handler: func(ctx context.Context, call *Call, args map[string]any) Result {
			return applyVolume(call, cast.ToInt(args["level"]))
		},
	})

	reg.Register(&Tool{
		Name:        "volume.up",
		Description: "调大音量",
		Handler: func(ctx context.Context, call *Call, args map[string]any) Result {
			if call.Session == nil {
				return Result{Type: ResultSilent}
			}
			return applyVolume(call, call.Session.Volume()+10)
		},
	})

	reg.Register(&Tool{
		Name:        "volume.down",
		Description: "调小音量",
		Handler: func(ctx context.Context, call *Call, args map[string]any) Result {
			if call.Session == nil {
				return Result{Type: ResultSilent}
			}
			return applyVolume(call, call.Session.Volume()-10)
		},
	})
}

// ---- 会议记录 ----

func registerMeetingTools(reg *Registry) {
	reg.Register(&Tool{
		Name:        "meeting.start",
		Description: "开始会议记录，之后说的话都会被记下来",
		Handler: func(ctx context.Context, call *Call, args map[string]any) Result {
			if call.Session == nil {
				return Result{Type: ResultSilent}
			}
			if !call.Session.StartMeeting() {
				return Result{Type: ResultTTS, Text: "会议记录已经开着了。"}
			}
			return Result{Type: ResultTTS, Text: "好的，开始会议记录。"}
		},
	})

	reg.Register(&Tool{
		Name:        "meeting.end",
		Description: "结束会议记录",
		Handler: func(ctx context.Context, call *Call, args map[string]any) Result {
			if call.Session == nil {
				return Result{Type: ResultSilent}
			}
			count, wasActive := call.Session.EndMeeting()
			if !wasActive {
				return Result{Type: ResultTTS, Text: "现在没有进行中的会议。"}
			}
			return Result{Type: ResultTTS, Text: fmt.Sprintf("会议结束，一共记了%d条。", count)}
		},
	})

	reg.Register(&Tool{
		Name:        "meeting.transcribe",
		Description: "把会议记录念一遍",
		Handler: func(ctx context.Context, call *Call, args map[string]any) Result {
			if call.Session == nil {
				return Result{Type: ResultSilent}
			}
			notes := call.Session.MeetingNotes()
			if len(notes) == 0 {
				return Result{Type: ResultTTS, Text: "会议里还没有记录。"}
			}
			text := strings.Join(notes, "。")
			if runes := []rune(text); len(runes) > 300 {
				text = string(runes[:300]) + "……"
			}
			return Result{Type: ResultTTS, Text: text}
		},
	})
}

// ---- 会话 ----

func registerSessionTools(reg *Registry) {
	reg.Register(&Tool{
		Name:        "conversation.reset",
		Description: "忘掉前面聊的内容，重新开始",
		Handler: func(ctx context.Context, call *Call, args map[string]any) Result {
			if call.ResetConversation != nil {
				call.ResetConversation()
			}
			return Result{Type: ResultTTS, Text: "好，我们重新开始聊。"}
		},
	})

	reg.Register(&Tool{
		Name:        "note.save",
		Description: "记一条便签",
		Params: []Param{
			{Name: "content", Type: "string", Required: true, Prompt: "要记什么内容？"},
		},
		Handler: func(ctx context.Context, call *Call, args map[string]any) Result {
			content := cast.ToString(args["content"])
			if runes := []rune(content); len(runes) > models.MaxPrefValueLen {
				content = string(runes[:models.MaxPrefValueLen])
			}
			if err := models.SetPreference(call.DB, call.UserID, "last_note", content); err != nil {
				return Result{Type: ResultError, Text: "没记上，稍后再试吧。"}
			}
			return Result{Type: ResultTTS, Text: "记下了。"}
		},
	})

	reg.Register(&Tool{
		Name:        "note.read",
		Description: "念最近记的便签",
		Handler: func(ctx context.Context, call *Call, args map[string]any) Result {
			note, err := models.GetPreference(call.DB, call.UserID, "last_note")
			if err != nil {
				return Result{Type: ResultError, Text: "查便签的时候出了点问题。"}
			}
			if note == "" {
				return Result{Type: ResultTTS, Text: "最近没有记过东西。"}
			}
			return Result{Type: ResultTTS, Text: "你记过：" + note}
		},
	})
}

// ---- 公共小件 ----

// createTimedReminder 按 minutes 或 time 参数落一条提醒。
// 两者都没给时追问 askPrompt。
func createTimedReminder(call *Call, args map[string]any, source, message, askPrompt string) Result {
	now := time.Now()
	var remindAt time.Time

	if minutes := cast.ToInt(args["minutes"]); minutes > 0 {
		remindAt = now.Add(time.Duration(minutes) * time.Minute)
	} else if tod := cast.ToString(args["time"]); tod != "" {
		next, ok := recurrence.NextOccurrence(now, tod)
		if !ok {
			return Result{Type: ResultError, Text: "时间没听清，要用几点几分的说法。"}
		}
		remindAt = next
	} else {
		return Result{
			Type: ResultAskUser,
			Text: askPrompt,
			Data: map[string]any{"missing_param": "time"},
		}
	}

	rule := cast.ToString(args["recurrence"])
	isRecurring := rule != "" && rule != "once" && recurrence.Valid(rule)
	if !isRecurring {
		rule = ""
	}

	reminder := &models.Reminder{
		UserID:         call.UserID,
		DeviceID:       call.DeviceID,
		RemindAt:       remindAt,
		Message:        message,
		IsRecurring:    isRecurring,
		RecurrenceRule: rule,
		Source:         source,
	}
	if err := models.CreateReminder(call.DB, reminder); err != nil {
		logger.Error("create reminder failed",
			zap.Uint("user_id", call.UserID),
			zap.Error(err))
		return Result{Type: ResultError, Text: "没设上，稍后再试吧。"}
	}

	when := remindAt.Format("15:04")
	if isRecurring {
		return Result{Type: ResultTTS, Text: fmt.Sprintf("好的，%s提醒你%s，按%s重复。", when, message, rule)}
	}
	return Result{Type: ResultTTS, Text: fmt.Sprintf("好的，%s提醒你%s。", when, message)}
}

// speakReminderList 拼成播报文本，最多念 5 条
func speakReminderList(kind string, reminders []models.Reminder) string {
	var b strings.Builder
	fmt.Fprintf(&b, "你有%d个%s：", len(reminders), kind)
	for i, r := range reminders {
		if i == 5 {
			b.WriteString("；后面还有几条")
			break
		}
		if i > 0 {
			b.WriteString("；")
		}
		fmt.Fprintf(&b, "%s %s", r.RemindAt.Format("1月2日15:04"), r.Message)
	}
	b.WriteString("。")
	return b.String()
}

// applyVolume 夹取音量、下发到设备并播报生效值
func applyVolume(call *Call, level int) Result {
	if call.Session == nil {
		return Result{Type: ResultSilent}
	}
	applied := call.Session.SetVolume(level)
	if !call.Session.PushVolume(applied) {
		return Result{Type: ResultSilent}
	}
	return Result{Type: ResultTTS, Text: fmt.Sprintf("音量调到%d。", applied)}
}

var weekdayNames = [...]string{"星期日", "星期一", "星期二", "星期三", "星期四", "星期五", "星期六"}

func chineseWeekday(t time.Time) string {
	return weekdayNames[int(t.Weekday())]
}
