package recurrence

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// 周期规则，中英文同义词都接受。除下列关键词外还支持 "HH:MM"
// 形式的每日定时规则（如 "08:30"）。
const (
	RuleDaily    = "daily"
	RuleWeekly   = "weekly"
	RuleMonthly  = "monthly"
	RuleWeekdays = "weekdays"
)

var timeOfDayPattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

// NextOccurrence 计算规则在 base 之后的下一次触发时间。
// 规则先做 trim 和小写归一化；无法识别时返回 ok=false，
// 调度器据此把提醒当作一次性处理。
func NextOccurrence(base time.Time, rule string) (time.Time, bool) {
	switch normalize(rule) {
	case RuleDaily:
		return base.Add(24 * time.Hour), true
	case RuleWeekly:
		return base.Add(7 * 24 * time.Hour), true
	case RuleMonthly:
		return base.Add(30 * 24 * time.Hour), true
	case RuleWeekdays:
		next := base.Add(24 * time.Hour)
		for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
			next = next.Add(24 * time.Hour)
		}
		return next, true
	}
	if h, m, ok := parseTimeOfDay(rule); ok {
		next := time.Date(base.Year(), base.Month(), base.Day(), h, m, 0, 0, base.Location())
		if !next.After(base) {
			next = next.Add(24 * time.Hour)
		}
		return next, true
	}
	return time.Time{}, false
}

// Valid 报告规则是否能被 NextOccurrence 识别。
func Valid(rule string) bool {
	switch normalize(rule) {
	case RuleDaily, RuleWeekly, RuleMonthly, RuleWeekdays:
		return true
	}
	_, _, ok := parseTimeOfDay(rule)
	return ok
}

func normalize(rule string) string {
	switch r := strings.ToLower(strings.TrimSpace(rule)); r {
	case "每天", "每日":
		return RuleDaily
	case "每周":
		return RuleWeekly
	case "每月":
		return RuleMonthly
	case "工作日":
		return RuleWeekdays
	default:
		return r
	}
}

func parseTimeOfDay(rule string) (hour, minute int, ok bool) {
	m := timeOfDayPattern.FindStringSubmatch(strings.TrimSpace(rule))
	if m == nil {
		return 0, 0, false
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	if hour > 23 || minute > 59 {
		return 0, 0, false
	}
	return hour, minute, true
}
