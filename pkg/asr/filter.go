package asr

import (
	"strings"

	"go.uber.org/zap"

	"github.com/voicebridge-ai/EchoGate/pkg/logger"
)

// Whisper 在静音/噪声段上会编造训练语料里的高频短语（视频片尾语之类），
// 命中下表的识别结果直接丢弃。

// 整句匹配，比较前先小写并去掉尾部标点
var hallucinationPhrases = map[string]struct{}{
	"thank you": {}, "thank you for watching": {}, "thanks for watching": {},
	"thanks": {}, "bye": {}, "goodbye": {}, "all right": {}, "you": {}, "the end": {},
	"subscribe": {}, "like and subscribe": {}, "see you next time": {},
	"so": {}, "okay": {}, "yeah": {}, "yes": {}, "no": {}, "hmm": {}, "uh": {},
	"谢谢观看": {}, "感谢观看": {}, "请订阅": {}, "点赞": {}, "订阅": {},
	"谢谢大家": {}, "谢谢": {}, "再见": {}, "好的": {}, "嗯": {},
	"字幕": {}, "字幕由": {}, "字幕提供": {},
}

// 子串匹配，小写包含即命中
var hallucinationSubstrings = []string{
	"点赞", "订阅", "转发", "打赏", "关注",
	"字幕由", "字幕提供", "subtitles by",
	"thank you for watching", "thanks for watching",
	"like and subscribe",
	"明镜", "栏目", "支持明镜",
	"请不吝", "视频来源",
}

const trailingPunct = ".!?,。！？，"

// FilterHallucination 命中幻觉模式返回空串，否则原样返回。幂等。
func FilterHallucination(text string) string {
	if text == "" {
		return ""
	}
	normalized := strings.TrimRight(strings.ToLower(text), trailingPunct)
	if _, ok := hallucinationPhrases[normalized]; ok {
		logger.Warn("[ASR] filtered hallucination (exact)", zap.String("text", text))
		return ""
	}
	lower := strings.ToLower(text)
	for _, pattern := range hallucinationSubstrings {
		if strings.Contains(lower, pattern) {
			logger.Warn("[ASR] filtered hallucination (substring)",
				zap.String("pattern", pattern), zap.String("text", text))
			return ""
		}
	}
	return text
}
