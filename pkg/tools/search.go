package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
)

const defaultSearchBaseURL = "https://api.duckduckgo.com"

// 播报用答案的最大长度（按符文数）
const maxSearchAnswerRunes = 200

// ddgAnswer DuckDuckGo instant answer API 的响应子集
type ddgAnswer struct {
	AbstractText  string `json:"AbstractText"`
	Heading       string `json:"Heading"`
	Answer        string `json:"Answer"`
	RelatedTopics []struct {
		Text string `json:"Text"`
	} `json:"RelatedTopics"`
}

// searchWeb 即时问答检索，返回适合播报的一句话摘要
func searchWeb(ctx context.Context, client *resty.Client, baseURL, query string) (string, error) {
	resp, err := client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":       query,
			"format":  "json",
			"no_html": "1",
		}).
		Get(baseURL + "/")
	if err != nil {
		return "", fmt.Errorf("请求检索 API 失败: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("检索 API 返回错误状态码: %d", resp.StatusCode())
	}

	var answer ddgAnswer
	if err := json.Unmarshal(resp.Body(), &answer); err != nil {
		return "", fmt.Errorf("解析检索结果失败: %w", err)
	}

	text := strings.TrimSpace(answer.Answer)
	if text == "" {
		text = strings.TrimSpace(answer.AbstractText)
	}
	if text == "" {
		for _, topic := range answer.RelatedTopics {
			if t := strings.TrimSpace(topic.Text); t != "" {
				text = t
				break
			}
		}
	}
	if text == "" {
		return "", nil
	}
	if runes := []rune(text); len(runes) > maxSearchAnswerRunes {
		text = string(runes[:maxSearchAnswerRunes]) + "……"
	}
	return text, nil
}
