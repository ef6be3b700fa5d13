// Package provider OpenAI 兼容客户端池。ASR/LLM/TTS 适配器共用，
// 按 (baseURL, apiKey) 复用连接，LRU 上限 20 个用户级客户端。
package provider

import (
	lru "github.com/hashicorp/golang-lru/v2"
	openai "github.com/sashabaranov/go-openai"
)

const maxClients = 20

// Overrides 单用户的提供方配置覆盖，来自 user_credentials 表，
// 空字段回落到全局配置。
type Overrides struct {
	ASRProvider string
	APIKey      string
	BaseURL     string
	ChatModel   string
	ASRModel    string
	TTSModel    string
	TTSVoice    string
}

// HasCustomClient 是否带了用户自己的 key 或地址（失败时要回退全局默认重试一次）
func (o *Overrides) HasCustomClient() bool {
	return o != nil && (o.APIKey != "" || o.BaseURL != "")
}

func (o *Overrides) ASRProviderOr(def string) string { return o.pick(func() string { return o.ASRProvider }, def) }
func (o *Overrides) ChatModelOr(def string) string   { return o.pick(func() string { return o.ChatModel }, def) }
func (o *Overrides) ASRModelOr(def string) string    { return o.pick(func() string { return o.ASRModel }, def) }
func (o *Overrides) TTSModelOr(def string) string    { return o.pick(func() string { return o.TTSModel }, def) }
func (o *Overrides) TTSVoiceOr(def string) string    { return o.pick(func() string { return o.TTSVoice }, def) }

func (o *Overrides) pick(get func() string, def string) string {
	if o == nil {
		return def
	}
	if v := get(); v != "" {
		return v
	}
	return def
}

type clientKey struct {
	baseURL string
	apiKey  string
}

// ClientCache OpenAI 兼容客户端池
type ClientCache struct {
	defaultAPIKey  string
	defaultBaseURL string
	defaultClient  *openai.Client
	clients        *lru.Cache[clientKey, *openai.Client]
}

func NewClientCache(apiKey, baseURL string) *ClientCache {
	// size 恒为正，New 不会失败
	cache, _ := lru.New[clientKey, *openai.Client](maxClients)
	return &ClientCache{
		defaultAPIKey:  apiKey,
		defaultBaseURL: baseURL,
		defaultClient:  newClient(apiKey, baseURL),
		clients:        cache,
	}
}

func newClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

// Get 返回该 (apiKey, baseURL) 组合的客户端；空字段回落到全局配置，
// 只填 baseURL 时用全局 key 建新客户端。
func (c *ClientCache) Get(apiKey, baseURL string) *openai.Client {
	if apiKey == "" {
		apiKey = c.defaultAPIKey
	}
	if baseURL == "" {
		baseURL = c.defaultBaseURL
	}
	if apiKey == c.defaultAPIKey && baseURL == c.defaultBaseURL {
		return c.defaultClient
	}
	key := clientKey{baseURL: baseURL, apiKey: apiKey}
	if client, ok := c.clients.Get(key); ok {
		return client
	}
	client := newClient(apiKey, baseURL)
	c.clients.Add(key, client)
	return client
}

// ForOverrides 为会话的用户配置解析客户端，nil 配置用全局默认
func (c *ClientCache) ForOverrides(o *Overrides) *openai.Client {
	if o == nil {
		return c.defaultClient
	}
	return c.Get(o.APIKey, o.BaseURL)
}

// Default 全局默认客户端
func (c *ClientCache) Default() *openai.Client {
	return c.defaultClient
}

// Len 当前缓存的用户级客户端数
func (c *ClientCache) Len() int {
	return c.clients.Len()
}
