package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/voicebridge-ai/EchoGate/pkg/logger"
)

// EndpointLimit 接口级别限流配置
type EndpointLimit struct {
	RPS   int // 每秒补充令牌数
	Burst int // 突发请求数（桶容量）
}

// TokenBucket 令牌桶实现
type TokenBucket struct {
	capacity   int       // 桶容量
	tokens     int       // 当前令牌数
	refillRate int       // 每秒补充令牌数
	lastRefill time.Time // 上次补充时间
	mu         sync.Mutex
}

// NewTokenBucket 创建新的令牌桶
func NewTokenBucket(capacity, refillRate int) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Allow 检查是否允许请求
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()

	// 补充令牌，整秒粒度
	elapsed := now.Sub(tb.lastRefill)
	tokensToAdd := int(elapsed.Seconds()) * tb.refillRate
	if tokensToAdd > 0 {
		tb.tokens = min(tb.capacity, tb.tokens+tokensToAdd)
		tb.lastRefill = now
	}

	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

// RateLimiter 按 IP × 接口的限流器，只对配置过的接口生效。
// 认证接口没有登录态可依赖，来源只能按 IP 算。
type RateLimiter struct {
	limits  map[string]EndpointLimit
	buckets sync.Map // "endpoint|ip" -> *TokenBucket
}

// NewRateLimiter 创建新的限流器
func NewRateLimiter(limits map[string]EndpointLimit) *RateLimiter {
	return &RateLimiter{limits: limits}
}

// DefaultLimits 默认限流配置：凭证相关接口防爆破
func DefaultLimits() map[string]EndpointLimit {
	return map[string]EndpointLimit{
		// 登录接口：每秒补 1 个令牌，突发 5 次
		"/api/auth/login": {RPS: 1, Burst: 5},
		// 注册接口：突发 3 次
		"/api/auth/register": {RPS: 1, Burst: 3},
	}
}

// Allow 检查是否允许请求，未配置限流的接口一律放行
func (rl *RateLimiter) Allow(ip, endpoint string) bool {
	limit, exists := rl.limits[endpoint]
	if !exists {
		return true
	}

	key := endpoint + "|" + ip
	if bucket, ok := rl.buckets.Load(key); ok {
		return bucket.(*TokenBucket).Allow()
	}

	bucket := NewTokenBucket(limit.Burst, limit.RPS)
	actual, _ := rl.buckets.LoadOrStore(key, bucket)
	return actual.(*TokenBucket).Allow()
}

// Middleware 限流中间件
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = c.Request.URL.Path
		}
		ip := c.ClientIP()

		if !rl.Allow(ip, endpoint) {
			logger.Warn("[RateLimit] 请求被限流",
				zap.String("ip", ip),
				zap.String("endpoint", endpoint))

			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code": http.StatusTooManyRequests,
				"msg":  "请求过于频繁，请稍后再试",
				"data": nil,
			})
			return
		}

		c.Next()
	}
}

// 全局限流器实例
var globalRateLimiter *RateLimiter
var rateLimiterOnce sync.Once

// GetRateLimiter 获取全局限流器实例
func GetRateLimiter() *RateLimiter {
	rateLimiterOnce.Do(func() {
		globalRateLimiter = NewRateLimiter(DefaultLimits())
	})
	return globalRateLimiter
}
