// Package cache 进程内或 Redis 后端的通用 KV 缓存。
// 网关用它存设备令牌的校验结果，让同一设备重连时免去一次 bcrypt 比对。
package cache

import (
	"context"
	"time"
)

// Cache 统一缓存接口。Get 的第二个返回值表示命中与否，
// 过期与缺失不作区分。
type Cache interface {
	Get(ctx context.Context, key string) (interface{}, bool)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) bool
	Close() error
}

// Config 缓存选型与两个后端的参数
type Config struct {
	// local、redis 或 layered（本地 L1 + redis L2）
	Type string `env:"CACHE_TYPE"`

	Redis RedisConfig
	Local LocalConfig
}

// RedisConfig go-redis 客户端参数
type RedisConfig struct {
	Addr         string        `env:"REDIS_ADDR"`
	Password     string        `env:"REDIS_PASSWORD"`
	DB           int           `env:"REDIS_DB"`
	PoolSize     int           `env:"REDIS_POOL_SIZE"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT"`
}

// LocalConfig 进程内缓存参数，零值时取 go-cache 的常用缺省
type LocalConfig struct {
	DefaultExpiration time.Duration `env:"LOCAL_CACHE_DEFAULT_EXPIRATION"`
	CleanupInterval   time.Duration `env:"LOCAL_CACHE_CLEANUP_INTERVAL"`
}
