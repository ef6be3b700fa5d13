package cache

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	KindLocal   = "local"   // in-process go-cache
	KindRedis   = "redis"   // redis only
	KindLayered = "layered" // local L1 + redis L2
)

// localFrontTTL L1 本地缓存的过期时间，比 L2 短以减少跨进程不一致窗口
const localFrontTTL = time.Minute

// NewCache 按配置选缓存后端，空类型按 local 处理
func NewCache(config Config) (Cache, error) {
	switch strings.ToLower(config.Type) {
	case KindLocal, "":
		return NewLocalCache(config.Local), nil
	case KindRedis:
		return NewRedisCache(config.Redis)
	case KindLayered:
		return NewLayeredCache(config)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", config.Type)
	}
}

// NewLayeredCache 多实例部署用：读穿本地、回源 Redis
func NewLayeredCache(config Config) (Cache, error) {
	remote, err := NewRedisCache(config.Redis)
	if err != nil {
		return nil, err
	}

	localConfig := config.Local
	localConfig.DefaultExpiration = localFrontTTL

	return &layeredCache{
		local:  NewLocalCache(localConfig),
		remote: remote,
	}, nil
}

type layeredCache struct {
	local  Cache
	remote Cache
}

// Get L1 命中直接返回，L2 命中回填 L1
func (lc *layeredCache) Get(ctx context.Context, key string) (interface{}, bool) {
	if value, exists := lc.local.Get(ctx, key); exists {
		return value, true
	}

	if value, exists := lc.remote.Get(ctx, key); exists {
		lc.local.Set(ctx, key, value, localFrontTTL)
		return value, true
	}

	return nil, false
}

// Set 先写 L2，成功才写 L1，避免远端失败后本地读到孤本
func (lc *layeredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if err := lc.remote.Set(ctx, key, value, expiration); err != nil {
		return err
	}
	return lc.local.Set(ctx, key, value, localFrontTTL)
}

func (lc *layeredCache) Delete(ctx context.Context, key string) error {
	if err := lc.local.Delete(ctx, key); err != nil {
		return err
	}
	return lc.remote.Delete(ctx, key)
}

func (lc *layeredCache) Exists(ctx context.Context, key string) bool {
	return lc.local.Exists(ctx, key) || lc.remote.Exists(ctx, key)
}

func (lc *layeredCache) Close() error {
	if err := lc.local.Close(); err != nil {
		return err
	}
	return lc.remote.Close()
}
